package workflow

import (
	"context"
	"database/sql"

	"datarequest/internal/domain"
	"datarequest/internal/events"
	"datarequest/internal/groups"
)

// assign records the assigned-reviewer set on the request. A request may only
// be assigned while a data-manager-review outcome is pending; an existing
// assignment is never extended or replaced through this path.
func (e Engine) assign(ctx context.Context, tx *sql.Tx, requestID, actor string, status domain.Status, assignees []string) error {
	switch status {
	case domain.StatusDatamanagerAccept, domain.StatusDatamanagerReject, domain.StatusDatamanagerResubmit:
	default:
		return domain.ErrAlreadyAssigned.New("request %s is already assigned", requestID)
	}
	if len(assignees) == 0 {
		return domain.ErrInvalidData.New("assignment accepted for review but assign_to is empty")
	}
	seen := map[string]bool{}
	for _, assignee := range assignees {
		if assignee == "" || seen[assignee] {
			return domain.ErrInvalidData.New("assign_to contains empty or duplicate usernames")
		}
		seen[assignee] = true
	}
	existing, err := e.Repo.AssignedReviewersTx(ctx, tx, requestID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return domain.ErrAlreadyAssigned.New("request %s is already assigned", requestID)
	}
	for _, assignee := range assignees {
		if err := e.Repo.AddReviewer(ctx, tx, requestID, assignee); err != nil {
			return err
		}
		if err := e.Events.Append(ctx, tx, "request.reviewer.assigned", requestID, actor, events.EventPayload{
			"reviewer": assignee,
		}); err != nil {
			return err
		}
	}
	return nil
}

// assigneeEmails resolves assignee usernames to the addresses on file in the
// committee group. Assignees without a known address are skipped.
func (e Engine) assigneeEmails(ctx context.Context, assignees []string) ([]string, error) {
	members, err := e.Groups.Members(ctx, domain.GroupCommittee)
	if err != nil {
		return nil, err
	}
	byName := map[string]groups.Member{}
	for _, m := range members {
		byName[m.Username] = m
	}
	var emails []string
	for _, assignee := range assignees {
		if m, ok := byName[assignee]; ok && m.Email != "" {
			emails = append(emails, m.Email)
		}
	}
	return emails, nil
}
