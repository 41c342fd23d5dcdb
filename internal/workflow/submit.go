package workflow

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"datarequest/internal/domain"
	"datarequest/internal/events"
	"datarequest/internal/store"
)

// Submit creates a new data request owned by the acting user and moves it to
// SUBMITTED. Any authenticated principal may submit. previousRequestID links
// a resubmission back to the rejected request it replaces.
func (e Engine) Submit(ctx context.Context, actor string, doc json.RawMessage, previousRequestID string) (domain.Request, error) {
	if strings.TrimSpace(actor) == "" {
		return domain.Request{}, domain.ErrPermission.New("no acting user")
	}
	researcher, title, err := domain.ParseRequestDocument(doc)
	if err != nil {
		return domain.Request{}, domain.ErrInvalidData.New("request document is not valid JSON")
	}
	if researcher.Email == "" || researcher.Name == "" {
		return domain.Request{}, domain.ErrInvalidData.New("request document has no researcher contact")
	}

	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, domain.ErrStorage.Wrap(err)
	}
	defer tx.Rollback()

	id, err := e.Repo.Create(ctx, tx, actor, doc, previousRequestID, now)
	if err != nil {
		return domain.Request{}, err
	}
	if err := e.Repo.SetStatus(ctx, tx, id, domain.StatusSubmitted); err != nil {
		return domain.Request{}, err
	}
	if err := e.Events.Append(ctx, tx, "request.submitted", id, actor, events.EventPayload{
		"status":              domain.StatusSubmitted.String(),
		"previous_request_id": previousRequestID,
	}); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, domain.ErrStorage.Wrap(err)
	}

	// The review bodies get write access on the whole request collection so
	// that stage artifacts can land there later.
	collPath := e.Repo.CollPath(id)
	for _, group := range []string{domain.GroupDatamanagers, domain.GroupCommittee, domain.GroupBoard} {
		e.sideEffect("acl.grant", id, e.ACL.Grant(ctx, e.DB, group, store.PermWrite, collPath, true))
	}

	e.sideEffect("mail.researcher_submitted", id,
		e.Mail.RequestSubmittedResearcher(ctx, researcher, id))
	boardEmails, err := e.Groups.MemberEmails(ctx, domain.GroupBoard)
	e.sideEffect("groups.board_emails", id, err)
	e.sideEffect("mail.board_submitted", id,
		e.Mail.RequestSubmittedBoard(ctx, boardEmails, researcher, id, title, now.Format("2006-01-02")))

	return domain.Request{
		ID:                id,
		Owner:             actor,
		Status:            domain.StatusSubmitted,
		PreviousRequestID: previousRequestID,
		Document:          doc,
		CreatedAt:         now.UTC().Format(time.RFC3339),
	}, nil
}
