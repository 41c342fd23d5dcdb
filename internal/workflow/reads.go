package workflow

import (
	"context"
	"encoding/json"

	"datarequest/internal/domain"
	"datarequest/internal/repo"
)

// Get returns a request to anyone involved in it: review-body members and
// the request owner.
func (e Engine) Get(ctx context.Context, requestID, actor string) (domain.Request, error) {
	authorized, err := e.canView(ctx, requestID, actor)
	if err != nil {
		return domain.Request{}, err
	}
	if !authorized {
		return domain.Request{}, domain.ErrPermission.New("user %s is not authorized to view request %s", actor, requestID)
	}
	return e.Repo.Get(ctx, requestID)
}

func (e Engine) canView(ctx context.Context, requestID, actor string) (bool, error) {
	for _, group := range []string{domain.GroupBoard, domain.GroupDatamanagers, domain.GroupCommittee} {
		ok, err := e.Groups.IsMemberOf(ctx, actor, group)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return e.Groups.IsOwner(ctx, requestID, actor)
}

// GetArtifact returns a stage artifact to board members, data managers and
// assigned reviewers.
func (e Engine) GetArtifact(ctx context.Context, requestID, actor string, kind domain.ArtifactKind) (json.RawMessage, error) {
	authorized := false
	for _, group := range []string{domain.GroupBoard, domain.GroupDatamanagers} {
		ok, err := e.Groups.IsMemberOf(ctx, actor, group)
		if err != nil {
			return nil, err
		}
		if ok {
			authorized = true
			break
		}
	}
	if !authorized {
		ok, err := e.Groups.IsAssignedReviewer(ctx, requestID, actor)
		if err != nil {
			return nil, err
		}
		authorized = ok
	}
	if !authorized {
		return nil, domain.ErrPermission.New("user %s is not authorized to view this artifact", actor)
	}
	return e.Repo.ReadArtifact(ctx, requestID, kind)
}

// Reviews returns the per-reviewer review artifacts. Board only.
func (e Engine) Reviews(ctx context.Context, requestID, actor string) ([]json.RawMessage, error) {
	if err := e.requireMember(ctx, actor, domain.GroupBoard); err != nil {
		return nil, err
	}
	if _, err := e.Repo.GetStatus(ctx, e.DB, requestID); err != nil {
		return nil, err
	}
	return e.Repo.ListReviews(ctx, requestID)
}

// Browse lists request summaries for any authenticated user.
func (e Engine) Browse(ctx context.Context, opts repo.BrowseOptions) (repo.BrowseResult, error) {
	return e.Repo.Browse(ctx, opts)
}

// IsOwner and IsReviewer back the portal's permission probes.
func (e Engine) IsOwner(ctx context.Context, requestID, username string) (bool, error) {
	return e.Groups.IsOwner(ctx, requestID, username)
}

func (e Engine) IsReviewer(ctx context.Context, requestID, username string) (bool, error) {
	return e.Groups.IsAssignedReviewer(ctx, requestID, username)
}
