package workflow

import (
	"context"

	"datarequest/internal/domain"
)

// Init prepares a migrated database for use: the root collection the requests
// live under, the three review-body groups, and any memberships seeded from
// config. Idempotent.
func (e Engine) Init(ctx context.Context) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ErrStorage.Wrap(err)
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureRoot(ctx, tx, e.now()); err != nil {
		return err
	}
	for _, group := range []string{domain.GroupBoard, domain.GroupDatamanagers, domain.GroupCommittee} {
		if err := e.Groups.EnsureGroup(ctx, tx, group, ""); err != nil {
			return domain.ErrStorage.Wrap(err)
		}
	}
	if e.Config != nil {
		for group, members := range e.Config.Groups {
			if err := e.Groups.EnsureGroup(ctx, tx, group, ""); err != nil {
				return domain.ErrStorage.Wrap(err)
			}
			for _, m := range members {
				if err := e.Groups.AddMember(ctx, tx, group, m.Username, m.Email); err != nil {
					return domain.ErrStorage.Wrap(err)
				}
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.ErrStorage.Wrap(err)
	}
	return nil
}
