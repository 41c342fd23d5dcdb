// Package workflow implements the data request lifecycle: one operation per
// stage transition, each gated by a role check and an entry-status check.
// Status changes, stage artifacts and audit events commit in one transaction;
// access grants and notifications run after commit with fire-and-log
// semantics.
package workflow

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"datarequest/internal/config"
	"datarequest/internal/domain"
	"datarequest/internal/events"
	"datarequest/internal/groups"
	"datarequest/internal/mail"
	"datarequest/internal/repo"
	"datarequest/internal/store"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Groups groups.Service
	ACL    store.ACL
	Events events.Writer
	Mail   *mail.Service
	Config *config.Config
	Log    *zap.Logger
	Now    func() time.Time

	locks *requestLocks
}

func New(db *sql.DB, cfg *config.Config, mailSvc *mail.Service, log *zap.Logger) Engine {
	r := repo.Repo{DB: db, Zone: cfg.Zone}
	return Engine{
		DB:     db,
		Repo:   r,
		Groups: groups.Service{DB: db, Repo: r, ServiceAccount: cfg.ServiceAccount},
		Events: events.Writer{DB: db},
		Mail:   mailSvc,
		Config: cfg,
		Log:    log,
		Now:    time.Now,
		locks:  newRequestLocks(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

// lock returns the unlock func for the request's mutex. Engines sharing a DB
// must share the lock table, so New is the only constructor.
func (e Engine) lock(requestID string) func() {
	if e.locks == nil {
		return func() {}
	}
	return e.locks.lock(requestID)
}

// requireMember gates an operation on group membership.
func (e Engine) requireMember(ctx context.Context, username, group string) error {
	ok, err := e.Groups.IsMemberOf(ctx, username, group)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrPermission.New("user %s is not a member of %s", username, group)
	}
	return nil
}

// requireStatus gates an operation on the request's entry status.
func (e Engine) requireStatus(ctx context.Context, requestID string, allowed ...domain.Status) (domain.Status, error) {
	status, err := e.Repo.GetStatus(ctx, e.DB, requestID)
	if err != nil {
		return "", err
	}
	for _, s := range allowed {
		if status == s {
			return status, nil
		}
	}
	return status, domain.ErrInvalidState.New("request %s is %s; operation not permitted", requestID, status)
}

// parseForm decodes a stage form strictly: unknown fields are rejected so a
// typo in a decision key cannot silently pass as an empty decision.
func parseForm(doc json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.ErrInvalidData.Wrap(err)
	}
	return nil
}

// sideEffect logs a post-commit failure without surfacing it. The transition
// has already committed; availability wins over side-effect consistency.
func (e Engine) sideEffect(what, requestID string, err error) {
	if err != nil {
		e.log().Error("post-commit side effect failed",
			zap.String("effect", what),
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// grantArtifactRead records read grants on a stage artifact for the given
// principals. Runs after commit.
func (e Engine) grantArtifactRead(ctx context.Context, requestID string, kind domain.ArtifactKind, principals ...string) {
	path := e.Repo.ArtifactPath(requestID, kind)
	for _, p := range principals {
		e.sideEffect("acl.grant", requestID, e.ACL.Grant(ctx, e.DB, p, store.PermRead, path, false))
	}
}

// researcherOf reads the researcher contact and proposal title out of the
// request document for notification rendering.
func (e Engine) researcherOf(ctx context.Context, requestID string) (domain.Researcher, string, error) {
	doc, err := e.Repo.ReadArtifact(ctx, requestID, domain.ArtifactDatarequest)
	if err != nil {
		return domain.Researcher{}, "", err
	}
	researcher, title, err := domain.ParseRequestDocument(doc)
	if err != nil {
		return domain.Researcher{}, "", domain.ErrInvalidData.Wrap(err)
	}
	return researcher, title, nil
}

// datamanagerEmail returns the contact address used in rejection mails.
func (e Engine) datamanagerEmail(ctx context.Context) string {
	emails, err := e.Groups.MemberEmails(ctx, domain.GroupDatamanagers)
	if err != nil || len(emails) == 0 {
		return ""
	}
	return emails[0]
}
