// Package repo is the request repository: CRUD over request documents and
// attributes built on the store adapters. It owns path construction and
// request-id semantics.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"datarequest/internal/domain"
	"datarequest/internal/store"
)

// Attribute names on the request document.
const (
	AttrStatus            = "status"
	AttrTitle             = "title"
	AttrPreviousRequestID = "previous_request_id"
	AttrAssignedForReview = "assignedForReview"
)

type Repo struct {
	DB   *sql.DB
	Zone string

	Colls store.Collections
	Docs  store.Documents
	Meta  store.Metadata
}

// RootPath is the parent collection all requests live under.
func (r Repo) RootPath() string {
	zone := r.Zone
	if zone == "" {
		zone = "tempZone"
	}
	return "/" + zone + "/home/datarequests-research"
}

func (r Repo) CollPath(requestID string) string {
	return r.RootPath() + "/" + requestID
}

func (r Repo) DocPath(requestID string) string {
	return r.ArtifactPath(requestID, domain.ArtifactDatarequest)
}

func (r Repo) ArtifactPath(requestID string, kind domain.ArtifactKind) string {
	return r.CollPath(requestID) + "/" + string(kind)
}

// EnsureRoot creates the parent collection if missing. Run at init time.
func (r Repo) EnsureRoot(ctx context.Context, tx *sql.Tx, now time.Time) error {
	exists, err := r.Colls.Exists(ctx, tx, r.RootPath())
	if err != nil || exists {
		return err
	}
	zone := r.Zone
	if zone == "" {
		zone = "tempZone"
	}
	return r.Colls.Create(ctx, tx, r.RootPath(), "/"+zone+"/home", "", now.Unix())
}

// NewRequestID returns a collision-resistant request identifier. The original
// system derived ids from a second-granularity timestamp, which collides under
// concurrent submissions.
func NewRequestID() string {
	return uuid.New().String()
}

// Create persists a new request: its collection, the proposal document, and
// the title and resubmission back-reference attributes. The caller sets the
// initial status in the same transaction.
func (r Repo) Create(ctx context.Context, tx *sql.Tx, owner string, doc json.RawMessage, previousRequestID string, now time.Time) (string, error) {
	id := NewRequestID()
	collPath := r.CollPath(id)
	if err := r.Colls.Create(ctx, tx, collPath, r.RootPath(), owner, now.Unix()); err != nil {
		return "", err
	}
	docPath := r.DocPath(id)
	if err := r.Docs.Write(ctx, tx, docPath, owner, doc, now.UTC().Format(time.RFC3339)); err != nil {
		return "", err
	}
	if _, title, err := domain.ParseRequestDocument(doc); err == nil && title != "" {
		if err := r.Meta.Set(ctx, tx, docPath, AttrTitle, title); err != nil {
			return "", err
		}
	}
	if previousRequestID != "" {
		if err := r.Meta.Set(ctx, tx, docPath, AttrPreviousRequestID, previousRequestID); err != nil {
			return "", err
		}
	}
	return id, nil
}

func (r Repo) Exists(ctx context.Context, requestID string) (bool, error) {
	return r.Colls.Exists(ctx, r.DB, r.CollPath(requestID))
}

// GetStatus reads the request's status attribute. Exactly one status row must
// exist; zero or several is a repository-integrity fault.
func (r Repo) GetStatus(ctx context.Context, q store.DBTX, requestID string) (domain.Status, error) {
	exists, err := r.Colls.Exists(ctx, q, r.CollPath(requestID))
	if err != nil {
		return "", err
	}
	if !exists {
		return "", domain.ErrNotFound.New("request %s", requestID)
	}
	values, err := r.Meta.Get(ctx, q, r.DocPath(requestID), AttrStatus)
	if err != nil {
		return "", err
	}
	if len(values) != 1 {
		return "", domain.ErrAmbiguousState.New("request %s has %d status attributes", requestID, len(values))
	}
	status, err := domain.ParseStatus(values[0])
	if err != nil {
		return "", domain.ErrAmbiguousState.Wrap(err)
	}
	return status, nil
}

// SetStatus replaces the status attribute. The delete-and-insert inside one
// transaction enforces the exactly-one-status invariant on write.
func (r Repo) SetStatus(ctx context.Context, tx *sql.Tx, requestID string, status domain.Status) error {
	return r.Meta.Set(ctx, tx, r.DocPath(requestID), AttrStatus, status.String())
}

// Read returns the request document and its current status.
func (r Repo) Read(ctx context.Context, requestID string) (json.RawMessage, domain.Status, error) {
	status, err := r.GetStatus(ctx, r.DB, requestID)
	if err != nil {
		return nil, "", err
	}
	doc, err := r.Docs.Read(ctx, r.DB, r.DocPath(requestID))
	if err != nil {
		return nil, "", err
	}
	return doc, status, nil
}

// Get returns the full request record.
func (r Repo) Get(ctx context.Context, requestID string) (domain.Request, error) {
	doc, status, err := r.Read(ctx, requestID)
	if err != nil {
		return domain.Request{}, err
	}
	owner, err := r.OwnerOf(ctx, requestID)
	if err != nil {
		return domain.Request{}, err
	}
	prev, err := r.Meta.Get(ctx, r.DB, r.DocPath(requestID), AttrPreviousRequestID)
	if err != nil {
		return domain.Request{}, err
	}
	req := domain.Request{ID: requestID, Owner: owner, Status: status, Document: doc}
	if len(prev) > 0 {
		req.PreviousRequestID = prev[0]
	}
	var createdAt int64
	err = r.DB.QueryRowContext(ctx, `SELECT created_at FROM collections WHERE path=?`, r.CollPath(requestID)).Scan(&createdAt)
	if err != nil {
		return domain.Request{}, domain.ErrStorage.Wrap(err)
	}
	req.CreatedAt = time.Unix(createdAt, 0).UTC().Format(time.RFC3339)
	return req, nil
}

// WriteArtifact persists a stage artifact. Artifacts are write-once: a second
// write for the same stage fails with a conflict instead of overwriting.
func (r Repo) WriteArtifact(ctx context.Context, tx *sql.Tx, requestID string, kind domain.ArtifactKind, doc json.RawMessage, owner string, now time.Time) error {
	artifactPath := r.ArtifactPath(requestID, kind)
	exists, err := r.Docs.Exists(ctx, tx, artifactPath)
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrConflict.New("artifact %s already present on request %s", kind, requestID)
	}
	return r.Docs.Write(ctx, tx, artifactPath, owner, doc, now.UTC().Format(time.RFC3339))
}

func (r Repo) ReadArtifact(ctx context.Context, requestID string, kind domain.ArtifactKind) (json.RawMessage, error) {
	return r.Docs.Read(ctx, r.DB, r.ArtifactPath(requestID, kind))
}

// ListReviews returns all per-reviewer review artifacts of a request.
func (r Repo) ListReviews(ctx context.Context, requestID string) ([]json.RawMessage, error) {
	names, err := r.Docs.ListNames(ctx, r.DB, r.CollPath(requestID), "review_%.json")
	if err != nil {
		return nil, err
	}
	reviews := make([]json.RawMessage, 0, len(names))
	for _, name := range names {
		doc, err := r.Docs.Read(ctx, r.DB, r.CollPath(requestID)+"/"+name)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, doc)
	}
	return reviews, nil
}

// Owners returns the owner records of the request document.
func (r Repo) Owners(ctx context.Context, requestID string) ([]string, error) {
	return r.Docs.Owners(ctx, r.DB, r.DocPath(requestID))
}

// OwnerOf returns the single owner of the request, failing shut when the
// store reports anything other than exactly one owner record.
func (r Repo) OwnerOf(ctx context.Context, requestID string) (string, error) {
	owners, err := r.Owners(ctx, requestID)
	if err != nil {
		return "", err
	}
	if len(owners) != 1 {
		return "", domain.ErrAmbiguousOwner.New("request %s has %d owner records", requestID, len(owners))
	}
	return owners[0], nil
}

// AssignedReviewers returns the current assigned-reviewer set.
func (r Repo) AssignedReviewers(ctx context.Context, requestID string) ([]string, error) {
	return r.Meta.Get(ctx, r.DB, r.DocPath(requestID), AttrAssignedForReview)
}

func (r Repo) AssignedReviewersTx(ctx context.Context, tx *sql.Tx, requestID string) ([]string, error) {
	return r.Meta.Get(ctx, tx, r.DocPath(requestID), AttrAssignedForReview)
}

func (r Repo) AddReviewer(ctx context.Context, tx *sql.Tx, requestID, username string) error {
	return r.Meta.Add(ctx, tx, r.DocPath(requestID), AttrAssignedForReview, username)
}

// RemoveReviewer deletes one reviewer from the assigned set and returns how
// many remain. Removal and count run in the same transaction so the caller
// can fire the reviewed transition exactly once.
func (r Repo) RemoveReviewer(ctx context.Context, tx *sql.Tx, requestID, username string) (int, error) {
	docPath := r.DocPath(requestID)
	if err := r.Meta.RemoveValue(ctx, tx, docPath, AttrAssignedForReview, username); err != nil {
		return 0, err
	}
	return r.Meta.Count(ctx, tx, docPath, AttrAssignedForReview)
}
