package repo_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"datarequest/internal/db"
	"datarequest/internal/domain"
	"datarequest/internal/migrate"
	"datarequest/internal/repo"
)

func newTestRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn, Zone: "testZone"}, context.Background()
}

func ensureRoot(t *testing.T, r repo.Repo, ctx context.Context) {
	t.Helper()
	inTx(t, r, ctx, func(tx *sql.Tx) error {
		return r.EnsureRoot(ctx, tx, time.Unix(1700000000, 0))
	})
}

func inTx(t *testing.T, r repo.Repo, ctx context.Context, fn func(tx *sql.Tx) error) {
	t.Helper()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		t.Fatalf("tx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func createRequest(t *testing.T, r repo.Repo, ctx context.Context, owner string, at time.Time) string {
	t.Helper()
	doc := json.RawMessage(`{"researchers":{"contacts":[{"name":"A","email":"a@x"}]},"research_context":{"title":"T-` + owner + `"}}`)
	var id string
	inTx(t, r, ctx, func(tx *sql.Tx) error {
		var err error
		id, err = r.Create(ctx, tx, owner, doc, "", at)
		if err != nil {
			return err
		}
		return r.SetStatus(ctx, tx, id, domain.StatusSubmitted)
	})
	return id
}

func TestBrowseMissingRoot(t *testing.T) {
	r, ctx := newTestRepo(t)
	_, err := r.Browse(ctx, repo.BrowseOptions{})
	if !domain.ErrNotFound.Has(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestBrowseEmptyRoot(t *testing.T) {
	r, ctx := newTestRepo(t)
	ensureRoot(t, r, ctx)
	result, err := r.Browse(ctx, repo.BrowseOptions{})
	if err != nil {
		t.Fatalf("browse: %v", err)
	}
	if result.Total != 0 {
		t.Fatalf("total = %d", result.Total)
	}
	if result.Items == nil || len(result.Items) != 0 {
		t.Fatalf("items = %#v, want empty non-nil slice", result.Items)
	}
}

func TestBrowseSortAndPage(t *testing.T) {
	r, ctx := newTestRepo(t)
	ensureRoot(t, r, ctx)
	base := time.Unix(1700000000, 0)
	createRequest(t, r, ctx, "carol", base.Add(2*time.Second))
	createRequest(t, r, ctx, "alice", base.Add(1*time.Second))
	createRequest(t, r, ctx, "bob", base.Add(3*time.Second))

	result, err := r.Browse(ctx, repo.BrowseOptions{SortBy: repo.SortByName})
	if err != nil {
		t.Fatalf("browse: %v", err)
	}
	if result.Total != 3 || len(result.Items) != 3 {
		t.Fatalf("total = %d items = %d", result.Total, len(result.Items))
	}
	for i, want := range []string{"alice", "bob", "carol"} {
		if result.Items[i].Name != want {
			t.Fatalf("item %d = %s, want %s", i, result.Items[i].Name, want)
		}
		if result.Items[i].Status != domain.StatusSubmitted.String() {
			t.Fatalf("item %d status = %s", i, result.Items[i].Status)
		}
	}

	result, err = r.Browse(ctx, repo.BrowseOptions{SortBy: repo.SortByCreateTime, Descending: true, Limit: 2})
	if err != nil {
		t.Fatalf("browse desc: %v", err)
	}
	if result.Total != 3 || len(result.Items) != 2 {
		t.Fatalf("total = %d items = %d", result.Total, len(result.Items))
	}
	if result.Items[0].Name != "bob" || result.Items[1].Name != "carol" {
		t.Fatalf("items = %v", result.Items)
	}

	result, err = r.Browse(ctx, repo.BrowseOptions{SortBy: repo.SortByCreateTime, Descending: true, Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("browse page 2: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].Name != "alice" {
		t.Fatalf("page 2 items = %v", result.Items)
	}
}

func TestArtifactsAreWriteOnce(t *testing.T) {
	r, ctx := newTestRepo(t)
	ensureRoot(t, r, ctx)
	id := createRequest(t, r, ctx, "ada", time.Unix(1700000000, 0))

	doc := json.RawMessage(`{"preliminary_review":"Accepted for data manager review"}`)
	inTx(t, r, ctx, func(tx *sql.Tx) error {
		return r.WriteArtifact(ctx, tx, id, domain.ArtifactPreliminaryReview, doc, "bart", time.Now())
	})

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	err = r.WriteArtifact(ctx, tx, id, domain.ArtifactPreliminaryReview, doc, "bart", time.Now())
	if !domain.ErrConflict.Has(err) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	r, ctx := newTestRepo(t)
	ensureRoot(t, r, ctx)
	id := createRequest(t, r, ctx, "ada", time.Unix(1700000000, 0))

	status, err := r.GetStatus(ctx, r.DB, id)
	if err != nil || status != domain.StatusSubmitted {
		t.Fatalf("status = %s, %v", status, err)
	}
	inTx(t, r, ctx, func(tx *sql.Tx) error {
		return r.SetStatus(ctx, tx, id, domain.StatusPreliminaryAccept)
	})
	status, err = r.GetStatus(ctx, r.DB, id)
	if err != nil || status != domain.StatusPreliminaryAccept {
		t.Fatalf("status = %s, %v", status, err)
	}
	if _, err := r.GetStatus(ctx, r.DB, "missing"); !domain.ErrNotFound.Has(err) {
		t.Fatalf("missing request: err = %v", err)
	}
}

func TestReviewerSetRoundTrip(t *testing.T) {
	r, ctx := newTestRepo(t)
	ensureRoot(t, r, ctx)
	id := createRequest(t, r, ctx, "ada", time.Unix(1700000000, 0))

	inTx(t, r, ctx, func(tx *sql.Tx) error {
		if err := r.AddReviewer(ctx, tx, id, "carol"); err != nil {
			return err
		}
		return r.AddReviewer(ctx, tx, id, "chris")
	})
	reviewers, err := r.AssignedReviewers(ctx, id)
	if err != nil || len(reviewers) != 2 {
		t.Fatalf("reviewers = %v, %v", reviewers, err)
	}

	var remaining int
	inTx(t, r, ctx, func(tx *sql.Tx) error {
		var err error
		remaining, err = r.RemoveReviewer(ctx, tx, id, "carol")
		return err
	})
	if remaining != 1 {
		t.Fatalf("remaining = %d, want 1", remaining)
	}
	inTx(t, r, ctx, func(tx *sql.Tx) error {
		var err error
		remaining, err = r.RemoveReviewer(ctx, tx, id, "chris")
		return err
	})
	if remaining != 0 {
		t.Fatalf("remaining = %d, want 0", remaining)
	}
}

func TestListReviewsMatchesOnlyReviewArtifacts(t *testing.T) {
	r, ctx := newTestRepo(t)
	ensureRoot(t, r, ctx)
	id := createRequest(t, r, ctx, "ada", time.Unix(1700000000, 0))

	inTx(t, r, ctx, func(tx *sql.Tx) error {
		now := time.Now()
		if err := r.WriteArtifact(ctx, tx, id, domain.ReviewArtifact("carol"),
			json.RawMessage(`{"evaluation":"Approve"}`), "carol", now); err != nil {
			return err
		}
		if err := r.WriteArtifact(ctx, tx, id, domain.ReviewArtifact("chris"),
			json.RawMessage(`{"evaluation":"Reject"}`), "chris", now); err != nil {
			return err
		}
		// non-review artifacts in the same collection must not show up
		return r.WriteArtifact(ctx, tx, id, domain.ArtifactPreliminaryReview,
			json.RawMessage(`{"preliminary_review":"Accepted for data manager review"}`), "bart", now)
	})

	reviews, err := r.ListReviews(ctx, id)
	if err != nil {
		t.Fatalf("list reviews: %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("reviews = %d, want 2", len(reviews))
	}
}

func TestOwnerOfFailsOnAmbiguity(t *testing.T) {
	r, ctx := newTestRepo(t)
	ensureRoot(t, r, ctx)
	id := createRequest(t, r, ctx, "ada", time.Unix(1700000000, 0))

	owner, err := r.OwnerOf(ctx, id)
	if err != nil || owner != "ada" {
		t.Fatalf("owner = %s, %v", owner, err)
	}

	// a vanished request document means zero owner records
	if _, err := r.DB.Exec(`DELETE FROM documents WHERE path=?`, r.DocPath(id)); err != nil {
		t.Fatalf("delete document: %v", err)
	}
	if _, err := r.OwnerOf(ctx, id); !domain.ErrAmbiguousOwner.Has(err) {
		t.Fatalf("err = %v, want ambiguous owner", err)
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	r, ctx := newTestRepo(t)
	hash := repo.HashAPIKey("secret-key")
	err := r.InsertAPIKey(ctx, nil, domain.APIKey{ID: "k1", Username: "ada", Name: "portal", KeyHash: hash})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	key, err := r.GetAPIKeyByHash(ctx, hash)
	if err != nil || key.Username != "ada" {
		t.Fatalf("get = %+v, %v", key, err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey("wrong")); !domain.ErrNotFound.Has(err) {
		t.Fatalf("wrong key: err = %v", err)
	}
	keys, err := r.ListAPIKeys(ctx, "ada")
	if err != nil || len(keys) != 1 {
		t.Fatalf("list = %v, %v", keys, err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, hash); !domain.ErrNotFound.Has(err) {
		t.Fatalf("after delete: err = %v", err)
	}
}
