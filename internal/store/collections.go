package store

import (
	"context"
	"database/sql"
)

// Collections manages the hierarchical namespace entries requests live in.
type Collections struct{}

func (Collections) Create(ctx context.Context, q DBTX, path, parent, owner string, createdAt int64) error {
	_, err := q.ExecContext(ctx, `INSERT INTO collections(path,parent_path,owner,created_at) VALUES (?,?,?,?)`,
		path, parent, owner, createdAt)
	return storageErr(err)
}

func (Collections) Exists(ctx context.Context, q DBTX, path string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM collections WHERE path=?`, path).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storageErr(err)
	}
	return true, nil
}

func (Collections) Owner(ctx context.Context, q DBTX, path string) (string, error) {
	var owner string
	err := q.QueryRowContext(ctx, `SELECT owner FROM collections WHERE path=?`, path).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", storageErr(err)
	}
	return owner, nil
}
