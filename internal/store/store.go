// Package store provides the leaf adapters over the embedded object store:
// collections, JSON documents, key/value metadata attributes and ACL grants.
// The workflow layers above never touch SQL directly.
package store

import (
	"context"
	"database/sql"

	"datarequest/internal/domain"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so adapter calls can run
// inside the caller's transaction scope.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func storageErr(err error) error {
	if err == nil {
		return nil
	}
	return domain.ErrStorage.Wrap(err)
}
