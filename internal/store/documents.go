package store

import (
	"context"
	"database/sql"
	"path"

	"datarequest/internal/domain"
)

// Documents stores JSON blobs at logical paths. Absence on read is a
// distinguishable NotFound; overwrite protection is decided by the caller via
// Exists (write-once artifacts) so the adapter itself stays dumb.
type Documents struct{}

func (Documents) Write(ctx context.Context, q DBTX, docPath, owner string, content []byte, createdAt string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO documents(path,coll_path,name,owner,content,created_at) VALUES (?,?,?,?,?,?)`,
		docPath, path.Dir(docPath), path.Base(docPath), owner, content, createdAt)
	return storageErr(err)
}

func (Documents) Read(ctx context.Context, q DBTX, docPath string) ([]byte, error) {
	var content []byte
	err := q.QueryRowContext(ctx, `SELECT content FROM documents WHERE path=?`, docPath).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound.New("document %s", docPath)
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return content, nil
}

func (Documents) Exists(ctx context.Context, q DBTX, docPath string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE path=?`, docPath).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storageErr(err)
	}
	return true, nil
}

// Owners returns the owner column of every document at the path. The request
// repository uses this to detect ambiguous ownership (anything but exactly
// one record is an integrity fault).
func (Documents) Owners(ctx context.Context, q DBTX, docPath string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT owner FROM documents WHERE path=?`, docPath)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()
	var owners []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, storageErr(err)
		}
		owners = append(owners, o)
	}
	return owners, storageErr(rows.Err())
}

// ListNames returns document names in a collection matching a LIKE pattern,
// e.g. 'review_%.json'.
func (Documents) ListNames(ctx context.Context, q DBTX, collPath, pattern string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM documents WHERE coll_path=? AND name LIKE ? ORDER BY name`, collPath, pattern)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, storageErr(err)
		}
		names = append(names, n)
	}
	return names, storageErr(rows.Err())
}
