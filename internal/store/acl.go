package store

import (
	"context"
	"time"
)

// Permission levels recorded by ACL grants.
const (
	PermRead  = "read"
	PermWrite = "write"
)

// ACL records access grants on store paths. Enforcement happens in the
// surrounding platform; the workflow only has to issue the grants.
type ACL struct{}

func (ACL) Grant(ctx context.Context, q DBTX, principal, permission, path string, recursive bool) error {
	rec := 0
	if recursive {
		rec = 1
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO acl_grants(principal,permission,path,recursive,granted_at) VALUES (?,?,?,?,?)`,
		principal, permission, path, rec, time.Now().UTC().Format(time.RFC3339))
	return storageErr(err)
}

// Grants returns the principals granted a permission on a path. Used by
// tests and the CLI inspection command.
func (ACL) Grants(ctx context.Context, q DBTX, path, permission string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT principal FROM acl_grants WHERE path=? AND permission=? ORDER BY id`, path, permission)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()
	var principals []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, storageErr(err)
		}
		principals = append(principals, p)
	}
	return principals, storageErr(rows.Err())
}
