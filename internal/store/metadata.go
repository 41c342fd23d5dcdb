package store

import (
	"context"
)

// Metadata manages key/value attributes on store objects. Attributes may be
// repeated (several rows with the same attr name), which the reviewer
// assignment tracker relies on.
type Metadata struct{}

// Set replaces all values of attr on the object with a single value. Delete
// and insert run in the caller's transaction so the one-value invariant holds
// on write.
func (Metadata) Set(ctx context.Context, q DBTX, objPath, attr, value string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM metadata WHERE obj_path=? AND attr=?`, objPath, attr); err != nil {
		return storageErr(err)
	}
	_, err := q.ExecContext(ctx, `INSERT INTO metadata(obj_path,attr,value) VALUES (?,?,?)`, objPath, attr, value)
	return storageErr(err)
}

// Add appends a value for attr without touching existing rows.
func (Metadata) Add(ctx context.Context, q DBTX, objPath, attr, value string) error {
	_, err := q.ExecContext(ctx, `INSERT INTO metadata(obj_path,attr,value) VALUES (?,?,?)`, objPath, attr, value)
	return storageErr(err)
}

// Get returns all values of attr on the object, in insertion order.
func (Metadata) Get(ctx context.Context, q DBTX, objPath, attr string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT value FROM metadata WHERE obj_path=? AND attr=? ORDER BY id`, objPath, attr)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()
	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, storageErr(err)
		}
		values = append(values, v)
	}
	return values, storageErr(rows.Err())
}

// RemoveValue deletes the rows holding one specific value of attr.
func (Metadata) RemoveValue(ctx context.Context, q DBTX, objPath, attr, value string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM metadata WHERE obj_path=? AND attr=? AND value=?`, objPath, attr, value)
	return storageErr(err)
}

// Count returns the number of rows for attr on the object.
func (Metadata) Count(ctx context.Context, q DBTX, objPath, attr string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT count(*) FROM metadata WHERE obj_path=? AND attr=?`, objPath, attr).Scan(&n)
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}
