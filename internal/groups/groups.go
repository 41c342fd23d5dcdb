// Package groups is the read side of authorization: group membership, request
// ownership and reviewer assignment checks. It never mutates workflow state;
// membership changes go through the CLI seeding commands only.
package groups

import (
	"context"
	"database/sql"

	"datarequest/internal/domain"
	"datarequest/internal/repo"
)

// Member is one entry of a group, with the address notifications go to.
type Member struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

type Service struct {
	DB   *sql.DB
	Repo repo.Repo

	// ServiceAccount is excluded from notification fan-out (the rodsadmin
	// style account that is a member of every group).
	ServiceAccount string
}

func (s Service) IsMemberOf(ctx context.Context, username, group string) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT 1 FROM group_members WHERE group_name=? AND username=? LIMIT 1`, group, username).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, domain.ErrStorage.Wrap(err)
	}
	return true, nil
}

// IsOwner reports whether username owns the request. Anything but exactly one
// owner record for the request document is an integrity fault and fails shut.
func (s Service) IsOwner(ctx context.Context, requestID, username string) (bool, error) {
	owners, err := s.Repo.Owners(ctx, requestID)
	if err != nil {
		return false, err
	}
	if len(owners) != 1 {
		return false, domain.ErrAmbiguousOwner.New("request %s has %d owner records", requestID, len(owners))
	}
	return owners[0] == username, nil
}

// IsAssignedReviewer reports whether username is in the request's current
// assigned-reviewer set.
func (s Service) IsAssignedReviewer(ctx context.Context, requestID, username string) (bool, error) {
	reviewers, err := s.Repo.AssignedReviewers(ctx, requestID)
	if err != nil {
		return false, err
	}
	for _, r := range reviewers {
		if r == username {
			return true, nil
		}
	}
	return false, nil
}

// Members returns the group's members, excluding the service account.
func (s Service) Members(ctx context.Context, group string) ([]Member, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT username, email FROM group_members WHERE group_name=? ORDER BY username`, group)
	if err != nil {
		return nil, domain.ErrStorage.Wrap(err)
	}
	defer rows.Close()
	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.Username, &m.Email); err != nil {
			return nil, domain.ErrStorage.Wrap(err)
		}
		if m.Username == s.ServiceAccount {
			continue
		}
		members = append(members, m)
	}
	return members, domain.ErrStorage.Wrap(rows.Err())
}

// MemberEmails returns the non-empty email addresses of a group's members.
func (s Service) MemberEmails(ctx context.Context, group string) ([]string, error) {
	members, err := s.Members(ctx, group)
	if err != nil {
		return nil, err
	}
	var emails []string
	for _, m := range members {
		if m.Email != "" {
			emails = append(emails, m.Email)
		}
	}
	return emails, nil
}

func (s Service) EnsureGroup(ctx context.Context, tx *sql.Tx, name, description string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO groups(name, description) VALUES (?,?)`, name, description)
	return err
}

func (s Service) AddMember(ctx context.Context, tx *sql.Tx, group, username, email string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO group_members(group_name, username, email) VALUES (?,?,?)
ON CONFLICT(group_name, username) DO UPDATE SET email=excluded.email`, group, username, email)
	return err
}

func (s Service) RemoveMember(ctx context.Context, tx *sql.Tx, group, username string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_name=? AND username=?`, group, username)
	return err
}

func (s Service) ListGroups(ctx context.Context) (map[string][]Member, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT group_name, username, email FROM group_members ORDER BY group_name, username`)
	if err != nil {
		return nil, domain.ErrStorage.Wrap(err)
	}
	defer rows.Close()
	out := map[string][]Member{}
	for rows.Next() {
		var group string
		var m Member
		if err := rows.Scan(&group, &m.Username, &m.Email); err != nil {
			return nil, domain.ErrStorage.Wrap(err)
		}
		out[group] = append(out[group], m)
	}
	return out, domain.ErrStorage.Wrap(rows.Err())
}
