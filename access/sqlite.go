package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteMembershipStore struct {
	db *sql.DB
}

// SQLiteMembershipStore is a MembershipStore over a local sqlite file. Grants
// are read per call so revocations take effect on the next dispatch.
type SQLiteMembershipStore interface {
	MembershipStore
	Grant(ctx context.Context, principalID, scopeID string, role Role) error
	Revoke(ctx context.Context, principalID, scopeID string) error
	Close() error
}

// NewSQLiteMembershipStore opens (creating if needed) the membership store.
func NewSQLiteMembershipStore(path string) (SQLiteMembershipStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("membership sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create membership db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open membership db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(context.Background(), `
CREATE TABLE IF NOT EXISTS scope_members (
  principal_id TEXT NOT NULL,
  scope_id TEXT NOT NULL,
  role TEXT NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  PRIMARY KEY (principal_id, scope_id)
);
`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize membership schema: %w", err)
	}
	return &sqliteMembershipStore{db: db}, nil
}

func (s *sqliteMembershipStore) Role(ctx context.Context, principalID, scopeID string) (Role, bool, error) {
	if s == nil || s.db == nil {
		return "", false, nil
	}
	var role string
	err := s.db.QueryRowContext(
		ctx,
		`SELECT role FROM scope_members WHERE principal_id = ? AND scope_id = ? AND active = 1;`,
		strings.TrimSpace(principalID),
		strings.TrimSpace(scopeID),
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup role: %w", err)
	}
	return Role(role), true, nil
}

func (s *sqliteMembershipStore) Grant(ctx context.Context, principalID, scopeID string, role Role) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("membership store is closed")
	}
	switch role {
	case RoleOwner, RoleManager, RoleMember:
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO scope_members (principal_id, scope_id, role, active) VALUES (?, ?, ?, 1)
ON CONFLICT(principal_id, scope_id) DO UPDATE SET role = excluded.role, active = 1;`,
		strings.TrimSpace(principalID),
		strings.TrimSpace(scopeID),
		string(role),
	)
	if err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}

func (s *sqliteMembershipStore) Revoke(ctx context.Context, principalID, scopeID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("membership store is closed")
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE scope_members SET active = 0 WHERE principal_id = ? AND scope_id = ?;`,
		strings.TrimSpace(principalID),
		strings.TrimSpace(scopeID),
	)
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	return nil
}

func (s *sqliteMembershipStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
