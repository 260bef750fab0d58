package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the sqlite-backed audit log.
func NewSQLiteStore(path string) (Reader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("audit sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(context.Background(), `
CREATE TABLE IF NOT EXISTS audit_entries (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  actor_id TEXT,
  scope_id TEXT,
  action TEXT NOT NULL,
  operation TEXT NOT NULL,
  target TEXT,
  spreadsheet_id TEXT,
  command_id TEXT,
  role TEXT,
  outcome TEXT NOT NULL,
  detail TEXT,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_entries_created_at ON audit_entries(created_at DESC);
`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Record(ctx context.Context, rec Record) error {
	if s == nil || s.db == nil {
		return nil
	}
	if rec.Action == "" || rec.Operation == "" {
		return nil
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO audit_entries
  (actor_id, scope_id, action, operation, target, spreadsheet_id, command_id, role, outcome, detail, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.ActorID,
		rec.ScopeID,
		rec.Action,
		rec.Operation,
		rec.Target,
		rec.SpreadsheetID,
		rec.CommandID,
		rec.Role,
		rec.Outcome,
		rec.Detail,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

func (s *sqliteStore) List(ctx context.Context, limit int, offset int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, actor_id, scope_id, action, operation, target, spreadsheet_id, command_id, role, outcome, detail, created_at
FROM audit_entries
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()
	out := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			entry       Entry
			actor       sql.NullString
			scope       sql.NullString
			target      sql.NullString
			spreadsheet sql.NullString
			commandID   sql.NullString
			role        sql.NullString
			detail      sql.NullString
			created     string
		)
		if err := rows.Scan(&entry.ID, &actor, &scope, &entry.Action, &entry.Operation,
			&target, &spreadsheet, &commandID, &role, &entry.Outcome, &detail, &created); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.ActorID = actor.String
		entry.ScopeID = scope.String
		entry.Target = target.String
		entry.SpreadsheetID = spreadsheet.String
		entry.CommandID = commandID.String
		entry.Role = role.String
		entry.Detail = detail.String
		if t, parseErr := time.Parse(time.RFC3339Nano, created); parseErr == nil {
			entry.CreatedAt = t
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
