package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dealerops/sheetbridge/command"
)

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the sqlite-backed durable queue.
// This is the default backend: a local file that survives process and
// session restarts.
func NewSQLiteStore(path string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("queue sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create queue db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(context.Background(), `
CREATE TABLE IF NOT EXISTS queued_commands (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  payload TEXT NOT NULL,
  scope_id TEXT,
  queued_at TEXT NOT NULL,
  retries INTEGER NOT NULL DEFAULT 0,
  next_retry_at TEXT,
  last_error TEXT
);
CREATE INDEX IF NOT EXISTS idx_queued_commands_queued_at ON queued_commands(queued_at);
`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize queue schema: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Insert(ctx context.Context, cmd command.Command) (QueuedCommand, error) {
	if s == nil || s.db == nil {
		return QueuedCommand{}, fmt.Errorf("queue store is closed")
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return QueuedCommand{}, fmt.Errorf("encode payload: %w", err)
	}
	queuedAt := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO queued_commands (payload, scope_id, queued_at, retries) VALUES (?, ?, ?, 0);`,
		string(payload),
		cmd.ScopeID,
		queuedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return QueuedCommand{}, fmt.Errorf("insert queued command: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return QueuedCommand{}, fmt.Errorf("queued command id: %w", err)
	}
	return QueuedCommand{ID: id, Payload: cmd, ScopeID: cmd.ScopeID, QueuedAt: queuedAt}, nil
}

func (s *sqliteStore) List(ctx context.Context) ([]QueuedCommand, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("queue store is closed")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, payload, scope_id, queued_at, retries, next_retry_at, last_error
FROM queued_commands
ORDER BY queued_at ASC, id ASC;`)
	if err != nil {
		return nil, fmt.Errorf("list queued commands: %w", err)
	}
	defer rows.Close()
	out := make([]QueuedCommand, 0, 16)
	for rows.Next() {
		var (
			entry       QueuedCommand
			payload     string
			scopeID     sql.NullString
			queuedAt    string
			nextRetryAt sql.NullString
			lastError   sql.NullString
		)
		if err := rows.Scan(&entry.ID, &payload, &scopeID, &queuedAt, &entry.Retries, &nextRetryAt, &lastError); err != nil {
			return nil, fmt.Errorf("scan queued command: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &entry.Payload); err != nil {
			return nil, fmt.Errorf("decode queued payload %d: %w", entry.ID, err)
		}
		entry.ScopeID = scopeID.String
		if t, err := time.Parse(time.RFC3339Nano, queuedAt); err == nil {
			entry.QueuedAt = t
		}
		if nextRetryAt.Valid && nextRetryAt.String != "" {
			if t, err := time.Parse(time.RFC3339Nano, nextRetryAt.String); err == nil {
				entry.NextRetryAt = &t
			}
		}
		entry.LastError = lastError.String
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queued commands: %w", err)
	}
	return out, nil
}

func (s *sqliteStore) Count(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("queue store is closed")
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queued_commands;`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count queued commands: %w", err)
	}
	return count, nil
}

func (s *sqliteStore) MarkRetry(ctx context.Context, id int64, retries int, nextRetryAt time.Time, lastError string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("queue store is closed")
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE queued_commands SET retries = ?, next_retry_at = ?, last_error = ? WHERE id = ?;`,
		retries,
		nextRetryAt.UTC().Format(time.RFC3339Nano),
		lastError,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark retry: %w", err)
	}
	return nil
}

func (s *sqliteStore) RemoveByID(ctx context.Context, id int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("queue store is closed")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queued_commands WHERE id = ?;`, id); err != nil {
		return fmt.Errorf("remove queued command: %w", err)
	}
	return nil
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("queue store is closed")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queued_commands;`); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
