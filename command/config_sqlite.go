package command

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// ConfigStore resolves per-scope remote store configuration.
type ConfigStore interface {
	// Get returns the config for a scope. The second result is false when
	// the scope has no configuration, which is not an error: the encoder
	// falls back to process-wide defaults.
	Get(ctx context.Context, scopeID string) (ScopeConfig, bool, error)
	Put(ctx context.Context, cfg ScopeConfig) error
	Close() error
}

type sqliteConfigStore struct {
	db *sql.DB
}

// NewSQLiteConfigStore opens (creating if needed) a sqlite-backed scope
// configuration store.
func NewSQLiteConfigStore(path string) (ConfigStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("scope config sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scope config db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scope config db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(context.Background(), `
CREATE TABLE IF NOT EXISTS scope_configs (
  scope_id TEXT PRIMARY KEY,
  spreadsheet_id TEXT,
  targets TEXT
);
`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize scope config schema: %w", err)
	}
	return &sqliteConfigStore{db: db}, nil
}

func (s *sqliteConfigStore) Get(ctx context.Context, scopeID string) (ScopeConfig, bool, error) {
	if s == nil || s.db == nil {
		return ScopeConfig{}, false, nil
	}
	scopeID = strings.TrimSpace(scopeID)
	if scopeID == "" {
		return ScopeConfig{}, false, nil
	}
	var (
		spreadsheetID sql.NullString
		targetsJSON   sql.NullString
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT spreadsheet_id, targets FROM scope_configs WHERE scope_id = ?;`,
		scopeID,
	).Scan(&spreadsheetID, &targetsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return ScopeConfig{}, false, nil
	}
	if err != nil {
		return ScopeConfig{}, false, fmt.Errorf("get scope config: %w", err)
	}
	cfg := ScopeConfig{ScopeID: scopeID, SpreadsheetID: spreadsheetID.String}
	if targetsJSON.Valid && targetsJSON.String != "" {
		if err := json.Unmarshal([]byte(targetsJSON.String), &cfg.Targets); err != nil {
			return ScopeConfig{}, false, fmt.Errorf("decode scope targets: %w", err)
		}
	}
	return cfg, true, nil
}

func (s *sqliteConfigStore) Put(ctx context.Context, cfg ScopeConfig) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("scope config store is closed")
	}
	if strings.TrimSpace(cfg.ScopeID) == "" {
		return fmt.Errorf("scope id is required")
	}
	var targetsJSON string
	if len(cfg.Targets) > 0 {
		raw, err := json.Marshal(cfg.Targets)
		if err != nil {
			return fmt.Errorf("encode scope targets: %w", err)
		}
		targetsJSON = string(raw)
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO scope_configs (scope_id, spreadsheet_id, targets) VALUES (?, ?, ?)
ON CONFLICT(scope_id) DO UPDATE SET spreadsheet_id = excluded.spreadsheet_id, targets = excluded.targets;`,
		strings.TrimSpace(cfg.ScopeID),
		strings.TrimSpace(cfg.SpreadsheetID),
		targetsJSON,
	)
	if err != nil {
		return fmt.Errorf("put scope config: %w", err)
	}
	return nil
}

func (s *sqliteConfigStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
