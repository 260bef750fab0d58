// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration. Every field has a sane default
// except the remote store settings, which must be provided.
type Config struct {
	// ListenAddr is the HTTP bind address.
	ListenAddr string `env:"SHEETBRIDGE_LISTEN_ADDR" envDefault:":8080"`

	// MaxConns caps concurrent HTTP connections; 0 disables the cap.
	MaxConns int `env:"SHEETBRIDGE_MAX_CONNS" envDefault:"256"`

	// SheetsBaseURL is the remote values API endpoint.
	SheetsBaseURL string `env:"SHEETBRIDGE_SHEETS_BASE_URL,required,notEmpty"`

	// SheetsToken is the fixed service credential sent as a bearer token.
	SheetsToken string `env:"SHEETBRIDGE_SHEETS_TOKEN,required,notEmpty"`

	// DefaultSpreadsheetID is the system-of-record workbook used when a
	// scope has no configured override.
	DefaultSpreadsheetID string `env:"SHEETBRIDGE_SPREADSHEET_ID,required,notEmpty"`

	// QueuePath is the sqlite file backing the durable queue.
	QueuePath string `env:"SHEETBRIDGE_QUEUE_PATH" envDefault:"data/queue.db"`

	// AuditPath is the sqlite file backing the audit log.
	AuditPath string `env:"SHEETBRIDGE_AUDIT_PATH" envDefault:"data/audit.db"`

	// MembersPath is the sqlite file backing scope memberships.
	MembersPath string `env:"SHEETBRIDGE_MEMBERS_PATH" envDefault:"data/members.db"`

	// ScopesPath is the sqlite file backing per-scope overrides.
	ScopesPath string `env:"SHEETBRIDGE_SCOPES_PATH" envDefault:"data/scopes.db"`

	// RedisAddr switches the queue to redis when set, for deployments where
	// several dashboard sessions share one queue.
	RedisAddr     string `env:"SHEETBRIDGE_REDIS_ADDR"`
	RedisPassword string `env:"SHEETBRIDGE_REDIS_PASSWORD"`
	RedisDB       int    `env:"SHEETBRIDGE_REDIS_DB" envDefault:"0"`

	// ProcessInterval is how often the queue is replayed in the background.
	ProcessInterval time.Duration `env:"SHEETBRIDGE_PROCESS_INTERVAL" envDefault:"30s"`

	// RetryMax is the number of failed re-attempts before dead-lettering.
	RetryMax int `env:"SHEETBRIDGE_RETRY_MAX" envDefault:"5"`

	// RetryBase and RetryCap bound the exponential backoff between attempts.
	RetryBase time.Duration `env:"SHEETBRIDGE_RETRY_BASE" envDefault:"5s"`
	RetryCap  time.Duration `env:"SHEETBRIDGE_RETRY_CAP" envDefault:"5m"`

	// BackupDir enables periodic snapshots of the sqlite files when set.
	BackupDir string `env:"SHEETBRIDGE_BACKUP_DIR"`

	// BackupInterval is how often snapshots are taken.
	BackupInterval time.Duration `env:"SHEETBRIDGE_BACKUP_INTERVAL" envDefault:"1h"`

	// OfflineThreshold is the consecutive-failure count that flips the
	// connectivity monitor offline.
	OfflineThreshold int `env:"SHEETBRIDGE_OFFLINE_THRESHOLD" envDefault:"3"`

	// ProbeInterval is how often the remote store is health-checked while
	// offline.
	ProbeInterval time.Duration `env:"SHEETBRIDGE_PROBE_INTERVAL" envDefault:"30s"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
