package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SHEETBRIDGE_SHEETS_BASE_URL", "https://sheets.example.com")
	t.Setenv("SHEETBRIDGE_SHEETS_TOKEN", "svc-token")
	t.Setenv("SHEETBRIDGE_SPREADSHEET_ID", "wb-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.ProcessInterval != 30*time.Second {
		t.Errorf("ProcessInterval = %v", cfg.ProcessInterval)
	}
	if cfg.RetryMax != 5 || cfg.RetryBase != 5*time.Second || cfg.RetryCap != 5*time.Minute {
		t.Errorf("retry defaults = %d %v %v", cfg.RetryMax, cfg.RetryBase, cfg.RetryCap)
	}
	if cfg.OfflineThreshold != 3 {
		t.Errorf("OfflineThreshold = %d", cfg.OfflineThreshold)
	}
}

func TestLoadRequiresRemoteStore(t *testing.T) {
	t.Setenv("SHEETBRIDGE_SHEETS_BASE_URL", "")
	t.Setenv("SHEETBRIDGE_SHEETS_TOKEN", "svc-token")
	t.Setenv("SHEETBRIDGE_SPREADSHEET_ID", "wb-1")

	if _, err := Load(); err == nil {
		t.Fatal("load succeeded without a remote store URL")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SHEETBRIDGE_SHEETS_BASE_URL", "https://sheets.example.com")
	t.Setenv("SHEETBRIDGE_SHEETS_TOKEN", "svc-token")
	t.Setenv("SHEETBRIDGE_SPREADSHEET_ID", "wb-1")
	t.Setenv("SHEETBRIDGE_RETRY_MAX", "2")
	t.Setenv("SHEETBRIDGE_REDIS_ADDR", "localhost:6379")
	t.Setenv("SHEETBRIDGE_PROCESS_INTERVAL", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RetryMax != 2 || cfg.RedisAddr != "localhost:6379" || cfg.ProcessInterval != 5*time.Second {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}
