package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Distribution.BatchLimit != DefaultBatchLimit {
		t.Errorf("default batch limit = %d, want %d", cfg.Distribution.BatchLimit, DefaultBatchLimit)
	}
	if cfg.Distribution.PendingRetrySchedule != DefaultPendingRetrySchedule {
		t.Errorf("default schedule = %q, want %q", cfg.Distribution.PendingRetrySchedule, DefaultPendingRetrySchedule)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9090
  read_timeout: 15s
database:
  url: postgres://db.internal:5432/leadrouter
distribution:
  batch_limit: 100
  pending_retry_schedule: "*/5 * * * *"
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("read timeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if cfg.Database.URL != "postgres://db.internal:5432/leadrouter" {
		t.Errorf("database URL = %q", cfg.Database.URL)
	}
	if cfg.Distribution.BatchLimit != 100 {
		t.Errorf("batch limit = %d, want 100", cfg.Distribution.BatchLimit)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LEADROUTER_DATABASE_URL", "postgres://env-host:5432/leadrouter")
	t.Setenv("LEADROUTER_PORT", "7070")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.URL != "postgres://env-host:5432/leadrouter" {
		t.Errorf("database URL = %q, want env value", cfg.Database.URL)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want 7070", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.URL = "postgres://localhost:5432/leadrouter"
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	cfg.Server.Port = -1
	if err := cfg.Validate(); err == nil {
		t.Error("negative port accepted")
	}

	cfg = Default()
	if err := cfg.Validate(); err == nil {
		t.Error("missing database URL accepted")
	}
}
