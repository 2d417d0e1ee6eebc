package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/rel")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8090" || cfg.StoreBackend != BackendPostgres {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DirectoryTimeout != 10*time.Second || cfg.DirectoryRetries != 3 {
		t.Fatalf("unexpected directory defaults: %v %d", cfg.DirectoryTimeout, cfg.DirectoryRetries)
	}
	if cfg.ReconcileInterval != 10*time.Minute {
		t.Fatalf("unexpected reconcile interval: %v", cfg.ReconcileInterval)
	}
}

func TestLoadMemoryBackendNeedsNoDatabase(t *testing.T) {
	t.Setenv("STORE_BACKEND", " Memory ")
	t.Setenv("RECONCILE_INTERVAL", "0s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreBackend != BackendMemory || cfg.ReconcileInterval != 0 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadRejectsMissingURLs(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "MONGO_URL") {
		t.Fatalf("expected MONGO_URL error, got %v", err)
	}

	t.Setenv("STORE_BACKEND", "postgres")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "cassandra")
	if _, err := Load(); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("DIRECTORY_TIMEOUT", "soon")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo}
	for in, want := range cases {
		if got := (Config{LogLevel: in}).SlogLevel(); got != want {
			t.Fatalf("level %q: got %v want %v", in, got, want)
		}
	}
}
