package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yndnr/metastore-go/internal/telemetry/metric"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	metaDir := t.TempDir()
	path := writeConfig(t, `
storage:
  meta_dir: `+metaDir+`
  table_count: 6
  wal_sync_mode: sync
log:
  level: debug
`)
	t.Setenv("METASTORE_SERVER__HTTP__ADDR", "127.0.0.1:6001")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Storage.TableCount != 6 || cfg.Storage.WALSyncMode != "sync" {
		t.Errorf("file values not applied: %+v", cfg.Storage)
	}
	if cfg.Server.HTTP.Addr != "127.0.0.1:6001" {
		t.Errorf("env override not applied: addr = %q", cfg.Server.HTTP.Addr)
	}
	if !cfg.Storage.IndexEnabled {
		t.Error("defaults should keep the index enabled")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeConfig(t, "storage:\n  meta_dir: "+t.TempDir()+"\n  table_count: 99\n")
	_, err := loadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "table_count") {
		t.Errorf("expected table_count error, got %v", err)
	}
}

func TestInitStorage(t *testing.T) {
	metaDir := t.TempDir()
	path := writeConfig(t, `
storage:
  meta_dir: `+metaDir+`
  table_count: 3
  wal_sync_mode: sync
  wal_encryption_key: "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	engine, err := initStorage(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), metric.NewRegistry())
	if err != nil {
		t.Fatalf("initStorage: %v", err)
	}
	defer engine.Close()

	if engine.TableCount() != 3 {
		t.Errorf("table count = %d, want 3", engine.TableCount())
	}
	if err := engine.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if _, err := os.Stat(filepath.Join(metaDir, "wal")); err != nil {
		t.Errorf("wal dir not created: %v", err)
	}
}
