package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/eqiva-core/internal/infrastructure/database"
	"github.com/nerrad567/eqiva-core/internal/thermostat"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("EQIVA_CONFIG", path)
}

// TestRun_InvalidConfig verifies run fails with a missing config file.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("EQIVA_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config error", err)
	}
}

// TestRun_MissingDatabasePath verifies validation rejects an empty path.
func TestRun_MissingDatabasePath(t *testing.T) {
	writeConfig(t, `
database:
  path: ""
mqtt:
  enabled: false
logging:
  level: error
  format: text
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with empty database path")
	}
	if !strings.Contains(err.Error(), "database.path is required") {
		t.Errorf("run() error = %v", err)
	}
}

// TestRun_InvalidTemperatureRange verifies the clamp range is validated.
func TestRun_InvalidTemperatureRange(t *testing.T) {
	writeConfig(t, `
eqiva:
  min_temperature: 25
  max_temperature: 20
database:
  path: "`+filepath.Join(t.TempDir(), "eqiva.db")+`"
logging:
  level: error
`)

	if err := run(context.Background()); err == nil {
		t.Fatal("run() should fail when min_temperature >= max_temperature")
	}
}

// TestRun_StartupWithoutHardware starts as far as the host allows. Without a
// Bluetooth controller run fails at the adapter; with one it runs until the
// context ends.
func TestRun_StartupWithoutHardware(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, `
eqiva:
  alias_file: "`+filepath.Join(dir, "known_eqivas")+`"
  poll_interval: 0
database:
  path: "`+filepath.Join(dir, "eqiva.db")+`"
mqtt:
  enabled: false
api:
  host: "127.0.0.1"
  port: 19181
logging:
  level: error
  format: text
`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		if !strings.Contains(err.Error(), "bluetooth adapter") {
			t.Fatalf("run() error = %v, want nil or bluetooth adapter error", err)
		}
		t.Logf("run() stopped at the adapter: %v", err)
	}
}

// TestLoadAliases registers every alias file entry.
func TestLoadAliases(t *testing.T) {
	dir := t.TempDir()
	aliasPath := filepath.Join(dir, "known_eqivas")
	content := "00:1a:22:0a:0b:01 kitchen\n00:1A:22:0A:0B:02 office # window\nAA:BB:CC:DD:EE:FF phone\n"
	if err := os.WriteFile(aliasPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write alias file: %v", err)
	}

	db, err := database.Open(database.Config{Path: filepath.Join(dir, "eqiva.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	registry := thermostat.NewRegistry(thermostat.NewSQLiteRepository(db.DB))
	aliases, err := loadAliases(ctx, aliasPath, registry)
	if err != nil {
		t.Fatalf("loadAliases() error = %v", err)
	}

	if got := len(aliases.Entries()); got != 2 {
		t.Errorf("alias entries = %d, want 2", got)
	}
	th, err := registry.Get(ctx, "00:1A:22:0A:0B:01")
	if err != nil {
		t.Fatalf("registry.Get() error = %v", err)
	}
	if th.Alias != "kitchen" {
		t.Errorf("alias = %q, want kitchen", th.Alias)
	}
	if got := len(registry.List(ctx)); got != 2 {
		t.Errorf("registered thermostats = %d, want 2", got)
	}
}

// TestLoadAliases_MissingFile yields an empty alias set.
func TestLoadAliases_MissingFile(t *testing.T) {
	dir := t.TempDir()
	db, err := database.Open(database.Config{Path: filepath.Join(dir, "eqiva.db")})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	registry := thermostat.NewRegistry(thermostat.NewSQLiteRepository(db.DB))
	aliases, err := loadAliases(context.Background(), filepath.Join(dir, "missing"), registry)
	if err != nil {
		t.Fatalf("loadAliases() error = %v", err)
	}
	if len(aliases.Entries()) != 0 {
		t.Errorf("entries = %v, want none", aliases.Entries())
	}
}
