package database

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"
)

func thermostatSchema() fstest.MapFS {
	return fstest.MapFS{
		"20260301_120000_thermostats.up.sql": {Data: []byte(
			"CREATE TABLE thermostats (address TEXT PRIMARY KEY, alias TEXT) STRICT;")},
		"20260301_120000_thermostats.down.sql": {Data: []byte("DROP TABLE thermostats;")},
	}
}

func commandLogSchema() fstest.MapFS {
	fsys := thermostatSchema()
	fsys["20260301_120100_command_log.up.sql"] = &fstest.MapFile{Data: []byte(
		"CREATE TABLE command_log (id TEXT PRIMARY KEY, command TEXT NOT NULL) STRICT;")}
	fsys["20260301_120100_command_log.down.sql"] = &fstest.MapFile{Data: []byte("DROP TABLE command_log;")}
	fsys["README.md"] = &fstest.MapFile{Data: []byte("not a migration")}
	return fsys
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	useMigrations(t, commandLogSchema())
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, table := range []string{"thermostats", "command_log"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s not created", table)
		}
	}

	status, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if want := []string{"20260301_120000", "20260301_120100"}; strings.Join(status.Applied, ",") != strings.Join(want, ",") {
		t.Errorf("Applied = %v, want %v", status.Applied, want)
	}
	if len(status.Pending) != 0 {
		t.Errorf("Pending = %v, want none", status.Pending)
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrate_Incremental(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	useMigrations(t, thermostatSchema())
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	useMigrations(t, commandLogSchema())
	status, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(status.Pending) != 1 || status.Pending[0] != "20260301_120100" {
		t.Fatalf("Pending = %v, want [20260301_120100]", status.Pending)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "command_log") {
		t.Error("command_log not created")
	}
}

func TestMigrate_FailureStopsRun(t *testing.T) {
	db := openTestDB(t)
	fsys := thermostatSchema()
	fsys["20260301_120100_broken.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE ( oops;")}
	useMigrations(t, fsys)
	ctx := context.Background()

	err := db.Migrate(ctx)
	if err == nil || !strings.Contains(err.Error(), "20260301_120100 (broken)") {
		t.Fatalf("Migrate() error = %v, want failure naming the broken migration", err)
	}
	if !tableExists(t, db, "thermostats") {
		t.Error("earlier migration should stay applied")
	}
	status, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(status.Pending) != 1 {
		t.Errorf("Pending = %v, want the broken migration", status.Pending)
	}
}

func TestMigrate_DownWithoutUp(t *testing.T) {
	db := openTestDB(t)
	useMigrations(t, fstest.MapFS{
		"20260301_120000_orphan.down.sql": {Data: []byte("DROP TABLE orphan;")},
	})

	if err := db.Migrate(context.Background()); err == nil {
		t.Fatal("Migrate() should reject a down file without an up file")
	}
}

func TestRollback(t *testing.T) {
	db := openTestDB(t)
	useMigrations(t, commandLogSchema())
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.Rollback(ctx); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	if tableExists(t, db, "command_log") {
		t.Error("command_log should be dropped")
	}
	if !tableExists(t, db, "thermostats") {
		t.Error("thermostats should remain")
	}
	status, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(status.Applied) != 1 || len(status.Pending) != 1 {
		t.Errorf("status = %+v, want one applied and one pending", status)
	}
}

func TestRollback_NothingApplied(t *testing.T) {
	db := openTestDB(t)
	useMigrations(t, thermostatSchema())

	if err := db.Rollback(context.Background()); err != nil {
		t.Errorf("Rollback() on empty database error = %v", err)
	}
}

func TestMigrate_NoMigrations(t *testing.T) {
	db := openTestDB(t)

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	status, err := db.MigrationStatus(context.Background())
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(status.Applied)+len(status.Pending) != 0 {
		t.Errorf("status = %+v, want empty", status)
	}
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations(commandLogSchema())
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("got %d migrations, want 2", len(migrations))
	}

	tests := []struct {
		version, name string
	}{
		{"20260301_120000", "thermostats"},
		{"20260301_120100", "command_log"},
	}
	for i, tt := range tests {
		m := migrations[i]
		if m.version != tt.version || m.name != tt.name {
			t.Errorf("migration %d = %s_%s, want %s_%s", i, m.version, m.name, tt.version, tt.name)
		}
		if m.up == "" || m.down == "" {
			t.Errorf("migration %s missing up or down SQL", m.version)
		}
	}
}

func TestMigrationFilePattern(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"20260301_120000_thermostats.up.sql", true},
		{"20260301_120000_thermostats.down.sql", true},
		{"20260301_120000_thermostats.sql", false},
		{"thermostats.up.sql", false},
		{"20260301_120000_thermostats.up.sql.bak", false},
	}
	for _, tt := range tests {
		if got := migrationFile.MatchString(tt.name); got != tt.ok {
			t.Errorf("match(%q) = %v, want %v", tt.name, got, tt.ok)
		}
	}
}
