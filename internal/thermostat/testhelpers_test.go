package thermostat

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
	"github.com/nerrad567/eqiva-core/internal/infrastructure/database"
	_ "github.com/nerrad567/eqiva-core/migrations" // registers the embedded schema
)

const (
	addrKitchen = "00:1A:22:0A:0B:01"
	addrOffice  = "00:1A:22:0A:0B:02"
)

// openTestDB opens a migrated database in a temporary directory.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "eqiva.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db.DB
}

// statusState builds a DeviceState carrying a status report.
func statusState(addr string, mode eqiva.Mode, valve uint8, celsius float64) eqiva.DeviceState {
	temp, err := eqiva.NewSetpoint(celsius)
	if err != nil {
		panic(err)
	}
	return eqiva.DeviceState{
		Address:     addr,
		Mode:        &mode,
		Valve:       &valve,
		Temperature: &temp,
		UpdatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}
