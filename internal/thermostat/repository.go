package thermostat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
)

// Repository defines the persistence operations for thermostats.
type Repository interface {
	// Get retrieves a thermostat by address.
	// Returns ErrThermostatNotFound if it is not registered.
	Get(ctx context.Context, address string) (*Thermostat, error)

	// List retrieves every thermostat ordered by address.
	List(ctx context.Context) ([]Thermostat, error)

	// Save inserts or replaces a thermostat.
	Save(ctx context.Context, t *Thermostat) error

	// Delete removes a thermostat.
	// Returns ErrThermostatNotFound if it is not registered.
	Delete(ctx context.Context, address string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `
		SELECT address, alias, name, vendor, serial, firmware, mode, valve,
			temperature, state, state_updated_at, last_seen, created_at, updated_at
		FROM thermostats`

// Get retrieves a thermostat by address.
func (r *SQLiteRepository) Get(ctx context.Context, address string) (*Thermostat, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+" WHERE address = ?", address)
	t, err := scanThermostat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrThermostatNotFound
		}
		return nil, fmt.Errorf("querying thermostat: %w", err)
	}
	return t, nil
}

// List retrieves every thermostat ordered by address.
func (r *SQLiteRepository) List(ctx context.Context) ([]Thermostat, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+" ORDER BY address")
	if err != nil {
		return nil, fmt.Errorf("querying thermostats: %w", err)
	}
	defer rows.Close()

	var out []Thermostat
	for rows.Next() {
		t, err := scanThermostat(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning thermostat: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thermostats: %w", err)
	}
	return out, nil
}

// Save inserts or replaces a thermostat. CreatedAt is kept on update.
func (r *SQLiteRepository) Save(ctx context.Context, t *Thermostat) error {
	if !eqiva.IsEqivaAddress(t.Address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, t.Address)
	}

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	state := "{}"
	if len(t.State) > 0 {
		state = string(t.State)
	}

	var mode sql.NullInt64
	if t.Mode != nil {
		mode = sql.NullInt64{Int64: int64(*t.Mode), Valid: true}
	}
	var valve sql.NullInt64
	if t.Valve != nil {
		valve = sql.NullInt64{Int64: int64(*t.Valve), Valid: true}
	}

	query := `
		INSERT INTO thermostats (
			address, alias, name, vendor, serial, firmware, mode, valve,
			temperature, state, state_updated_at, last_seen, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			alias = excluded.alias,
			name = excluded.name,
			vendor = excluded.vendor,
			serial = excluded.serial,
			firmware = excluded.firmware,
			mode = excluded.mode,
			valve = excluded.valve,
			temperature = excluded.temperature,
			state = excluded.state,
			state_updated_at = excluded.state_updated_at,
			last_seen = excluded.last_seen,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		t.Address,
		nullableString(t.Alias),
		nullableString(t.Name),
		nullableString(t.Vendor),
		nullableString(t.Serial),
		nullableFloat(t.Firmware, t.Firmware != 0),
		mode,
		valve,
		nullableFloatPtr(t.Temperature),
		state,
		nullableTime(t.StateUpdatedAt),
		nullableTime(t.LastSeen),
		t.CreatedAt.Format(time.RFC3339),
		t.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving thermostat: %w", err)
	}
	return nil
}

// Delete removes a thermostat.
func (r *SQLiteRepository) Delete(ctx context.Context, address string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM thermostats WHERE address = ?", address)
	if err != nil {
		return fmt.Errorf("deleting thermostat: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrThermostatNotFound
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanThermostat(scanner rowScanner) (*Thermostat, error) {
	var t Thermostat
	var alias, name, vendor, serial sql.NullString
	var firmware, temperature sql.NullFloat64
	var mode, valve sql.NullInt64
	var state string
	var stateUpdatedAt, lastSeen sql.NullString
	var createdAt, updatedAt string

	if err := scanner.Scan(
		&t.Address, &alias, &name, &vendor, &serial, &firmware, &mode, &valve,
		&temperature, &state, &stateUpdatedAt, &lastSeen, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	t.Alias = alias.String
	t.Name = name.String
	t.Vendor = vendor.String
	t.Serial = serial.String
	t.Firmware = firmware.Float64
	if mode.Valid {
		m := eqiva.Mode(mode.Int64) //nolint:gosec // column holds a single byte
		t.Mode = &m
	}
	if valve.Valid {
		v := uint8(valve.Int64) //nolint:gosec // column holds a percentage
		t.Valve = &v
	}
	if temperature.Valid {
		v := temperature.Float64
		t.Temperature = &v
	}
	if state != "" && state != "{}" {
		t.State = []byte(state)
	}
	t.StateUpdatedAt = parseOptionalTime(stateUpdatedAt)
	t.LastSeen = parseOptionalTime(lastSeen)

	var err error
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &t, nil
}

func parseOptionalTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// nullableString returns a sql.NullString, invalid for "".
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableFloat(v float64, valid bool) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: valid}
}

func nullableFloatPtr(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// nullableTime returns a sql.NullString holding an RFC 3339 timestamp.
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}
