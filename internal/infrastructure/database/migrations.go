package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"sync"
	"time"
)

// migrationFile matches YYYYMMDD_HHMMSS_description.(up|down).sql.
var migrationFile = regexp.MustCompile(`^(\d{8}_\d{6})_(\w+)\.(up|down)\.sql$`)

var (
	sourceMu sync.RWMutex
	source   fs.FS
)

// RegisterMigrations sets the file system Migrate reads from. The
// migrations package registers the embedded schema in its init.
func RegisterMigrations(fsys fs.FS) {
	sourceMu.Lock()
	defer sourceMu.Unlock()
	source = fsys
}

func registeredMigrations() fs.FS {
	sourceMu.RLock()
	defer sourceMu.RUnlock()
	return source
}

// migration is one versioned schema change.
type migration struct {
	version string
	name    string
	up      string
	down    string
}

// MigrationStatus lists applied and pending versions, oldest first.
type MigrationStatus struct {
	Applied []string
	Pending []string
}

// loadMigrations reads every up/down pair at the root of fsys. A nil fsys
// has no migrations; a down file without its up file is an error.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	if fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	byVersion := make(map[string]*migration)
	for _, e := range entries {
		m := migrationFile.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		body, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		mig, ok := byVersion[m[1]]
		if !ok {
			mig = &migration{version: m[1], name: m[2]}
			byVersion[m[1]] = mig
		}
		if m[3] == "up" {
			mig.up = string(body)
		} else {
			mig.down = string(body)
		}
	}

	out := make([]migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.up == "" {
			return nil, fmt.Errorf("migration %s_%s has no up file", mig.version, mig.name)
		}
		out = append(out, *mig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// Migrate applies every pending migration in version order, each in its own
// transaction. A failed migration is rolled back and stops the run; earlier
// ones stay applied.
func (db *DB) Migrate(ctx context.Context) error {
	migrations, err := loadMigrations(registeredMigrations())
	if err != nil {
		return err
	}
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return err
	}
	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		err := db.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.up); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
				m.version, m.name, time.Now().UTC().Format(time.RFC3339))
			return err
		})
		if err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

// Rollback reverts the most recently applied migration using its down file.
func (db *DB) Rollback(ctx context.Context) error {
	migrations, err := loadMigrations(registeredMigrations())
	if err != nil {
		return err
	}
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	var latest string
	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1").Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("finding latest migration: %w", err)
	}

	idx := sort.Search(len(migrations), func(i int) bool { return migrations[i].version >= latest })
	if idx == len(migrations) || migrations[idx].version != latest {
		return fmt.Errorf("migration %s not found", latest)
	}
	m := migrations[idx]
	if m.down == "" {
		return fmt.Errorf("migration %s has no down file", latest)
	}

	return db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.down); err != nil {
			return fmt.Errorf("reverting %s: %w", m.version, err)
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", m.version)
		return err
	})
}

// MigrationStatus compares the registered migrations with the database.
func (db *DB) MigrationStatus(ctx context.Context) (MigrationStatus, error) {
	migrations, err := loadMigrations(registeredMigrations())
	if err != nil {
		return MigrationStatus{}, err
	}
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return MigrationStatus{}, err
	}
	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return MigrationStatus{}, err
	}

	var status MigrationStatus
	for v := range applied {
		status.Applied = append(status.Applied, v)
	}
	sort.Strings(status.Applied)
	for _, m := range migrations {
		if !applied[m.version] {
			status.Pending = append(status.Pending, m.version)
		}
	}
	return status, nil
}

func (db *DB) ensureMigrationsTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}
	return nil
}

func (db *DB) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// inTx runs fn in a transaction, committing only when fn succeeds.
func (db *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
