// Package database opens the daemon's SQLite store and applies its schema.
//
// The store holds the thermostat registry and the command log. It runs with
// a single connection (SQLite has one writer), WAL journaling when enabled,
// and STRICT tables.
//
// Migrations are YYYYMMDD_HHMMSS_name.up.sql / .down.sql pairs in an fs.FS
// registered with RegisterMigrations; the migrations package does this for
// the embedded schema:
//
//	import _ "github.com/nerrad567/eqiva-core/migrations"
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Schema changes are additive: new columns are nullable or carry a default.
package database
