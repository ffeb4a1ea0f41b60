// Package migrations embeds the SQL schema so the daemon can migrate its
// database without the files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/eqiva-core/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.RegisterMigrations(files)
}
