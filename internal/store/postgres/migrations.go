package postgres

import (
	"embed"

	"github.com/jobfeed/jobfeed/internal/common/database"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema of the posting table and the run lock table.
func Migrations() ([]database.Migration, error) {
	return database.ReadMigrations(migrationFiles, "migrations")
}
