package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/goran-ethernal/ChainRuntime/internal/db"
	"github.com/goran-ethernal/ChainRuntime/internal/logger"
)

//go:embed 001_checkpoint.sql
var mig0001 string

// RunMigrations runs all migrations for the checkpoint database.
func RunMigrations(log *logger.Logger, sqlDB *sql.DB) error {
	migrations := []db.Migration{
		{
			ID:  "001_checkpoint.sql",
			SQL: mig0001,
		},
	}

	return db.RunMigrations(log, sqlDB, migrations)
}
