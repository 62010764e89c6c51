package shared

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/charmbracelet/log"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// newMigrationProvider builds a goose provider over the embedded migration files.
func newMigrationProvider(db *sql.DB) (*goose.Provider, error) {
	subFS, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open migration directory: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}

	return provider, nil
}

// RunMigrations executes all pending migrations on the database.
// goose tracks applied versions in its own goose_db_version table.
func RunMigrations(ctx context.Context, db *sql.DB, logger *log.Logger) error {
	provider, err := newMigrationProvider(db)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if logger != nil {
		for _, r := range results {
			logger.Info("applied migration", "source", r.Source.Path, "duration", r.Duration)
		}
	}

	return nil
}

// RollbackMigration rolls back the most recent migration.
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	provider, err := newMigrationProvider(db)
	if err != nil {
		return err
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if version == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	if _, err := provider.Down(ctx); err != nil {
		return fmt.Errorf("failed to rollback migration %d: %w", version, err)
	}

	return nil
}

// MigrationVersion returns the currently applied schema version.
func MigrationVersion(ctx context.Context, db *sql.DB) (int64, error) {
	provider, err := newMigrationProvider(db)
	if err != nil {
		return 0, err
	}

	return provider.GetDBVersion(ctx)
}
