package db

import (
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"
)

// gooseMu guards goose's package-level dialect and filesystem.
var gooseMu sync.Mutex

func dialect(driver string) (string, error) {
	switch driver {
	case "sqlite":
		return "sqlite3", nil
	case "pgx":
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// withGoose points goose at the embedded migrations for driver and runs fn.
func withGoose(driver string, fn func() error) error {
	d, err := dialect(driver)
	if err != nil {
		return err
	}

	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	err = goose.SetDialect(d)
	if err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	return fn()
}

// RunMigrations applies every pending migration.
func RunMigrations(db *sql.DB, driver string) error {
	return withGoose(driver, func() error {
		err := goose.Up(db, ".")
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		version, err := goose.GetDBVersion(db)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		slog.Info("schema up to date", "version", version)
		return nil
	})
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(db *sql.DB, driver string) error {
	return withGoose(driver, func() error {
		err := goose.Down(db, ".")
		if err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}

		slog.Info("rolled back one migration")
		return nil
	})
}

// MigrationStatus returns the currently applied schema version.
func MigrationStatus(db *sql.DB, driver string) (int64, error) {
	var version int64
	err := withGoose(driver, func() error {
		var err error
		version, err = goose.GetDBVersion(db)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		return nil
	})
	return version, err
}
