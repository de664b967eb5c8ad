package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"sync"

	"github.com/pressly/goose/v3"

	auth "github.com/goliatone/go-auth-bridge"
	"github.com/goliatone/go-auth-bridge/config"
)

const migrationsRoot = "data/sql/migrations"

// goose keeps its base FS and dialect in package state
var gooseMu sync.Mutex

// gooseUpContext is a seam for tests
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations for driver.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	dialect, dir, err := migrationTarget(driver)
	if err != nil {
		return err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(auth.GetMigrationsFS())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	if err := gooseUpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("migrate %s: %w", driver, err)
	}
	return nil
}

// MigrationVersion reports the current schema version.
func MigrationVersion(ctx context.Context, db *sql.DB, driver string) (int64, error) {
	dialect, _, err := migrationTarget(driver)
	if err != nil {
		return 0, err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := goose.SetDialect(dialect); err != nil {
		return 0, fmt.Errorf("goose dialect: %w", err)
	}
	return goose.GetDBVersionContext(ctx, db)
}

func migrationTarget(driver string) (dialect, dir string, err error) {
	switch driver {
	case config.DriverSQLite:
		return "sqlite3", path.Join(migrationsRoot, "sqlite"), nil
	case config.DriverPostgres:
		return "pgx", path.Join(migrationsRoot, "postgres"), nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", driver)
	}
}
