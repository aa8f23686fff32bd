package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	applog "jobcost/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations creates the cost relations in the SQLite file at dbPath,
// creating the file and its directory when missing.
func RunMigrations(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	// Separate connection: the dashboard itself only ever opens the file read-only.
	migrateDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Bootstrap prepares a local SQLite store for development: schema first, then the
// sample rows when requested and the relations are still empty.
func Bootstrap(ctx context.Context, dbPath string, withSample bool) error {
	if err := RunMigrations(dbPath); err != nil {
		return err
	}
	if !withSample {
		return nil
	}
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentStorage)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite database: %w", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM materials) + (SELECT COUNT(*) FROM labor) + (SELECT COUNT(*) FROM overhead)`,
	).Scan(&n); err != nil {
		return fmt.Errorf("count existing rows: %w", err)
	}
	if n > 0 {
		logger.InfoContext(ctx, "Skipping sample data, store already has rows", applog.FieldRows, n, "path", dbPath)
		return nil
	}

	if err := SeedSample(ctx, db); err != nil {
		return err
	}
	logger.InfoContext(ctx, "Sample data inserted", "path", dbPath)
	return nil
}
