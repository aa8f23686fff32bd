package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lib/pq"

	"jobcost/internal/core"
	applog "jobcost/internal/log"

	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store reads the three cost relations. It never writes.
type Store struct {
	db     *sql.DB
	driver string
	logger *applog.Logger
}

// OpenSQLite opens an existing SQLite file read-only.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: sqlite database %s: %v", core.ErrStoreUnavailable, path, err)
	}

	db, err := sql.Open(DriverSQLite, "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite database: %v", core.ErrStoreUnavailable, err)
	}
	return NewStore(ctx, db, DriverSQLite)
}

// OpenPostgres connects to Postgres using a lib/pq connection string.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres database: %v", core.ErrStoreUnavailable, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	return NewStore(ctx, db, DriverPostgres)
}

// NewStore wraps an already opened handle and verifies it is reachable.
// The handle is closed when the ping fails. The store logs through the
// logger carried by ctx, or slog's default.
func NewStore(ctx context.Context, db *sql.DB, driver string) (*Store, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping %s database: %v", core.ErrStoreUnavailable, driver, err)
	}
	return &Store{
		db:     db,
		driver: driver,
		logger: applog.FromContext(ctx).WithComponent(applog.ComponentStorage),
	}, nil
}

func (s *Store) Driver() string { return s.driver }

func (s *Store) SetLogger(logger *applog.Logger) {
	s.logger = logger.WithComponent(applog.ComponentStorage)
}

// Ping reports whether the store is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// classifyQueryError maps a failed relation query onto the error taxonomy.
// A missing relation or column is a schema problem, anything else means the
// store could not serve the read.
func classifyQueryError(relation string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42P01", "42703": // undefined_table, undefined_column
			return fmt.Errorf("%w: relation %s: %v", core.ErrSchemaMismatch, relation, err)
		}
		return fmt.Errorf("%w: relation %s: %v", core.ErrStoreUnavailable, relation, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column") {
		return fmt.Errorf("%w: relation %s: %v", core.ErrSchemaMismatch, relation, err)
	}
	return fmt.Errorf("%w: relation %s: %v", core.ErrStoreUnavailable, relation, err)
}
