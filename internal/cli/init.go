// Package cli provides the jobcost commands and the initialization they share:
// environment loading, configuration, logging and store selection.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/joho/godotenv"

	"jobcost/internal/config"
	applog "jobcost/internal/log"
	"jobcost/internal/storage"
)

// app carries what PersistentPreRunE prepares for the subcommands.
type app struct {
	envFile  string
	cfg      *config.Config
	logger   *applog.Logger
	closeLog io.Closer
}

// LoadEnvFile loads a .env file for local development. A missing file is only
// an error when the caller asked for it explicitly.
func LoadEnvFile(path string, required bool) error {
	err := godotenv.Load(path)
	if err != nil && !required && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// LoadAndValidateConfig loads configuration from the environment and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger builds the application logger from cfg and makes it the slog default.
func SetupLogger(cfg *config.Config) (*applog.Logger, io.Closer, error) {
	logger, closer, err := applog.Open(cfg.EffectiveLogLevel(), cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return nil, nil, err
	}
	applog.SetDefault(logger)
	return logger, closer, nil
}

// OpenStore opens the store selected by DATA_BACKEND.
func OpenStore(ctx context.Context, cfg *config.Config) (*storage.Store, error) {
	switch cfg.DataBackend {
	case config.BackendPostgres:
		return storage.OpenPostgres(ctx, cfg.PostgresDSN())
	default:
		return storage.OpenSQLite(ctx, cfg.SQLiteDBPath)
	}
}

func (a *app) setup(explicitEnv bool) error {
	if err := LoadEnvFile(a.envFile, explicitEnv); err != nil {
		return err
	}
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		return err
	}
	logger, closer, err := SetupLogger(cfg)
	if err != nil {
		return err
	}
	a.cfg, a.logger, a.closeLog = cfg, logger, closer
	return nil
}

func (a *app) close() {
	if a.closeLog != nil {
		_ = a.closeLog.Close()
		a.closeLog = nil
	}
}
