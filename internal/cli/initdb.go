package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"jobcost/internal/config"
	applog "jobcost/internal/log"
	"jobcost/internal/storage"
)

func newInitCommand(a *app) *cobra.Command {
	var sample bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the SQLite schema, optionally with sample data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context(), a, sample, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&sample, "sample", false, "insert sample rows when the store is empty")

	return cmd
}

func runInit(ctx context.Context, a *app, sample bool, out io.Writer) error {
	cfg := a.cfg
	if cfg.DataBackend != config.BackendSQLite {
		return fmt.Errorf("init only manages the sqlite backend, DATA_BACKEND is %q", cfg.DataBackend)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = applog.WithLogger(ctx, a.logger)
	if err := storage.Bootstrap(ctx, cfg.SQLiteDBPath, sample); err != nil {
		return fmt.Errorf("bootstrap %s: %w", cfg.SQLiteDBPath, err)
	}
	fmt.Fprintf(out, "Initialized %s\n", cfg.SQLiteDBPath)
	return nil
}
