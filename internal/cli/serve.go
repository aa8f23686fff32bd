package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"jobcost/internal/amqp"
	"jobcost/internal/cache"
	"jobcost/internal/core"
	apphttp "jobcost/internal/http"
	applog "jobcost/internal/log"
	"jobcost/internal/snapshot"
)

const (
	shutdownTimeout    = 10 * time.Second
	cacheCleanInterval = time.Minute
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load the cost data and serve the dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a)
		},
	}
}

func runServe(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open store", applog.FieldDriver, cfg.DataBackend, applog.FieldError, err.Error())
		return err
	}
	defer store.Close()
	store.SetLogger(logger)

	views := cache.NewViewCache(cfg.ViewCacheSize, cfg.ViewCacheTTL)
	holder := snapshot.NewHolder(store,
		snapshot.WithLogger(logger),
		snapshot.OnPublish(func(*core.Dataset) { views.Purge() }),
	)
	if _, err := holder.Refresh(ctx, applog.OpStartup); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}

	// Connect before starting anything so a bad broker URL fails startup.
	var consumer *amqp.Client
	if cfg.AMQPURL != "" {
		consumer, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			return fmt.Errorf("connect refresh queue: %w", err)
		}
		defer consumer.Close()
	}

	srv := apphttp.NewServer(cfg.Addr(), holder, views, logger)
	srv.SetStoreCheck(store)
	manager := cache.NewManager(logger)
	manager.Register(views)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting dashboard server", "addr", srv.Addr, applog.FieldDriver, store.Driver())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down dashboard server", applog.FieldOperation, applog.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return manager.Run(gctx, cacheCleanInterval)
	})

	if cfg.RefreshInterval > 0 {
		g.Go(func() error {
			return holder.RunTicker(gctx, cfg.RefreshInterval)
		})
	}

	if consumer != nil {
		g.Go(func() error {
			return consumer.RunConsumer(gctx, func(ctx context.Context, msg *amqp.RefreshMessage) error {
				_, err := holder.Refresh(ctx, msg.Reason)
				return err
			})
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", applog.FieldError, err.Error())
		return err
	}
	logger.Info("Server stopped")
	return nil
}
