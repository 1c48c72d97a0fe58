package main

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/usageimport/internal/config"
	"github.com/JonMunkholm/usageimport/internal/core"
	"github.com/JonMunkholm/usageimport/internal/logging"
	"github.com/JonMunkholm/usageimport/internal/storage/memstore"
	"github.com/JonMunkholm/usageimport/internal/storage/postgres"
	"github.com/JonMunkholm/usageimport/internal/web"
)

// store is what the service needs from a storage driver.
type store interface {
	core.DatasetStore
	core.RunStore
}

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	service := core.NewService(st, st, core.ServiceConfig{
		MaxConcurrent:         cfg.Import.MaxConcurrent,
		MaxWait:               cfg.Import.MaxWaitTime,
		Timeout:               cfg.Import.Timeout,
		MaxFileSize:           cfg.Import.MaxFileSize,
		MaxReportedRejections: cfg.Import.MaxReportedRejections,
	}, core.WithMetrics(core.NewMetrics(registry)))

	if err := service.Start(ctx); err != nil {
		return err
	}

	if cfg.Bootstrap.Enabled {
		if _, err := service.Bootstrap(ctx, core.BootstrapOptions{
			FileName:    cfg.Bootstrap.File,
			SearchPaths: cfg.Bootstrap.SearchPaths,
		}); err != nil {
			// The service still serves uploads without a seed.
			slog.Error("seed import failed",
				"file", cfg.Bootstrap.File,
				"reason", core.FormatUserError(err),
				"error", err,
			)
		}
	}

	server := web.NewServer(service, cfg, registry)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		service.StartRetentionScheduler(gctx, core.RetentionConfig{
			MaxAge:   cfg.Import.RunRetention,
			Interval: cfg.Import.PruneInterval,
		})
		return nil
	})

	g.Go(server.Start)

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
		}
		if err := service.Close(shutdownCtx); err != nil {
			slog.Warn("imports did not complete in time", "error", err)
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// openStore selects the storage driver. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	if strings.EqualFold(cfg.Storage.Driver, config.DriverMemory) {
		slog.Warn("using in-memory storage; data is lost on restart")
		return memstore.New(), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
	defer cancel()

	pool, err := postgres.Connect(connectCtx, postgres.PoolConfig{
		URL:               cfg.Database.URL,
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:   cfg.Database.MaxConnIdleTime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
		ConnectTimeout:    cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return nil, nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	if cfg.Database.RunMigrations {
		if err := postgres.RunMigrations(pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		slog.Info("database migrations applied")
	}

	return postgres.New(pool, cfg.Import.BatchSize), pool.Close, nil
}
