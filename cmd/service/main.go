// Command service runs the quotesync HTTP API with periodic sync against the
// remote quote source.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/jsamuelsen/quotesync/internal/adapters/http"
	"github.com/jsamuelsen/quotesync/internal/adapters/http/handlers"
	"github.com/jsamuelsen/quotesync/internal/app"
	"github.com/jsamuelsen/quotesync/internal/bootstrap"
	"github.com/jsamuelsen/quotesync/internal/platform/config"
	"github.com/jsamuelsen/quotesync/internal/platform/logging"
	"github.com/jsamuelsen/quotesync/internal/platform/telemetry"
	"github.com/jsamuelsen/quotesync/internal/ports"
)

const meterName = "github.com/jsamuelsen/quotesync"

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.buildTime=...".
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "quotesync:", err)
		stop()
		os.Exit(1)
	}
}

// run serves until ctx is cancelled or the server fails, then drains in the
// reverse order of startup.
func run(ctx context.Context) (err error) {
	cfg, err := bootstrap.LoadConfig(config.DefaultConfigDir, "", nil)
	if err != nil {
		return err
	}

	logger, logCloser := bootstrap.NewLogger(cfg, os.Stdout)
	defer func() { _ = logCloser.Close() }()

	logging.SetDefault(logger)
	logger.Info("quotesync starting",
		slog.String("version", version),
		slog.String("commit", commit),
		slog.String("environment", cfg.App.Environment),
		slog.String("storage", cfg.Storage.Driver),
		slog.Bool("sync", cfg.Sync.Enabled),
	)

	provider, err := bootstrap.StartTelemetry(ctx, cfg)
	if err != nil {
		return err
	}

	defer func() {
		// ctx is already cancelled by the time we flush.
		err = errors.Join(err, provider.Shutdown(context.WithoutCancel(ctx)))
	}()

	meter := otel.Meter(meterName)

	requestMetrics, err := telemetry.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("request metrics: %w", err)
	}

	store, err := bootstrap.OpenStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	defer func() { err = errors.Join(err, store.Close()) }()

	source, err := bootstrap.NewQuoteSource(cfg, logger)
	if err != nil {
		return err
	}

	svc, err := bootstrap.NewQuoteService(ctx, cfg, source, store, logger)
	if err != nil {
		return err
	}

	prometheus.MustRegister(handlers.NewCollectionCollector(svc.Len))

	syncer, err := app.NewSyncer(svc, app.SyncerConfig{
		Interval:    cfg.Sync.Interval,
		Timeout:     cfg.Sync.Timeout,
		PushPending: cfg.Sync.PushPending,
		Logger:      logger,
		Meter:       meter,
	})
	if err != nil {
		return fmt.Errorf("creating syncer: %w", err)
	}

	health, err := healthRegistry(store, source)
	if err != nil {
		return err
	}

	server := http.New(&cfg.Server, logger)
	routes := http.NewDefaultRouterConfig(logger, cfg.Telemetry.ServiceName,
		handlers.NewHealthHandler(health, handlers.NewBuildInfo(version, commit, buildTime)),
		handlers.NewQuoteHandler(svc, syncer),
	)
	routes.Metrics = requestMetrics
	http.SetupRouter(server.Engine(), routes)

	if cfg.Sync.Enabled {
		syncer.Start(ctx)
	}

	serveErr := server.Start()

	select {
	case err = <-serveErr:
	case <-ctx.Done():
		logger.Info("shutdown requested", slog.Duration("timeout", cfg.Server.ShutdownTimeout))
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Requests first, then sync and background pushes, so nothing writes to
	// the store after it closes.
	err = errors.Join(err, server.Shutdown(drainCtx))

	syncer.Stop()
	svc.Wait()

	logger.Info("quotesync stopped")

	return err
}

// healthRegistry registers the store as critical. The remote source only
// degrades readiness because the service keeps working offline.
func healthRegistry(store, source ports.HealthChecker) (ports.HealthRegistry, error) {
	reg := ports.NewHealthRegistry()

	if err := reg.Register(store); err != nil {
		return nil, fmt.Errorf("store health check: %w", err)
	}

	if err := reg.RegisterOptional(source); err != nil {
		return nil, fmt.Errorf("quote source health check: %w", err)
	}

	return reg, nil
}
