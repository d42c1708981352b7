// Package bootstrap builds the pieces shared by the service and quotectl:
// configuration, telemetry, the snapshot store, the remote quote source and
// the quote service.
package bootstrap

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jsamuelsen/quotesync/internal/adapters/clients"
	"github.com/jsamuelsen/quotesync/internal/adapters/clients/acl"
	"github.com/jsamuelsen/quotesync/internal/adapters/storage/memory"
	"github.com/jsamuelsen/quotesync/internal/adapters/storage/sqlite"
	"github.com/jsamuelsen/quotesync/internal/app"
	"github.com/jsamuelsen/quotesync/internal/platform/config"
	"github.com/jsamuelsen/quotesync/internal/platform/logging"
	"github.com/jsamuelsen/quotesync/internal/platform/telemetry"
	"github.com/jsamuelsen/quotesync/internal/ports"
)

// LoadConfig reads .env, loads the profile layered over base.yaml from dir,
// applies override (which may be nil) and validates the result. An empty
// profile falls back to APP_ENVIRONMENT, then "local".
func LoadConfig(dir, profile string, override func(*config.Config)) (*config.Config, error) {
	if err := config.LoadDotEnv(""); err != nil {
		return nil, err
	}

	profile = cmp.Or(profile, os.Getenv("APP_ENVIRONMENT"), "local")

	cfg, err := config.LoadFrom(dir, profile)
	if err != nil {
		return nil, fmt.Errorf("loading %s config: %w", profile, err)
	}

	if override != nil {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// StartTelemetry installs propagation and, when enabled, the OTLP exporters.
func StartTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Provider, error) {
	tc := cfg.Telemetry

	provider, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:      tc.Enabled,
		Endpoint:     tc.Endpoint,
		ServiceName:  tc.ServiceName,
		Version:      cfg.App.Version,
		Environment:  cfg.App.Environment,
		SamplingRate: tc.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("starting telemetry: %w", err)
	}

	return provider, nil
}

// Store is a snapshot store that can also report its health and be closed.
type Store interface {
	ports.SnapshotStore
	ports.HealthChecker
	io.Closer
}

type memoryStore struct {
	*memory.Store
}

func (memoryStore) Close() error { return nil }

// OpenStore opens the store named by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return memoryStore{memory.New()}, nil
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}

		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// NewQuoteSource creates the instrumented client and the posts API adapter.
func NewQuoteSource(cfg *config.Config, logger *slog.Logger) (*acl.QuoteSource, error) {
	qc := cfg.Services.Quotes

	httpClient, err := clients.New(&clients.Config{
		BaseURL:     qc.BaseURL,
		ServiceName: qc.Name,
		Timeout:     cfg.Client.Timeout,
		Retry:       cfg.Client.Retry,
		Circuit:     cfg.Client.CircuitBreaker,
		Transport:   cfg.Client.Transport,
		UserAgent:   cfg.App.Name + "/" + cfg.App.Version,
		Logger:      logger,

		RetryNonIdempotent: cfg.Client.RetryNonIdempotent,
	})
	if err != nil {
		return nil, fmt.Errorf("creating HTTP client: %w", err)
	}

	return acl.NewQuoteSource(acl.QuoteSourceConfig{
		Client:    httpClient,
		PostsPath: qc.PostsPath,
		Category:  qc.Category,
		UserID:    qc.UserID,
		Logger:    logger,
	}), nil
}

// NewQuoteService creates the quote service and loads its state from store.
func NewQuoteService(
	ctx context.Context,
	cfg *config.Config,
	source ports.QuoteSource,
	store ports.SnapshotStore,
	logger *slog.Logger,
) (*app.QuoteService, error) {
	svcCfg := app.QuoteServiceConfig{
		Source:          source,
		Store:           store,
		Logger:          logger,
		CollectionKey:   cfg.Storage.CollectionKey,
		FilterKey:       cfg.Storage.FilterKey,
		PushOnAdd:       cfg.Sync.PushOnAdd,
		PushConcurrency: cfg.Sync.PushConcurrency,
		PushTimeout:     cfg.Sync.Timeout,
	}

	if cfg.Storage.Seed {
		svcCfg.Seed = app.DefaultSeed()
	}

	svc := app.NewQuoteService(svcCfg)

	if err := svc.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading quotes: %w", err)
	}

	return svc, nil
}

// NewLogger builds the logger described by cfg. The returned closer flushes
// the log file, if any.
func NewLogger(cfg *config.Config, w io.Writer) (*slog.Logger, io.Closer) {
	return logging.Open(&logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.App.Name,
		Version: cfg.App.Version,
		File: logging.FileConfig{
			Enabled:    cfg.Log.File.Enabled,
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			Compress:   cfg.Log.File.Compress,
		},
	}, w)
}
