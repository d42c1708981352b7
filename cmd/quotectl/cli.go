package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jsamuelsen/quotesync/internal/app"
	"github.com/jsamuelsen/quotesync/internal/bootstrap"
	"github.com/jsamuelsen/quotesync/internal/platform/config"
)

// cli holds the flags and the services a command runs against.
type cli struct {
	out    io.Writer
	errOut io.Writer

	configDir  string
	profile    string
	logLevel   string
	jsonOutput bool

	cfg    *config.Config
	logger *slog.Logger
	store  bootstrap.Store
	svc    *app.QuoteService
	syncer *app.Syncer

	closers []io.Closer
}

func newCLI(out, errOut io.Writer) *cli {
	return &cli{out: out, errOut: errOut}
}

// setup loads configuration and opens the store, the remote source and the
// quote service. Logs go to errOut so stdout stays parseable.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := bootstrap.LoadConfig(c.configDir, c.profile, func(cfg *config.Config) {
		if c.logLevel != "" {
			cfg.Log.Level = c.logLevel
		}
	})
	if err != nil {
		return err
	}

	c.cfg = cfg

	logger, logCloser := bootstrap.NewLogger(cfg, c.errOut)
	c.logger = logger
	c.closers = append(c.closers, logCloser)

	store, err := bootstrap.OpenStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	c.store = store
	c.closers = append(c.closers, store)

	source, err := bootstrap.NewQuoteSource(cfg, logger)
	if err != nil {
		return err
	}

	// Background pushes would outlive the command.
	cfg.Sync.PushOnAdd = false

	svc, err := bootstrap.NewQuoteService(ctx, cfg, source, store, logger)
	if err != nil {
		return err
	}

	c.svc = svc

	c.syncer, err = app.NewSyncer(svc, app.SyncerConfig{
		Timeout: cfg.Sync.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("creating syncer: %w", err)
	}

	return nil
}

// run executes the command line in args. Whatever setup opened is closed
// even when the command fails.
func (c *cli) run(ctx context.Context, args []string) error {
	root := newRootCommand(c)
	root.SetArgs(args)
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	err := root.ExecuteContext(ctx)

	return errors.Join(err, c.teardown())
}

// teardown closes what setup opened, last opened first.
func (c *cli) teardown() error {
	if c.svc != nil {
		c.svc.Wait()
	}

	var errs []error

	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}

	c.closers = nil

	return errors.Join(errs...)
}

// printJSON writes v indented to out.
func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func (c *cli) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// syncContext bounds a remote call by the configured sync timeout.
func (c *cli) syncContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.Sync.Timeout)
}
