package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/jsamuelsen/quotesync/internal/domain"
)

const (
	defaultSyncInterval = 5 * time.Minute
	defaultSyncTimeout  = 30 * time.Second
)

// ErrSyncInProgress is returned by TriggerNow when a sync is already running.
// It is always joined with a *domain.ConflictError.
var ErrSyncInProgress = errors.New("sync already in progress")

// Reconciler is what the Syncer drives. *QuoteService implements it.
type Reconciler interface {
	Sync(ctx context.Context) (domain.MergeReport, error)
	PushPending(ctx context.Context) (PushReport, error)
}

// SyncerConfig configures periodic synchronization.
type SyncerConfig struct {
	// Interval between ticks. Default 5m.
	Interval time.Duration

	// Timeout bounds one sync cycle, fetch and push included. Default 30s.
	Timeout time.Duration

	// PushPending pushes unsynced quotes after every successful merge.
	PushPending bool

	Logger *slog.Logger
	Meter  metric.Meter
}

// Syncer runs a sync cycle on a ticker and on demand. At most one cycle is
// in flight at any time: a tick that finds one running is dropped, and a
// manual trigger fails with ErrSyncInProgress.
type Syncer struct {
	target      Reconciler
	interval    time.Duration
	timeout     time.Duration
	pushPending bool
	logger      *slog.Logger

	inflight *semaphore.Weighted

	cycles  metric.Int64Counter
	records metric.Int64Counter

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSyncer creates a stopped Syncer for target.
func NewSyncer(target Reconciler, cfg SyncerConfig) (*Syncer, error) {
	if target == nil {
		return nil, errors.New("app: Syncer requires a Reconciler")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	meter := cfg.Meter
	if meter == nil {
		meter = otel.Meter(tracerName)
	}

	cycles, err := meter.Int64Counter(
		"quotesync.sync.cycles",
		metric.WithDescription("Sync cycles by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sync cycle counter: %w", err)
	}

	records, err := meter.Int64Counter(
		"quotesync.merge.records",
		metric.WithDescription("Remote records seen by merge, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating merge record counter: %w", err)
	}

	s := &Syncer{
		target:      target,
		interval:    cfg.Interval,
		timeout:     cfg.Timeout,
		pushPending: cfg.PushPending,
		logger:      logger.With(slog.String("component", "app.Syncer")),
		inflight:    semaphore.NewWeighted(1),
		cycles:      cycles,
		records:     records,
	}

	if s.interval <= 0 {
		s.interval = defaultSyncInterval
	}

	if s.timeout <= 0 {
		s.timeout = defaultSyncTimeout
	}

	return s, nil
}

// Start launches the ticker loop. It returns immediately; the loop runs
// until Stop is called or ctx is done. Starting a running Syncer is a no-op;
// after ctx is done it can be started again.
func (s *Syncer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	ticker := time.NewTicker(s.interval)

	go func(done chan struct{}) {
		defer close(done)
		defer ticker.Stop()
		defer s.release(done)

		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}(s.done)

	s.logger.InfoContext(ctx, "periodic sync started", slog.Duration("interval", s.interval))
}

// release forgets a loop that ended on its own so Start can run it again.
func (s *Syncer) release(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == done {
		s.cancel()
		s.cancel, s.done = nil, nil
	}
}

// Stop ends the ticker loop and waits for a running cycle to return.
func (s *Syncer) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done

	s.logger.Info("periodic sync stopped")
}

// TriggerNow runs one sync cycle in the caller's goroutine.
func (s *Syncer) TriggerNow(ctx context.Context) (domain.MergeReport, error) {
	if !s.inflight.TryAcquire(1) {
		s.recordCycle(ctx, "busy")

		return domain.MergeReport{}, fmt.Errorf("%w: %w", ErrSyncInProgress,
			domain.NewConflictError("sync", "a sync cycle is already running"))
	}
	defer s.inflight.Release(1)

	return s.run(ctx)
}

func (s *Syncer) tick(ctx context.Context) {
	if !s.inflight.TryAcquire(1) {
		s.recordCycle(ctx, "skipped")
		s.logger.DebugContext(ctx, "sync tick skipped, previous cycle still running")

		return
	}
	defer s.inflight.Release(1)

	if _, err := s.run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}

		s.logger.WarnContext(ctx, "sync cycle failed", slog.Any("error", err))
	}
}

// run executes one cycle. The caller holds the in-flight slot.
func (s *Syncer) run(ctx context.Context) (domain.MergeReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()

	report, err := s.target.Sync(ctx)
	if err != nil {
		s.recordCycle(ctx, "failed")
		return domain.MergeReport{}, err
	}

	s.recordCycle(ctx, "ok")
	s.recordMerge(ctx, report)

	if s.pushPending {
		if _, err := s.target.PushPending(ctx); err != nil {
			s.logger.WarnContext(ctx, "pushing pending quotes failed", slog.Any("error", err))
		}
	}

	s.logger.DebugContext(ctx, "sync cycle finished",
		slog.Duration("duration", time.Since(start)),
		slog.Bool("changed", report.Changed()),
	)

	return report, nil
}

func (s *Syncer) recordCycle(ctx context.Context, result string) {
	s.cycles.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("result", result)))
}

func (s *Syncer) recordMerge(ctx context.Context, r domain.MergeReport) {
	for outcome, n := range map[string]int{
		"added":     r.Added,
		"updated":   r.Updated,
		"unchanged": r.Unchanged,
		"skipped":   r.Skipped,
	} {
		if n > 0 {
			s.records.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
		}
	}
}
