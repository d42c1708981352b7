// Package app contains the application services that own the quote
// collection and coordinate it with the store and the remote source.
//
// The domain package decides what a merge does; this package decides when
// it happens, serializes access to the collection, and makes sure the store
// never lags behind memory.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/jsamuelsen/quotesync/internal/domain"
	"github.com/jsamuelsen/quotesync/internal/platform/logging"
	"github.com/jsamuelsen/quotesync/internal/ports"
)

const (
	defaultCollectionKey   = "quotes"
	defaultFilterKey       = "lastFilter"
	defaultPushConcurrency = 4
	defaultPushTimeout     = 30 * time.Second
)

// DefaultSeed returns the quotes a collection starts with when the store
// has never been written.
func DefaultSeed() []domain.Quote {
	return []domain.Quote{
		{Text: "Quote 1", Author: "Author 1", Category: "Inspiration"},
		{Text: "Quote 2", Author: "Author 2", Category: "Motivation"},
		{Text: "Quote 3", Author: "Author 3", Category: "Inspiration"},
	}
}

// PushReport counts the outcome of pushing pending local quotes.
type PushReport struct {
	// Pushed quotes were accepted remotely and replaced by their synced version.
	Pushed int `json:"pushed"`

	// Failed pushes left the quote local; the next push retries it.
	Failed int `json:"failed"`

	// Skipped pushes succeeded remotely but the returned ID was already in
	// the collection, so the local copy was kept. Such quotes are counted
	// here on later pushes without being sent again.
	Skipped int `json:"skipped"`
}

// QuoteService owns the quote collection for the life of the process.
//
// Every mutation is applied to a copy, persisted, and only then made
// current, so a failed save leaves both memory and store as they were.
// Remote calls never run while the collection lock is held.
type QuoteService struct {
	source ports.QuoteSource
	store  ports.SnapshotStore
	exec   *Executor
	logger *slog.Logger

	collectionKey   string
	filterKey       string
	seed            []domain.Quote
	pushOnAdd       bool
	pushConcurrency int
	pushTimeout     time.Duration

	mu     sync.Mutex
	coll   *domain.Collection
	filter string
	rng    *rand.Rand

	// pushMu keeps two pushes from sending the same pending quote.
	pushMu sync.Mutex
	// collided holds pending quotes whose pushed copy came back with an id
	// that is already taken. They are not sent again. Guarded by pushMu.
	collided map[string]struct{}
	bg     sync.WaitGroup
}

// QuoteServiceConfig contains the dependencies and settings of the service.
type QuoteServiceConfig struct {
	Source ports.QuoteSource
	Store  ports.SnapshotStore
	Logger *slog.Logger

	// CollectionKey and FilterKey name the store entries. Defaults "quotes"
	// and "lastFilter".
	CollectionKey string
	FilterKey     string

	// Seed is the initial collection used when the store is empty.
	// Nil starts empty; use DefaultSeed for the stock quotes.
	Seed []domain.Quote

	// PushOnAdd pushes pending quotes in the background after each add.
	PushOnAdd bool

	// PushConcurrency bounds concurrent PushOne calls. Default 4.
	PushConcurrency int

	// PushTimeout bounds a background push. Default 30s.
	PushTimeout time.Duration

	// Rand picks random quotes. Defaults to a randomly seeded PCG.
	Rand *rand.Rand
}

// NewQuoteService creates the service with an empty collection.
// Call Load before serving requests.
func NewQuoteService(cfg QuoteServiceConfig) *QuoteService {
	if cfg.Source == nil {
		panic("app: QuoteService requires a QuoteSource")
	}

	if cfg.Store == nil {
		panic("app: QuoteService requires a SnapshotStore")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(slog.String("component", "app.QuoteService"))

	s := &QuoteService{
		source:          cfg.Source,
		store:           cfg.Store,
		exec:            NewExecutor(logger),
		logger:          logger,
		collectionKey:   cfg.CollectionKey,
		filterKey:       cfg.FilterKey,
		seed:            cfg.Seed,
		pushOnAdd:       cfg.PushOnAdd,
		pushConcurrency: cfg.PushConcurrency,
		pushTimeout:     cfg.PushTimeout,
		filter:          domain.AllCategories,
		rng:             cfg.Rand,
	}

	if s.collectionKey == "" {
		s.collectionKey = defaultCollectionKey
	}

	if s.filterKey == "" {
		s.filterKey = defaultFilterKey
	}

	if s.pushConcurrency <= 0 {
		s.pushConcurrency = defaultPushConcurrency
	}

	if s.pushTimeout <= 0 {
		s.pushTimeout = defaultPushTimeout
	}

	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	s.coll, _ = domain.NewCollection()

	return s
}

// Load restores the collection and the last selected filter from the store.
// A store that was never written yields the seed collection, which is then
// persisted. A stored collection that does not decode is a FormatError.
func (s *QuoteService) Load(ctx context.Context) error {
	logger := logging.FromContextOr(ctx, s.logger)

	data, filter, err := Parallel2(ctx,
		func(ctx context.Context) ([]byte, error) { return s.loadKey(ctx, s.collectionKey) },
		func(ctx context.Context) ([]byte, error) { return s.loadKey(ctx, s.filterKey) },
	)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if f := strings.TrimSpace(string(filter)); f != "" {
		s.filter = f
	}

	if data == nil {
		coll, err := domain.NewCollection(s.seed...)
		if err != nil {
			return fmt.Errorf("building seed collection: %w", err)
		}

		if err := s.save(ctx, coll); err != nil {
			return err
		}

		s.coll = coll

		logger.InfoContext(ctx, "initialized collection from seed", slog.Int("quotes", coll.Len()))

		return nil
	}

	quotes, err := domain.DecodeSnapshot(data)
	if err != nil {
		return fmt.Errorf("decoding stored collection: %w", err)
	}

	coll, err := domain.NewCollection(quotes...)
	if err != nil {
		return fmt.Errorf("restoring stored collection: %w", err)
	}

	s.coll = coll

	logger.InfoContext(ctx, "loaded collection",
		slog.Int("quotes", coll.Len()),
		slog.String("filter", s.filter),
	)

	return nil
}

// loadKey returns nil, nil for a missing key.
func (s *QuoteService) loadKey(ctx context.Context, key string) ([]byte, error) {
	data, err := s.store.Load(ctx, key)
	if domain.IsNotFound(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("loading %q: %w", key, err)
	}

	return data, nil
}

// save persists coll. The caller holds s.mu.
func (s *QuoteService) save(ctx context.Context, coll *domain.Collection) error {
	data, err := domain.EncodeSnapshot(coll.Quotes())
	if err != nil {
		return fmt.Errorf("encoding collection: %w", err)
	}

	if err := s.store.Save(ctx, s.collectionKey, data); err != nil {
		return fmt.Errorf("saving collection: %w", err)
	}

	return nil
}

// commit applies fn to a copy of the collection. When fn reports a change
// the copy is persisted and becomes current; otherwise it is dropped.
func (s *QuoteService) commit(ctx context.Context, fn func(*domain.Collection) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.coll.Clone()

	changed, err := fn(next)
	if err != nil || !changed {
		return err
	}

	if err := s.save(ctx, next); err != nil {
		return err
	}

	s.coll = next

	return nil
}

type addInput struct {
	text, author, category string
}

// AddLocal creates an unsynced quote, appends it and persists the result.
// Blank fields fail with a ValidationError and change nothing.
func (s *QuoteService) AddLocal(ctx context.Context, text, author, category string) (domain.Quote, error) {
	op := Operation[addInput, domain.Quote, domain.Quote, domain.Quote]{
		Name: "AddLocal",
		Validate: func(_ context.Context, in addInput) error {
			_, err := domain.NewLocalQuote(in.text, in.author, in.category)
			return err
		},
		Perform: func(_ context.Context, in addInput) (domain.Quote, error) {
			return domain.NewLocalQuote(in.text, in.author, in.category)
		},
		Verify: func(_ context.Context, _ addInput, q domain.Quote) (domain.Quote, error) {
			if q.IsSynced() || q.UpdatedAt != nil {
				return domain.Quote{}, errors.New("new quote must not carry remote identity")
			}

			return q, q.Validate()
		},
		Archive: func(ctx context.Context, _ addInput, q domain.Quote) error {
			return s.commit(ctx, func(c *domain.Collection) (bool, error) {
				c.Append(q)
				return true, nil
			})
		},
		Respond: func(_ context.Context, _ addInput, q domain.Quote) (domain.Quote, error) {
			return q, nil
		},
	}

	q, err := Execute(ctx, s.exec, op, addInput{text: text, author: author, category: category})
	if err != nil {
		return domain.Quote{}, fmt.Errorf("adding quote: %w", err)
	}

	if s.pushOnAdd {
		s.pushInBackground(ctx)
	}

	return q, nil
}

func (s *QuoteService) pushInBackground(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.pushTimeout)

	s.bg.Go(func() {
		defer cancel()

		if _, err := s.PushPending(ctx); err != nil {
			logging.FromContextOr(ctx, s.logger).WarnContext(ctx, "background push failed", slog.Any("error", err))
		}
	})
}

// Wait blocks until background pushes started by AddLocal have finished.
func (s *QuoteService) Wait() {
	s.bg.Wait()
}

// Merge reconciles the collection with a remote snapshot and persists it
// when anything was added or updated.
func (s *QuoteService) Merge(ctx context.Context, remote []domain.Quote) (domain.MergeReport, error) {
	var report domain.MergeReport

	err := s.commit(ctx, func(c *domain.Collection) (bool, error) {
		report = c.Merge(remote)
		return report.Changed(), nil
	})
	if err != nil {
		return domain.MergeReport{}, fmt.Errorf("merging remote quotes: %w", err)
	}

	logging.FromContextOr(ctx, s.logger).InfoContext(ctx, "merged remote snapshot",
		slog.Int("added", report.Added),
		slog.Int("updated", report.Updated),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("skipped", report.Skipped),
	)

	return report, nil
}

// Sync fetches the remote snapshot and merges it. A failed fetch leaves the
// collection untouched and is returned as is.
func (s *QuoteService) Sync(ctx context.Context) (domain.MergeReport, error) {
	remote, err := s.source.FetchAll(ctx)
	if err != nil {
		logging.FromContextOr(ctx, s.logger).WarnContext(ctx, "fetching remote quotes failed", slog.Any("error", err))
		return domain.MergeReport{}, fmt.Errorf("fetching remote quotes: %w", err)
	}

	return s.Merge(ctx, remote)
}

type pendingQuote struct {
	index int
	quote domain.Quote
}

func collisionKey(q domain.Quote) string {
	return q.Text + "\x00" + q.Author + "\x00" + q.Category
}

// PushPending sends every unsynced quote to the remote source. Each accepted
// quote replaces its local version in place; failures stay local and are
// retried on the next push.
func (s *QuoteService) PushPending(ctx context.Context) (PushReport, error) {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	logger := logging.FromContextOr(ctx, s.logger)

	var held int

	s.mu.Lock()
	pending := make([]pendingQuote, 0)
	for _, i := range s.coll.Pending() {
		q := s.coll.At(i)
		if _, ok := s.collided[collisionKey(q)]; ok {
			held++
			continue
		}
		pending = append(pending, pendingQuote{index: i, quote: q})
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		return PushReport{Skipped: held}, nil
	}

	fns := make([]func(context.Context) (domain.Quote, error), len(pending))
	for i, p := range pending {
		fns[i] = func(ctx context.Context) (domain.Quote, error) {
			return s.source.PushOne(ctx, p.quote)
		}
	}

	results := ParallelPartialLimit(ctx, s.pushConcurrency, fns...)

	report := PushReport{Skipped: held}

	err := s.commit(ctx, func(c *domain.Collection) (bool, error) {
		for i, r := range results {
			if r.Err != nil {
				report.Failed++
				logger.WarnContext(ctx, "pushing quote failed",
					slog.Int("index", pending[i].index),
					slog.Any("error", r.Err),
				)

				continue
			}

			pushed := r.Value
			if !pushed.IsSynced() || pushed.Validate() != nil {
				report.Failed++
				continue
			}

			if err := c.ReplaceAt(pending[i].index, pushed); err != nil {
				report.Skipped++
				if s.collided == nil {
					s.collided = make(map[string]struct{})
				}
				s.collided[collisionKey(pending[i].quote)] = struct{}{}
				logger.WarnContext(ctx, "remote assigned a known id, keeping quote local",
					slog.String("id", pushed.ID),
					slog.Int("index", pending[i].index),
					slog.Any("reason", err),
				)

				continue
			}

			report.Pushed++
		}

		return report.Pushed > 0, nil
	})
	if err != nil {
		return PushReport{}, fmt.Errorf("recording pushed quotes: %w", err)
	}

	logger.InfoContext(ctx, "pushed pending quotes",
		slog.Int("pushed", report.Pushed),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped),
	)

	return report, nil
}

// Export returns the collection encoded as a snapshot.
func (s *QuoteService) Export(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	quotes := s.coll.Quotes()
	s.mu.Unlock()

	return domain.EncodeSnapshot(quotes)
}

// Import decodes a snapshot and appends every entry. A malformed payload is
// a FormatError and changes nothing. Entries are not matched against
// existing quotes; one whose ID is already present is kept as a local copy.
func (s *QuoteService) Import(ctx context.Context, data []byte) (int, error) {
	quotes, err := domain.DecodeSnapshot(data)
	if err != nil {
		return 0, fmt.Errorf("importing quotes: %w", err)
	}

	err = s.commit(ctx, func(c *domain.Collection) (bool, error) {
		for _, q := range quotes {
			c.Append(q)
		}

		return len(quotes) > 0, nil
	})
	if err != nil {
		return 0, fmt.Errorf("importing quotes: %w", err)
	}

	logging.FromContextOr(ctx, s.logger).InfoContext(ctx, "imported quotes", slog.Int("count", len(quotes)))

	return len(quotes), nil
}

// List returns every quote in insertion order.
func (s *QuoteService) List(_ context.Context) []domain.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.coll.Quotes()
}

// Filter returns the quotes in category. Empty means all.
func (s *QuoteService) Filter(_ context.Context, category string) []domain.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.coll.Filter(normalizeCategory(category))
}

// Categories returns "all" followed by every category in use.
func (s *QuoteService) Categories(_ context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.coll.Categories()
}

// Random returns a random quote from category. Empty means all.
func (s *QuoteService) Random(_ context.Context, category string) (domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.coll.Random(normalizeCategory(category), s.rng)
}

// SelectFilter remembers category as the last selected filter.
func (s *QuoteService) SelectFilter(ctx context.Context, category string) error {
	category = normalizeCategory(category)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Save(ctx, s.filterKey, []byte(category)); err != nil {
		return fmt.Errorf("saving filter: %w", err)
	}

	s.filter = category

	return nil
}

// LastFilter returns the last selected filter, "all" if none was chosen.
func (s *QuoteService) LastFilter(_ context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.filter
}

// Len returns the number of quotes and how many of them are unsynced.
func (s *QuoteService) Len(_ context.Context) (total, pending int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.coll.Len(), len(s.coll.Pending())
}

func normalizeCategory(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return domain.AllCategories
	}

	return category
}
