package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotesync/internal/adapters/storage/memory"
	"github.com/jsamuelsen/quotesync/internal/domain"
	"github.com/jsamuelsen/quotesync/internal/mocks"
)

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}

	return &t
}

func newService(t *testing.T, source *mocks.MockQuoteSource, store *memory.Store, seed []domain.Quote) *QuoteService {
	t.Helper()

	svc := NewQuoteService(QuoteServiceConfig{
		Source: source,
		Store:  store,
		Logger: discardLogger(),
		Seed:   seed,
		Rand:   rand.New(rand.NewPCG(7, 7)),
	})
	require.NoError(t, svc.Load(context.Background()))

	return svc
}

func storedQuotes(t *testing.T, store *memory.Store) []domain.Quote {
	t.Helper()

	data, err := store.Load(context.Background(), "quotes")
	require.NoError(t, err)

	quotes, err := domain.DecodeSnapshot(data)
	require.NoError(t, err)

	return quotes
}

func TestNewQuoteService_PanicsWithoutDependencies(t *testing.T) {
	assert.Panics(t, func() {
		NewQuoteService(QuoteServiceConfig{Store: memory.New()})
	})

	assert.Panics(t, func() {
		NewQuoteService(QuoteServiceConfig{Source: mocks.NewMockQuoteSource(t)})
	})
}

func TestNewQuoteService_DefaultsLogger(t *testing.T) {
	svc := NewQuoteService(QuoteServiceConfig{
		Source: mocks.NewMockQuoteSource(t),
		Store:  memory.New(),
	})

	require.NotNil(t, svc)
	assert.Equal(t, domain.AllCategories, svc.LastFilter(context.Background()))
	assert.Empty(t, svc.List(context.Background()))
}

func TestQuoteService_LoadSeedsEmptyStore(t *testing.T) {
	store := memory.New()
	svc := newService(t, mocks.NewMockQuoteSource(t), store, DefaultSeed())

	assert.Len(t, svc.List(context.Background()), 3)
	assert.Equal(t, []string{"all", "Inspiration", "Motivation"}, svc.Categories(context.Background()))

	if diff := cmp.Diff(DefaultSeed(), storedQuotes(t, store)); diff != "" {
		t.Errorf("seed not persisted (-want +got):\n%s", diff)
	}
}

func TestQuoteService_LoadRestoresStoredState(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	data, err := domain.EncodeSnapshot([]domain.Quote{{ID: "1", Text: "T", Author: "A", Category: "Synced", UpdatedAt: ts("2024-01-01T00:00:00Z")}})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "quotes", data))
	require.NoError(t, store.Save(ctx, "lastFilter", []byte("Synced")))

	svc := newService(t, mocks.NewMockQuoteSource(t), store, DefaultSeed())

	require.Len(t, svc.List(ctx), 1)
	assert.Equal(t, "1", svc.List(ctx)[0].ID)
	assert.Equal(t, "Synced", svc.LastFilter(ctx))
}

func TestQuoteService_LoadRejectsMalformedSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Save(ctx, "quotes", []byte(`{"not":"an array"}`)))

	svc := NewQuoteService(QuoteServiceConfig{
		Source: mocks.NewMockQuoteSource(t),
		Store:  store,
		Logger: discardLogger(),
	})

	err := svc.Load(ctx)
	require.Error(t, err)
	assert.True(t, domain.IsFormat(err))
}

func TestQuoteService_LoadPropagatesStoreFailure(t *testing.T) {
	store := mocks.NewMockSnapshotStore(t)
	store.EXPECT().Load(mock.Anything, "quotes").Return(nil, domain.NewUnavailableError("sqlite", "disk I/O error"))
	store.EXPECT().Load(mock.Anything, "lastFilter").Return(nil, domain.NewNotFoundError("snapshot", "lastFilter")).Maybe()

	svc := NewQuoteService(QuoteServiceConfig{
		Source: mocks.NewMockQuoteSource(t),
		Store:  store,
		Logger: discardLogger(),
	})

	err := svc.Load(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsUnavailable(err))
}

func TestQuoteService_AddLocal(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		author   string
		category string
		errCheck func(error) bool
	}{
		{name: "valid quote", text: "Be yourself", author: "Wilde", category: "Wisdom"},
		{name: "empty text", text: "", author: "Author", category: "Cat", errCheck: domain.IsValidation},
		{name: "blank author", text: "T", author: "  ", category: "Cat", errCheck: domain.IsValidation},
		{name: "empty category", text: "T", author: "A", category: "", errCheck: domain.IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.New()
			svc := newService(t, mocks.NewMockQuoteSource(t), store, DefaultSeed())
			before := storedQuotes(t, store)

			q, err := svc.AddLocal(ctx, tt.text, tt.author, tt.category)

			if tt.errCheck != nil {
				require.Error(t, err)
				assert.True(t, tt.errCheck(err), "unexpected error type: %v", err)

				step, ok := FailedStep(err)
				require.True(t, ok)
				assert.Equal(t, StepValidate, step)

				assert.Len(t, svc.List(ctx), 3)
				assert.Equal(t, before, storedQuotes(t, store))

				return
			}

			require.NoError(t, err)
			assert.False(t, q.IsSynced())
			assert.Equal(t, tt.text, q.Text)

			list := svc.List(ctx)
			require.Len(t, list, 4)
			assert.True(t, q.Equal(list[3]))
			assert.Len(t, storedQuotes(t, store), 4)
		})
	}
}

func TestQuoteService_AddLocalSaveFailureLeavesCollection(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockSnapshotStore(t)
	store.EXPECT().Load(mock.Anything, mock.Anything).Return(nil, domain.NewNotFoundError("snapshot", ""))
	store.EXPECT().Save(mock.Anything, "quotes", mock.Anything).Return(nil).Once()
	store.EXPECT().Save(mock.Anything, "quotes", mock.Anything).Return(errors.New("disk full")).Once()

	svc := NewQuoteService(QuoteServiceConfig{
		Source: mocks.NewMockQuoteSource(t),
		Store:  store,
		Logger: discardLogger(),
		Seed:   DefaultSeed(),
	})
	require.NoError(t, svc.Load(ctx))

	_, err := svc.AddLocal(ctx, "T", "A", "C")

	require.Error(t, err)
	step, ok := FailedStep(err)
	require.True(t, ok)
	assert.Equal(t, StepArchive, step)
	assert.Len(t, svc.List(ctx), 3)
}

func TestQuoteService_AddLocalPushesInBackground(t *testing.T) {
	ctx := context.Background()
	source := mocks.NewMockQuoteSource(t)
	store := memory.New()

	source.EXPECT().PushOne(mock.Anything, mock.MatchedBy(func(q domain.Quote) bool {
		return q.Text == "T" && !q.IsSynced()
	})).Return(domain.Quote{ID: "101", Text: "T", Author: "A", Category: "C", UpdatedAt: ts("2024-01-01T00:00:00Z")}, nil)

	svc := NewQuoteService(QuoteServiceConfig{
		Source:    source,
		Store:     store,
		Logger:    discardLogger(),
		PushOnAdd: true,
	})
	require.NoError(t, svc.Load(ctx))

	_, err := svc.AddLocal(ctx, "T", "A", "C")
	require.NoError(t, err)

	svc.Wait()

	list := svc.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, "101", list[0].ID)
	assert.Equal(t, "101", storedQuotes(t, store)[0].ID)
}

func TestQuoteService_Sync(t *testing.T) {
	tests := []struct {
		name     string
		local    []domain.Quote
		remote   []domain.Quote
		fetchErr error
		want     []domain.Quote
		report   domain.MergeReport
		errCheck func(error) bool
	}{
		{
			name:   "later remote replaces local",
			local:  []domain.Quote{{ID: "1", Text: "A", Author: "x", Category: "c", UpdatedAt: ts("2024-01-01T00:00:00Z")}},
			remote: []domain.Quote{{ID: "1", Text: "B", Author: "x", Category: "c", UpdatedAt: ts("2024-01-02T00:00:00Z")}},
			want:   []domain.Quote{{ID: "1", Text: "B", Author: "x", Category: "c", UpdatedAt: ts("2024-01-02T00:00:00Z")}},
			report: domain.MergeReport{Updated: 1},
		},
		{
			name:   "unknown remote is appended",
			remote: []domain.Quote{{ID: "5", Text: "X", Author: "x", Category: "c", UpdatedAt: ts("2024-01-01T00:00:00Z")}},
			want:   []domain.Quote{{ID: "5", Text: "X", Author: "x", Category: "c", UpdatedAt: ts("2024-01-01T00:00:00Z")}},
			report: domain.MergeReport{Added: 1},
		},
		{
			name:     "fetch failure leaves collection alone",
			local:    []domain.Quote{{Text: "local", Author: "me", Category: "c"}},
			fetchErr: domain.NewUnavailableError("quote-source", "connection refused"),
			want:     []domain.Quote{{Text: "local", Author: "me", Category: "c"}},
			errCheck: domain.IsUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			source := mocks.NewMockQuoteSource(t)
			source.EXPECT().FetchAll(mock.Anything).Return(tt.remote, tt.fetchErr)

			store := memory.New()
			svc := newService(t, source, store, tt.local)

			report, err := svc.Sync(ctx)

			if tt.errCheck != nil {
				require.Error(t, err)
				assert.True(t, tt.errCheck(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.report, report)
			}

			if diff := cmp.Diff(tt.want, svc.List(ctx)); diff != "" {
				t.Errorf("collection mismatch (-want +got):\n%s", diff)
			}

			if diff := cmp.Diff(tt.want, storedQuotes(t, store)); diff != "" {
				t.Errorf("store mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestQuoteService_MergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, mocks.NewMockQuoteSource(t), memory.New(), DefaultSeed())

	remote := []domain.Quote{
		{ID: "1", Text: "sunt aut facere", Author: "quia et suscipit", Category: "Synced", UpdatedAt: ts("2024-01-01T00:00:00Z")},
		{ID: "2", Text: "qui est esse", Author: "est rerum tempore", Category: "Synced"},
	}

	first, err := svc.Merge(ctx, remote)
	require.NoError(t, err)
	once := svc.List(ctx)

	second, err := svc.Merge(ctx, remote)
	require.NoError(t, err)

	assert.Equal(t, domain.MergeReport{Added: 2}, first)
	assert.Equal(t, domain.MergeReport{Unchanged: 2}, second)

	if diff := cmp.Diff(once, svc.List(ctx)); diff != "" {
		t.Errorf("second merge changed the collection (-once +twice):\n%s", diff)
	}
}

func TestQuoteService_MergeUnchangedDoesNotSave(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockSnapshotStore(t)
	store.EXPECT().Load(mock.Anything, mock.Anything).Return(nil, domain.NewNotFoundError("snapshot", ""))
	store.EXPECT().Save(mock.Anything, "quotes", mock.Anything).Return(nil).Once()

	svc := NewQuoteService(QuoteServiceConfig{
		Source: mocks.NewMockQuoteSource(t),
		Store:  store,
		Logger: discardLogger(),
		Seed:   []domain.Quote{{ID: "1", Text: "T", Author: "A", Category: "C", UpdatedAt: ts("2024-02-01T00:00:00Z")}},
	})
	require.NoError(t, svc.Load(ctx))

	report, err := svc.Merge(ctx, []domain.Quote{{ID: "1", Text: "old", Author: "A", Category: "C", UpdatedAt: ts("2024-01-01T00:00:00Z")}})

	require.NoError(t, err)
	assert.False(t, report.Changed())
}

func TestQuoteService_PushPending(t *testing.T) {
	ctx := context.Background()
	source := mocks.NewMockQuoteSource(t)
	store := memory.New()

	seed := []domain.Quote{
		{Text: "first", Author: "a", Category: "c"},
		{ID: "1", Text: "synced", Author: "b", Category: "c"},
		{Text: "second", Author: "a", Category: "c"},
	}

	source.EXPECT().PushOne(mock.Anything, mock.MatchedBy(func(q domain.Quote) bool { return q.Text == "first" })).
		Return(domain.Quote{ID: "101", Text: "first", Author: "a", Category: "c", UpdatedAt: ts("2024-01-01T00:00:00Z")}, nil)
	source.EXPECT().PushOne(mock.Anything, mock.MatchedBy(func(q domain.Quote) bool { return q.Text == "second" })).
		Return(domain.Quote{}, domain.NewUnavailableError("quote-source", "timeout"))

	svc := newService(t, source, store, seed)

	report, err := svc.PushPending(ctx)

	require.NoError(t, err)
	assert.Equal(t, PushReport{Pushed: 1, Failed: 1}, report)

	list := svc.List(ctx)
	require.Len(t, list, 3)
	assert.Equal(t, "101", list[0].ID)
	assert.Equal(t, "1", list[1].ID)
	assert.False(t, list[2].IsSynced())

	total, pending := svc.Len(ctx)
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, pending)
	assert.Equal(t, "101", storedQuotes(t, store)[0].ID)
}

func TestQuoteService_PushPendingKeepsLocalOnKnownID(t *testing.T) {
	ctx := context.Background()
	source := mocks.NewMockQuoteSource(t)

	source.EXPECT().PushOne(mock.Anything, mock.Anything).
		Return(domain.Quote{ID: "1", Text: "local", Author: "a", Category: "c"}, nil)

	svc := newService(t, source, memory.New(), []domain.Quote{
		{ID: "1", Text: "synced", Author: "b", Category: "c"},
		{Text: "local", Author: "a", Category: "c"},
	})

	report, err := svc.PushPending(ctx)

	require.NoError(t, err)
	assert.Equal(t, PushReport{Skipped: 1}, report)
	assert.False(t, svc.List(ctx)[1].IsSynced())
}

func TestQuoteService_PushPendingDoesNotResendCollidedQuote(t *testing.T) {
	ctx := context.Background()
	source := mocks.NewMockQuoteSource(t)

	source.EXPECT().PushOne(mock.Anything, mock.Anything).
		Return(domain.Quote{ID: "1", Text: "local", Author: "a", Category: "c"}, nil).
		Once()

	svc := newService(t, source, memory.New(), []domain.Quote{
		{ID: "1", Text: "synced", Author: "b", Category: "c"},
		{Text: "local", Author: "a", Category: "c"},
	})

	first, err := svc.PushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, PushReport{Skipped: 1}, first)

	second, err := svc.PushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, PushReport{Skipped: 1}, second)

	_, pending := svc.Len(ctx)
	assert.Equal(t, 1, pending)
}

func TestQuoteService_PushPendingNothingToDo(t *testing.T) {
	svc := newService(t, mocks.NewMockQuoteSource(t), memory.New(), nil)

	report, err := svc.PushPending(context.Background())

	require.NoError(t, err)
	assert.Equal(t, PushReport{}, report)
}

func TestQuoteService_ExportImport(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, mocks.NewMockQuoteSource(t), memory.New(), DefaultSeed())

	data, err := svc.Export(ctx)
	require.NoError(t, err)

	n, err := svc.Import(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, svc.List(ctx), 6)
}

func TestQuoteService_ImportMalformedLeavesCollection(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newService(t, mocks.NewMockQuoteSource(t), store, DefaultSeed())

	_, err := svc.Import(ctx, []byte(`[{"text":"ok","author":"a","category":"c"},{"text":"missing author"}]`))

	require.Error(t, err)
	assert.True(t, domain.IsFormat(err))
	assert.Len(t, svc.List(ctx), 3)
	assert.Len(t, storedQuotes(t, store), 3)
}

func TestQuoteService_ImportNumericIDs(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newService(t, mocks.NewMockQuoteSource(t), store, nil)

	n, err := svc.Import(ctx, []byte(`[
		{"id":101,"text":"A","author":"B","category":"Synced","updatedAt":"2024-01-01T00:00:00.000Z"},
		{"id":null,"text":"C","author":"D","category":"Life","updatedAt":null}
	]`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list := svc.List(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, "101", list[0].ID)
	assert.True(t, list[0].IsSynced())
	assert.False(t, list[1].IsSynced())

	data, err := svc.Export(ctx)
	require.NoError(t, err)

	again, err := domain.DecodeSnapshot(data)
	require.NoError(t, err)
	if diff := cmp.Diff(list, again); diff != "" {
		t.Errorf("export after import mismatch (-want +got):\n%s", diff)
	}

	assert.Len(t, storedQuotes(t, store), 2)
}

func TestQuoteService_ImportKnownIDBecomesLocal(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, mocks.NewMockQuoteSource(t), memory.New(), []domain.Quote{
		{ID: "1", Text: "synced", Author: "a", Category: "c"},
	})

	n, err := svc.Import(ctx, []byte(`[{"id":"1","text":"copy","author":"a","category":"c"}]`))

	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list := svc.List(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, "synced", list[0].Text)
	assert.False(t, list[1].IsSynced())
}

func TestQuoteService_FilterRandomAndSelection(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newService(t, mocks.NewMockQuoteSource(t), store, DefaultSeed())

	assert.Len(t, svc.Filter(ctx, ""), 3)
	assert.Len(t, svc.Filter(ctx, "Inspiration"), 2)
	assert.Empty(t, svc.Filter(ctx, "inspiration"))

	q, err := svc.Random(ctx, "Motivation")
	require.NoError(t, err)
	assert.Equal(t, "Quote 2", q.Text)

	_, err = svc.Random(ctx, "Humor")
	assert.True(t, domain.IsNotFound(err))

	require.NoError(t, svc.SelectFilter(ctx, "Motivation"))
	assert.Equal(t, "Motivation", svc.LastFilter(ctx))

	saved, err := store.Load(ctx, "lastFilter")
	require.NoError(t, err)
	assert.Equal(t, "Motivation", string(saved))

	require.NoError(t, svc.SelectFilter(ctx, " "))
	assert.Equal(t, "all", svc.LastFilter(ctx))
}
