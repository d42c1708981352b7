// Package ports defines the interfaces the application core depends on.
// Adapters implement them; the app package only ever sees these types.
package ports

import (
	"context"

	"github.com/jsamuelsen/quotesync/internal/domain"
)

// QuoteSource is the remote collection the local one reconciles against.
//
// Implementations translate transport failures into domain errors:
// network failures and 5xx responses become *domain.UnavailableError,
// 401/403 become *domain.ForbiddenError.
type QuoteSource interface {
	// FetchAll returns every quote the remote currently holds.
	// Records that cannot be translated are dropped by the adapter.
	FetchAll(ctx context.Context) ([]domain.Quote, error)

	// PushOne submits a local quote and returns it as the remote knows it,
	// with ID and UpdatedAt assigned.
	PushOne(ctx context.Context, q domain.Quote) (domain.Quote, error)
}

// SnapshotStore persists opaque blobs under string keys.
//
// The engine stores the encoded collection under one key and the last
// selected category filter under another.
type SnapshotStore interface {
	// Save writes data under key, replacing any previous value.
	Save(ctx context.Context, key string, data []byte) error

	// Load returns the value stored under key, or an error matching
	// domain.ErrNotFound when nothing was ever saved there.
	Load(ctx context.Context, key string) ([]byte, error)
}
