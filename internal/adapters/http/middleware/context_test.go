package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextIDs(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, CorrelationIDFromContext(ctx))

	ctx = ContextWithRequestID(ctx, "req-1")
	ctx = ContextWithCorrelationID(ctx, "sync-cycle-7")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "sync-cycle-7", CorrelationIDFromContext(ctx))

	// Background pushes detach from the request but keep its IDs.
	detached := context.WithoutCancel(ctx)
	assert.Equal(t, "req-1", RequestIDFromContext(detached))
	assert.Equal(t, "sync-cycle-7", CorrelationIDFromContext(detached))

	//nolint:staticcheck // a plain string key must not shadow ours
	shadowed := context.WithValue(ctx, "request_id", "other")
	assert.Equal(t, "req-1", RequestIDFromContext(shadowed))

	//nolint:staticcheck // nil context is tolerated by the getters
	assert.Empty(t, RequestIDFromContext(nil))
}
