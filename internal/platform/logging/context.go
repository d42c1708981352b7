package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
)

type ctxKey struct{}

var fallbackLogger atomic.Pointer[slog.Logger]

func init() {
	fallbackLogger.Store(slog.Default())
}

// SetDefault makes logger the fallback of FromContext and slog's default.
func SetDefault(logger *slog.Logger) {
	fallbackLogger.Store(logger)
	slog.SetDefault(logger)
}

// FromContext returns the request-scoped logger, or the default one.
func FromContext(ctx context.Context) *slog.Logger {
	return FromContextOr(ctx, nil)
}

// FromContextOr prefers the request-scoped logger over fallback, so
// components keep request attributes when called from a handler. A nil
// fallback means the default logger.
func FromContextOr(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return logger
		}
	}

	if fallback != nil {
		return fallback
	}

	return fallbackLogger.Load()
}

// WithContext stores logger in ctx.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func with(ctx context.Context, key, value string) context.Context {
	return WithContext(ctx, FromContext(ctx).With(slog.String(key, value)))
}

// WithRequestID, WithTraceID and WithCorrelationID return a ctx whose
// logger tags every line with the ID.
func WithRequestID(ctx context.Context, id string) context.Context { return with(ctx, "request_id", id) }

func WithTraceID(ctx context.Context, id string) context.Context { return with(ctx, "trace_id", id) }

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return with(ctx, "correlation_id", id)
}
