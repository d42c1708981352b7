package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quotesync/internal/platform/logging"
)

const (
	// HeaderRequestID carries the per-request ID.
	HeaderRequestID = "X-Request-ID"

	// ContextKeyRequestID is the gin context key of the request ID.
	ContextKeyRequestID = "request_id"
)

// RequestID takes X-Request-ID from the request or generates one. The ID is
// echoed in the response, attached to the context logger, and forwarded on
// calls to the quote source.
func RequestID() gin.HandlerFunc {
	return createIDMiddleware(idMiddlewareConfig{
		headerName: HeaderRequestID,
		contextKey: ContextKeyRequestID,
		enrich:     []contextEnricher{ContextWithRequestID, logging.WithRequestID},
	})
}

// GetRequestID returns the request ID of c, or "".
func GetRequestID(c *gin.Context) string {
	return getIDFromContext(c, ContextKeyRequestID)
}
