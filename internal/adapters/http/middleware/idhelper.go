package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxIDLength caps IDs accepted from clients; longer ones are replaced.
const maxIDLength = 128

type contextEnricher func(ctx context.Context, id string) context.Context

type idMiddlewareConfig struct {
	headerName string
	contextKey string

	// enrich stores the ID in the request context, in order.
	enrich []contextEnricher
}

// createIDMiddleware takes the ID from the request header or generates a
// UUID, then exposes it on the gin context, the response and the request
// context.
func createIDMiddleware(cfg idMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(cfg.headerName)
		if id == "" || len(id) > maxIDLength {
			id = uuid.NewString()
		}

		c.Set(cfg.contextKey, id)
		c.Header(cfg.headerName, id)

		ctx := c.Request.Context()
		for _, fn := range cfg.enrich {
			ctx = fn(ctx, id)
		}

		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func getIDFromContext(c *gin.Context, key string) string {
	return c.GetString(key)
}
