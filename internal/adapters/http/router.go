package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quotesync/internal/adapters/http/dto"
	"github.com/jsamuelsen/quotesync/internal/adapters/http/handlers"
	"github.com/jsamuelsen/quotesync/internal/adapters/http/middleware"
	"github.com/jsamuelsen/quotesync/internal/platform/telemetry"
)

// DefaultRequestTimeout is the default deadline of an API request.
const DefaultRequestTimeout = 30 * time.Second

// RouterConfig contains what SetupRouter wires together.
type RouterConfig struct {
	Logger *slog.Logger

	// ServiceName names the server spans.
	ServiceName string

	// Metrics records request metrics. Nil records none.
	Metrics *telemetry.Metrics

	HealthHandler *handlers.HealthHandler
	QuoteHandler  *handlers.QuoteHandler

	// Timeout is the deadline of /api/v1 requests. Zero means none.
	Timeout time.Duration
}

// SetupRouter installs middleware and routes on engine.
// Middleware order, first to last:
//  1. Recovery
//  2. Request ID
//  3. Correlation ID
//  4. Tracing, then metrics and trace ID logging
//  5. Request logging (skips /-/)
//
// /-/ carries the health and metrics endpoints, /api/v1 the quote API with
// a per-request deadline.
func SetupRouter(engine *gin.Engine, cfg RouterConfig) {
	engine.Use(
		middleware.Recovery(cfg.Logger),
		middleware.RequestID(),
		middleware.CorrelationID(),
		telemetry.TracingMiddleware(cfg.ServiceName),
		telemetry.Middleware(cfg.Metrics),
		middleware.Logging(cfg.Logger),
	)

	engine.HandleMethodNotAllowed = true
	engine.NoRoute(func(c *gin.Context) {
		dto.Abort(c, dto.ErrorCodeNotFound, "no route for "+c.Request.Method+" "+c.Request.URL.Path)
	})
	engine.NoMethod(func(c *gin.Context) {
		resp := dto.NewErrorResponse(dto.ErrorCodeBadRequest, "method not allowed").WithTraceID(dto.GetTraceID(c))
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, resp)
	})

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.Register(engine)
	}

	apiV1 := engine.Group("/api/v1")
	if cfg.Timeout > 0 {
		apiV1.Use(middleware.Timeout(cfg.Timeout))
	}

	if cfg.QuoteHandler != nil {
		cfg.QuoteHandler.RegisterQuoteRoutes(apiV1)
	}
}

// NewDefaultRouterConfig creates a RouterConfig with the default timeout.
func NewDefaultRouterConfig(
	logger *slog.Logger,
	serviceName string,
	healthHandler *handlers.HealthHandler,
	quoteHandler *handlers.QuoteHandler,
) RouterConfig {
	return RouterConfig{
		Logger:        logger,
		ServiceName:   serviceName,
		HealthHandler: healthHandler,
		QuoteHandler:  quoteHandler,
		Timeout:       DefaultRequestTimeout,
	}
}
