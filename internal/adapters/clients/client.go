package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/jsamuelsen/quotesync/internal/adapters/http/middleware"
	"github.com/jsamuelsen/quotesync/internal/platform/config"
	"github.com/jsamuelsen/quotesync/internal/platform/logging"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultJitterFactor = 0.25

	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second
)

// Config describes one downstream service.
type Config struct {
	BaseURL string

	// ServiceName labels logs, spans and metrics. Required.
	ServiceName string

	// Timeout bounds a single attempt, not the whole call.
	Timeout time.Duration

	Retry     config.RetryConfig
	Circuit   config.CircuitBreakerConfig
	Transport config.TransportConfig

	// RetryNonIdempotent lets POST be retried. A retried push can create a
	// second remote record, so it is off unless asked for.
	RetryNonIdempotent bool

	UserAgent string

	Logger *slog.Logger
}

// Client talks to the quote source. Every call goes through the circuit
// breaker, is retried with jittered exponential backoff where safe, and
// carries the caller's request and correlation IDs.
type Client struct {
	http    *http.Client
	baseURL string
	cfg     *Config
	logger  *slog.Logger
	breaker *CircuitBreaker
	inst    *instruments
}

// New validates cfg, fills in defaults and builds the client.
func New(cfg *Config) (*Client, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("config is required")
	case cfg.ServiceName == "":
		return nil, errors.New("service name is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	cfg.Retry.MaxAttempts = max(cfg.Retry.MaxAttempts, 1)

	base := cfg.Logger
	if base == nil {
		base = slog.Default()
	}

	logger := base.With(slog.String("component", "clients.Client"), slog.String("downstream", cfg.ServiceName))

	inst, err := newInstruments(cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:   cfg.Circuit.MaxFailures,
		Timeout:       cfg.Circuit.Timeout,
		HalfOpenLimit: cfg.Circuit.HalfOpenLimit,
	})
	breaker.OnStateChange(func(from, to State) {
		logger.Warn("quote source circuit moved", slog.String("from", from.String()), slog.String("to", to.String()))
	})

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = orDefault(cfg.Transport.MaxIdleConns, defaultMaxIdleConns)
	transport.MaxIdleConnsPerHost = orDefault(cfg.Transport.MaxIdleConnsPerHost, defaultMaxIdleConnsPerHost)
	transport.IdleConnTimeout = orDefault(cfg.Transport.IdleConnTimeout, defaultIdleConnTimeout)

	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout, Transport: transport},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cfg:     cfg,
		logger:  logger,
		breaker: breaker,
		inst:    inst,
	}, nil
}

func orDefault[T int | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}

	return def
}

// ServiceName returns the configured downstream name.
func (c *Client) ServiceName() string {
	return c.cfg.ServiceName
}

// CircuitState reports the breaker state.
func (c *Client) CircuitState() State {
	return c.breaker.State()
}

// Get fetches path and asks for JSON.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.send(ctx, http.MethodGet, path, nil)
}

// Post sends body as JSON. The body is buffered so a permitted retry can
// replay it.
func (c *Client) Post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	return c.send(ctx, http.MethodPost, path, body)
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var payload io.Reader = http.NoBody
	if body != nil {
		payload = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), payload)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}

	return c.Do(ctx, req)
}

// Do sends req. It fails with ErrCircuitOpen without touching the network
// while the breaker is open. Transport errors and 5xx/429 answers that
// outlast every attempt come back wrapped in ErrMaxRetriesExceeded; any
// other status is returned to the caller as a response.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()
	logger := logging.FromContextOr(ctx, c.logger).With(
		slog.String("downstream", c.cfg.ServiceName),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
	)

	if !c.breaker.Allow() {
		c.inst.record(ctx, req.Method, 0, time.Since(start), "circuit_open")
		logger.WarnContext(ctx, "request blocked by circuit breaker")

		return nil, ErrCircuitOpen
	}

	c.injectHeaders(ctx, req)

	ctx, span := c.inst.startSpan(ctx, req)
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.withRetry(ctx, req, logger)
	elapsed := time.Since(start)

	if err != nil {
		c.breaker.RecordFailure()
		c.inst.fail(ctx, span, req.Method, elapsed, err)
		logger.ErrorContext(ctx, "request failed", slog.Duration("duration", elapsed), slog.Any("error", err))

		return nil, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, err)
	}

	c.breaker.RecordSuccess()
	c.inst.succeed(ctx, span, req.Method, resp.StatusCode, elapsed)
	logger.DebugContext(ctx, "request completed", slog.Int("status", resp.StatusCode), slog.Duration("duration", elapsed))

	return resp, nil
}

func (c *Client) injectHeaders(ctx context.Context, req *http.Request) {
	for header, value := range map[string]string{
		middleware.HeaderRequestID:     middleware.RequestIDFromContext(ctx),
		middleware.HeaderCorrelationID: middleware.CorrelationIDFromContext(ctx),
		"User-Agent":                   c.cfg.UserAgent,
	} {
		if value != "" {
			req.Header.Set(header, value)
		}
	}
}

func (c *Client) buildURL(path string) string {
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}
