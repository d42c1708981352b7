// Package http is the gin adapter: server lifecycle and routing of the
// quote API.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quotesync/internal/platform/config"
)

// Server serves a gin engine and drains it on Shutdown.
type Server struct {
	engine *gin.Engine
	srv    *http.Server
	logger *slog.Logger

	// bound is the listener address once Start has bound it.
	bound atomic.Pointer[string]
}

// New builds a server for cfg without listening yet. Request bodies are
// capped at cfg.MaxRequestSize, which also bounds an import payload.
func New(cfg *config.ServerConfig, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.ContextWithFallback = true
	engine.Use(limitBody(cfg.MaxRequestSize))

	return &Server{
		engine: engine,
		srv: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:      engine,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger: logger,
	}
}

// Engine is where routes are registered.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Addr is the bound address after Start, the configured one before.
func (s *Server) Addr() string {
	if addr := s.bound.Load(); addr != nil {
		return *addr
	}

	return s.srv.Addr
}

// Start binds the listener and serves in the background. The channel
// carries a bind or serve failure and is closed once serving stops.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)

	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		errCh <- fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
		close(errCh)

		return errCh
	}

	addr := ln.Addr().String()
	s.bound.Store(&addr)

	s.logger.Info("quote API listening",
		slog.String("addr", addr),
		slog.Duration("read_timeout", s.srv.ReadTimeout),
		slog.Duration("write_timeout", s.srv.WriteTimeout),
	)

	go func() {
		defer close(errCh)

		if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serving quote API: %w", err)
		}
	}()

	return errCh
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("draining quote API")

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("draining quote API: %w", err)
	}

	s.logger.Info("quote API stopped")

	return nil
}

func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
