// Package server exposes a Riddler registry over HTTP+JSON.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/riddler/internal/auth"
	"github.com/mesh-intelligence/riddler/internal/logging"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

// Defaults for Config fields left zero.
const (
	DefaultAddr         = "127.0.0.1:8420"
	DefaultMaxBodyBytes = 64 << 20
	shutdownTimeout     = 10 * time.Second
)

// Config holds configuration for the HTTP server.
type Config struct {
	Registry types.Registry
	Addr     string
	Logger   *slog.Logger

	// Version and Backend are reported by the status resource.
	Version string
	Backend string

	// Auth guards the /v1 routes when set.
	Auth *auth.Authenticator

	// RateLimit is the sustained requests per second across all clients;
	// zero disables limiting.
	RateLimit float64
	RateBurst int

	MaxBodyBytes int64
}

// Server serves one registry.
type Server struct {
	cfg     Config
	handler http.Handler
	logger  *slog.Logger
}

// New builds the router for cfg.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.RateLimit > 0 && cfg.RateBurst <= 0 {
		cfg.RateBurst = int(cfg.RateLimit) + 1
	}
	s := &Server{cfg: cfg, logger: cfg.Logger}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve listens on the configured address and blocks until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.handler,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting riddler server", "addr", ln.Addr().String(), "backend", s.cfg.Backend)

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.logger.Info("shutting down riddler server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
