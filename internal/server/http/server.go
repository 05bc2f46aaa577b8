// Package httpserver exposes the loader's operational endpoints: liveness,
// readiness, run status and Prometheus metrics.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/medline-loader/internal/database"
	"github.com/helixir/medline-loader/internal/ingest"
)

// HealthChecker reports the health of a backing store. *database.DB satisfies it.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// StatusProvider reports load progress. *ingest.Tracker satisfies it.
type StatusProvider interface {
	Snapshot() ingest.Status
}

// Server is the operational HTTP server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	health     HealthChecker
	status     StatusProvider
	gatherer   prometheus.Gatherer
	metrics    string
	logger     zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MetricsPath serves Prometheus metrics when non-empty.
	MetricsPath string
}

// Option configures a Server.
type Option func(*Server)

// WithHealthChecker makes /readyz depend on a backing store.
func WithHealthChecker(h HealthChecker) Option {
	return func(s *Server) {
		s.health = h
	}
}

// WithStatus serves load progress on /status.
func WithStatus(p StatusProvider) Option {
	return func(s *Server) {
		s.status = p
	}
}

// WithGatherer replaces the default Prometheus registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewServer creates a new HTTP server.
func NewServer(cfg Config, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		gatherer: prometheus.DefaultGatherer,
		metrics:  cfg.MetricsPath,
		logger:   logger.With().Str("component", "http-server").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(requestLogger(s.logger))

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)
	if s.status != nil {
		r.Get("/status", s.statusHandler)
	}
	if s.metrics != "" {
		r.Method(http.MethodGet, s.metrics, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// Start listens and serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("address", ln.Addr().String()).Msg("HTTP server starting")
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports liveness. It never touches dependencies.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports whether the backing store is reachable.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	health := s.health.Health(r.Context())
	if !health.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"database": health,
	})
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Snapshot())
}
