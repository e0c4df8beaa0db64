package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/banphlet/trigger.dev-rails/internal/config"
	"github.com/banphlet/trigger.dev-rails/internal/events"
	"github.com/banphlet/trigger.dev-rails/internal/runs"
	"github.com/banphlet/trigger.dev-rails/internal/scripts"
	"github.com/banphlet/trigger.dev-rails/internal/state"
)

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the bearer token protecting everything under /api/.
	APIKey string
	// Scripts carries the interpreter overrides applied to triggered tasks.
	Scripts config.ScriptsConfig
}

// Server exposes runs, task triggering and the live event stream over HTTP.
type Server struct {
	config     Config
	runs       *runs.Store
	metadata   *state.Store
	tasks      map[string]config.TaskConfig
	supervisor *scripts.Supervisor
	hub        *events.Hub
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// New creates a new API server instance.
func New(cfg Config, runStore *runs.Store, metadata *state.Store, tasks map[string]config.TaskConfig, supervisor *scripts.Supervisor, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:     cfg,
		runs:       runStore,
		metadata:   metadata,
		tasks:      tasks,
		supervisor: supervisor,
		hub:        hub,
		logger:     logger.With("component", "api"),
		startedAt:  time.Now(),
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// Scripts triggered synchronously and SSE streams hold the
		// connection open; no write deadline.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	// Protected API.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/api/v1/runs", s.handleListRuns)
		r.Get("/api/v1/runs/{runID}", s.handleGetRun)
		r.Post("/api/v1/tasks/{task}/trigger", s.handleTriggerTask)
		r.Get("/api/v1/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
