// Package api exposes the daemon's HTTP surface: health, pool status,
// synchronous interpretation, and a lifecycle event stream.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/interpd/internal/events"
	"github.com/mattjoyce/interpd/internal/history"
	"github.com/mattjoyce/interpd/internal/pool"
)

// TaskPool defines the pool operations the API depends on.
type TaskPool interface {
	Submit(payload json.RawMessage) *pool.Task
	Stats() pool.Stats
}

// HistoryReader defines the read side of the task log.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
	Summarize(ctx context.Context) (*history.Summary, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is a single bearer token. Empty leaves the API unauthenticated.
	APIKey string
}

// Server is the HTTP API server.
type Server struct {
	config    Config
	pool      TaskPool
	store     HistoryReader
	hub       *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates an API server. store and hub may be nil; the endpoints that
// need them degrade gracefully.
func New(config Config, taskPool TaskPool, store HistoryReader, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		pool:      taskPool,
		store:     store,
		hub:       hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // interpretation waits and SSE streams
		IdleTimeout:  60 * time.Second,
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

// Routes builds the HTTP router.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/status", s.handleStatus)
		r.Post("/interpret", s.handleInterpret)
		r.Get("/events", s.handleEvents)
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
