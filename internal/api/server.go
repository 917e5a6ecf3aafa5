// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api serves the read-only ops HTTP surface: probes, metrics, session and queue views.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/wagate/internal/domain/session/model"
	"github.com/ManuGH/wagate/internal/health"
	"github.com/ManuGH/wagate/internal/log"
	"github.com/ManuGH/wagate/internal/queue"
)

const shutdownTimeout = 5 * time.Second

// SessionReader exposes orchestrator snapshots.
type SessionReader interface {
	Session(id string) (model.SessionInfo, bool)
	Sessions() []model.SessionInfo
}

// QueueReader exposes queue statistics.
type QueueReader interface {
	Name() string
	Counts(ctx context.Context) (queue.Counts, error)
}

// Deps wires the server to the rest of the daemon. Queue may be nil.
type Deps struct {
	Health   *health.Manager
	Sessions SessionReader
	Queue    QueueReader
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int
	// Service names the OpenTelemetry server spans.
	Service string
}

type Server struct {
	deps   Deps
	router chi.Router
	logger zerolog.Logger
}

func NewServer(deps Deps) (*Server, error) {
	if deps.Health == nil || deps.Sessions == nil {
		return nil, errors.New("api: health manager and session reader are required")
	}
	if deps.Service == "" {
		deps.Service = "wagate"
	}
	s := &Server{deps: deps, logger: log.WithComponent("api")}
	s.router = s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(instrument)
	r.Use(tracing(s.deps.Service))

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.deps.RateLimit > 0 {
			r.Use(rateLimit(s.deps.RateLimit))
		}
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/queue", s.handleQueue)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { writeNotFound(w) })
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("ops API listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: serve: %w", err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	<-errCh
	s.logger.Info().Msg("ops API stopped")
	return nil
}
