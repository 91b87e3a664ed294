// SPDX-License-Identifier: MIT

// Package api exposes the agent's local operational surface: health,
// readiness, metrics and a status snapshot of the enrollment controller.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/evisio/enrolld/internal/enroll"
	"github.com/evisio/enrolld/internal/events"
	"github.com/evisio/enrolld/internal/feed"
	"github.com/evisio/enrolld/internal/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Checker probes one dependency for the readiness endpoint.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Server is the local status HTTP server.
type Server struct {
	logger     zerolog.Logger
	controller *enroll.Controller
	feed       *feed.Controller
	events     *events.Client
	checkers   []Checker
	startTime  time.Time
	version    string
}

// Options wires a Server.
type Options struct {
	Controller *enroll.Controller
	Feed       *feed.Controller
	Events     *events.Client
	Checkers   []Checker
	Version    string
}

// New creates a Server.
func New(opts Options) *Server {
	return &Server{
		logger:     log.WithComponent("api"),
		controller: opts.Controller,
		feed:       opts.Feed,
		events:     opts.Events,
		checkers:   opts.Checkers,
		startTime:  time.Now(),
		version:    opts.Version,
	}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(60, time.Minute))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/api/status", s.handleStatus)
	if s.controller != nil {
		s.controlRoutes(r)
	}
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"version":   s.version,
		"uptime_s":  int64(time.Since(s.startTime).Seconds()),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.checkers))
	ready := true
	for _, c := range s.checkers {
		if err := c.Check(ctx); err != nil {
			checks[c.Name()] = err.Error()
			ready = false
		} else {
			checks[c.Name()] = "ok"
		}
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"ready":  ready,
		"checks": checks,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{}
	if s.controller != nil {
		resp["enrollment"] = s.controller.Snapshot()
	}
	if s.feed != nil {
		resp["feed"] = s.feed.Snapshot()
	}
	if s.events != nil {
		resp["event_cursor"] = s.events.LastSeq()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("status server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
