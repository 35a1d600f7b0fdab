// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package statusapi serves the console's read-only view of active
// sessions, units and history over local HTTP.
package statusapi

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/sosync/internal/dispatch"
	"github.com/ManuGH/sosync/internal/domain/sos/model"
	"github.com/ManuGH/sosync/internal/health"
	"github.com/ManuGH/sosync/internal/log"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const maxHistoryLimit = 1000

// openAPIDocument describes the /api/v1 routes.
//
//go:embed openapi.yaml
var openAPIDocument []byte

// Table is the dispatcher state the API renders.
type Table interface {
	Snapshot() dispatch.Snapshot
	Session(id string) (*model.EmergencySession, bool)
}

// History lists resolved sessions, most recent first.
type History interface {
	List(ctx context.Context, limit int) ([]model.ResolvedSessionRecord, error)
}

// Config configures the server.
type Config struct {
	Listen    string
	RateLimit int // requests per minute per client; 0 disables
	Service   string
}

// Server is the status HTTP surface.
type Server struct {
	cfg     Config
	table   Table
	history History
	health  *health.Manager
	router  chi.Router
	logger  zerolog.Logger
}

// New builds the router. history and hm may be nil.
func New(cfg Config, table Table, history History, hm *health.Manager) *Server {
	if cfg.Service == "" {
		cfg.Service = "sosync-status"
	}
	if hm == nil {
		hm = health.NewManager("")
	}
	s := &Server{
		cfg:     cfg,
		table:   table,
		history: history,
		health:  hm,
		logger:  log.WithComponent("statusapi"),
	}
	s.router = s.routes()
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(securityHeaders)
	r.Use(observe)
	r.Use(tracing(s.cfg.Service))

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(rateLimit(s.cfg.RateLimit))
		}
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/sessions", s.handleSessions)
		r.Get("/sessions/{id}", s.handleSession)
		r.Get("/units", s.handleUnits)
		r.Get("/history", s.handleHistory)
		r.Get("/openapi.yaml", handleOpenAPI)
	})
	return r
}

func handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openAPIDocument)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.table.Snapshot())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	snap := s.table.Snapshot()
	writeJSON(w, r, http.StatusOK, map[string]any{
		"count":    len(snap.Sessions),
		"sessions": snap.Sessions,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.table.Session(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "session_not_found")
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	snap := s.table.Snapshot()
	writeJSON(w, r, http.StatusOK, map[string]any{
		"count": len(snap.Units),
		"units": snap.Units,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{"count": 0, "records": []model.ResolvedSessionRecord{}})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxHistoryLimit {
			writeError(w, r, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = n
	}
	recs, err := s.history.List(r.Context(), limit)
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "statusapi")
		logger.Error().Err(err).Str("event", "history.list_failed").Msg("failed to list history")
		writeError(w, r, http.StatusInternalServerError, "history_unavailable")
		return
	}
	if recs == nil {
		recs = []model.ResolvedSessionRecord{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"count": len(recs), "records": recs})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "statusapi")
		logger.Error().Err(err).Str("event", "http.encode_error").Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	writeJSON(w, r, status, map[string]string{
		"error":     code,
		"requestId": log.RequestIDFromContext(r.Context()),
	})
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("event", "statusapi.listening").Str("addr", ln.Addr().String()).Msg("status API listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
