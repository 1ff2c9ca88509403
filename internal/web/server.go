// Package web serves the pipeline trigger and status endpoints.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/jobetl/internal/config"
	"github.com/JonMunkholm/jobetl/internal/core"
	"github.com/JonMunkholm/jobetl/internal/pipeline"
	"github.com/JonMunkholm/jobetl/internal/web/middleware"
)

// Runner is the part of pipeline.Runner the server drives.
type Runner interface {
	Start(ctx context.Context) (string, error)
	Latest() (pipeline.Report, bool)
	Running() bool
}

// Pinger reports whether the load target is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP server for `jobetl serve`.
type Server struct {
	// runs started over HTTP live on this context, not the request's
	baseCtx context.Context

	runner Runner
	db     Pinger
	cfg    config.ServerConfig
	sec    config.SecurityConfig

	router *chi.Mux
	server *http.Server
}

// NewServer creates a Server. db may be nil, in which case /healthz only
// reports that the process is up.
func NewServer(ctx context.Context, runner Runner, db Pinger, cfg config.ServerConfig, sec config.SecurityConfig) *Server {
	s := &Server{
		baseCtx: ctx,
		runner:  runner,
		db:      db,
		cfg:     cfg,
		sec:     sec,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.sec.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.cfg.RequestTimeout))
	}
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleStatusPage)
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/runs/latest", s.handleLatestRun)
		r.With(middleware.APIKeyAuth(s.sec)).Post("/runs", s.handleStartRun)
	})
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		BaseContext:  func(_ net.Listener) context.Context { return s.baseCtx },
	}

	slog.Info("starting server", "addr", addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			s.respondError(w, r, err, http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": s.runner.Running(),
	})
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.runner.Latest()
	if !ok {
		respondErrorJSON(w, core.UserMessage{
			Message: "No run has been started yet",
			Action:  "POST /api/runs to start one",
			Code:    "RUN000",
		}, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	runID, err := s.runner.Start(s.baseCtx)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrRunInProgress) {
			status = http.StatusConflict
		}
		s.respondError(w, r, err, status)
		return
	}

	w.Header().Set("Location", "/api/runs/latest")
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.runner.Latest()
	var p *pipeline.Report
	if ok {
		p = &rep
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusPage(p).Render(r.Context(), w); err != nil {
		slog.Error("render status page", "error", err)
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
