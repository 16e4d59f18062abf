package report

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Builder regenerates the dashboard state on demand
type Builder func() (*Summary, error)

// Server serves the live dashboard over HTTP
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer wires the dashboard routes. Every request rebuilds the
// summary so the page always reflects the ledger on disk.
func NewServer(addr string, build Builder, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		s, err := build()
		if err != nil {
			logger.Error("failed to build dashboard", "error", err)
			http.Error(w, "failed to build dashboard", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := dashboardTmpl.Execute(w, s); err != nil {
			logger.Error("failed to render dashboard", "error", err)
		}
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// ListenAndServe blocks until the server stops
func (s *Server) ListenAndServe() error {
	s.logger.Info("dashboard listening", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown drains the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
