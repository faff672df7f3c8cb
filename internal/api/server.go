// Package api exposes the panel over HTTP for remote clients.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/project-tktt/go-scraper/internal/metrics"
	"github.com/project-tktt/go-scraper/internal/module/page"
	"github.com/project-tktt/go-scraper/internal/module/panel"
	"github.com/project-tktt/go-scraper/internal/settings"
	"github.com/project-tktt/go-scraper/internal/storage"
)

// PageOpener opens a page in this process
type PageOpener interface {
	Open(ctx context.Context, url string) (*page.Page, error)
}

// URLQueue hands URLs to a page host running elsewhere
type URLQueue interface {
	Push(ctx context.Context, urls ...string) error
}

// Deps are the components the server exposes. Pages and Queue are
// alternatives; with neither set, POST /v1/pages is not available.
type Deps struct {
	Panel    *panel.Controller
	Pages    PageOpener
	Queue    URLQueue
	Store    storage.Store
	Settings settings.Store
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Server serves the gateway routes
type Server struct {
	deps   Deps
	logger *slog.Logger
	router chi.Router
}

// NewServer builds the router
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Settings == nil {
		deps.Settings = settings.NewMemoryStore()
	}
	s := &Server{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(deps.Metrics.Middleware)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/pages", s.handleOpenPage)
		r.Get("/selectors", s.handleSelectors)

		r.Post("/scrape", s.handleScrape)
		r.Get("/result", s.handleResult)

		r.Post("/snapshots", s.handleSaveSnapshot)
		r.Get("/snapshots", s.handleListSnapshots)
		r.Get("/snapshots/{key}", s.handleGetSnapshot)
		r.Delete("/snapshots", s.handleClearSnapshots)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Post("/settings/reset", s.handleResetSettings)
		r.Get("/settings/providers", s.handleProviders)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		s.logger.Warn("write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Success: false, Error: msg})
}
