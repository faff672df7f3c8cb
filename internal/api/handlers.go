package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/project-tktt/go-scraper/internal/domain"
	"github.com/project-tktt/go-scraper/internal/export"
	"github.com/project-tktt/go-scraper/internal/module/panel"
	"github.com/project-tktt/go-scraper/internal/settings"
	"github.com/project-tktt/go-scraper/internal/storage"
)

type openPageRequest struct {
	URL string `json:"url"`
}

// POST /v1/pages
func (s *Server) handleOpenPage(w http.ResponseWriter, r *http.Request) {
	var req openPageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		s.writeError(w, http.StatusBadRequest, "url required")
		return
	}
	url := strings.TrimSpace(req.URL)

	switch {
	case s.deps.Pages != nil:
		p, err := s.deps.Pages.Open(r.Context(), url)
		if err != nil {
			s.logger.Error("open page", "url", url, "error", err)
			s.writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		s.writeJSON(w, http.StatusCreated, map[string]any{"tabId": p.ID, "url": p.URL})
	case s.deps.Queue != nil:
		if err := s.deps.Queue.Push(r.Context(), url); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusAccepted, map[string]any{"queued": true, "url": url})
	default:
		s.writeError(w, http.StatusNotImplemented, "opening pages is not available")
	}
}

// GET /v1/selectors
func (s *Server) handleSelectors(w http.ResponseWriter, r *http.Request) {
	out := make([]map[string]string, 0, len(panel.QuickSelectors))
	for _, q := range panel.QuickSelectors {
		out = append(out, map[string]string{"label": q.Label, "value": q.Selector})
	}
	s.writeJSON(w, http.StatusOK, out)
}

type scrapeRequest struct {
	Selector       string `json:"selector"`
	ExtractionType string `json:"extractionType"`
}

// POST /v1/scrape
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ExtractionType == "" {
		req.ExtractionType = string(domain.ModeText)
	}
	mode, err := domain.ParseMode(req.ExtractionType)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.deps.Panel.Submit(r.Context(), req.Selector, mode)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, domain.ScrapeResponse{Success: true, Data: result})
	case errors.Is(err, panel.ErrEmptySelector):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, panel.ErrBusy):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeJSON(w, http.StatusBadGateway, domain.ScrapeResponse{Success: false, Error: err.Error()})
	}
}

// GET /v1/result?format=csv|json|table
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		s.writeJSON(w, http.StatusOK, s.deps.Panel.State())
		return
	}

	if format == "table" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := s.deps.Panel.RenderTable(w); err != nil {
			s.writeResultError(w, err)
		}
		return
	}

	f, err := export.ParseFormat(format)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// render first so a missing result still gets a JSON error
	var buf strings.Builder
	name, err := s.deps.Panel.Export(&buf, f)
	if err != nil {
		s.writeResultError(w, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	_, _ = w.Write([]byte(buf.String()))
}

func (s *Server) writeResultError(w http.ResponseWriter, err error) {
	if errors.Is(err, panel.ErrNoResult) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

// POST /v1/snapshots
func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	key, err := s.deps.Panel.Save(r.Context())
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusCreated, map[string]string{"key": key})
	case errors.Is(err, panel.ErrNoResult):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrExists):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("save snapshot", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to save data to storage")
	}
}

// GET /v1/snapshots
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		s.writeError(w, http.StatusNotImplemented, "no snapshot store configured")
		return
	}
	list, err := s.deps.Store.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// GET /v1/snapshots/{key}
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		s.writeError(w, http.StatusNotImplemented, "no snapshot store configured")
		return
	}
	snap, err := s.deps.Store.Get(r.Context(), chi.URLParam(r, "key"))
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// DELETE /v1/snapshots
func (s *Server) handleClearSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		s.writeError(w, http.StatusNotImplemented, "no snapshot store configured")
		return
	}
	n, err := s.deps.Store.Clear(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// GET /v1/settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := settings.Load(r.Context(), s.deps.Settings)
	if err != nil {
		s.logger.Warn("load settings", "error", err)
	}
	s.writeJSON(w, http.StatusOK, st)
}

// PUT /v1/settings accepts a partial document laid over the current values
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	current, err := settings.Load(r.Context(), s.deps.Settings)
	if err != nil {
		s.logger.Warn("load settings", "error", err)
	}
	if err := json.NewDecoder(r.Body).Decode(&current); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err = settings.Save(r.Context(), s.deps.Settings, current)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, current)
	case errors.Is(err, settings.ErrInvalid):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("save settings", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error saving settings. Please try again.")
	}
}

// POST /v1/settings/reset returns the defaults without storing them; a
// following PUT applies them
func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, settings.Defaults())
}

// GET /v1/settings/providers
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	type provider struct {
		Value  settings.Provider `json:"value"`
		Label  string            `json:"label"`
		Models []string          `json:"models"`
	}
	out := make([]provider, 0, len(settings.Providers))
	for _, p := range settings.Providers {
		out = append(out, provider{Value: p.Value, Label: p.Label, Models: settings.ModelOptions(p.Value)})
	}
	s.writeJSON(w, http.StatusOK, out)
}
