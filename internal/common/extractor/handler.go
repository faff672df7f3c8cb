package extractor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/PuerkitoBio/goquery"

	"github.com/project-tktt/go-scraper/internal/domain"
	"github.com/project-tktt/go-scraper/internal/queue"
)

// Handler answers EXTRACT_CONTENT for one loaded document
type Handler struct {
	doc    *goquery.Document
	logger *slog.Logger
}

// NewHandler binds a handler to doc
func NewHandler(doc *goquery.Document, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{doc: doc, logger: logger}
}

// Handle replies synchronously and never leaves the channel pending.
// Other message types are ignored.
func (h *Handler) Handle(ctx context.Context, msg *queue.Message, r queue.Responder) bool {
	if msg.Type != domain.MessageExtractContent {
		return false
	}

	result, err := extract(h.doc, msg.Selector, msg.ExtractionType)
	switch {
	case errors.Is(err, errInvalidSelector):
		h.logger.Debug("invalid selector", "selector", msg.Selector, "error", err)
	case err != nil:
		h.logger.Warn("extract failed", "selector", msg.Selector, "error", err)
	}
	h.logger.Debug("extracted", "selector", msg.Selector, "mode", msg.ExtractionType, "matches", result.MatchCount)

	if err := r.Respond(result); err != nil {
		h.logger.Error("respond", "error", err)
	}
	return false
}
