// Package coordinator relays extraction requests from the panel to the
// page they target and relays the page's answer back.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/project-tktt/go-scraper/internal/domain"
	"github.com/project-tktt/go-scraper/internal/metrics"
	"github.com/project-tktt/go-scraper/internal/queue"
)

// ErrMissingTarget is reported when SCRAPE_CONTENT carries no tab id
var ErrMissingTarget = errors.New("No tab ID provided in message")

// Coordinator holds no per-request state; one instance serves a process
type Coordinator struct {
	bus     queue.Bus
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithMetrics records relay counts and latency
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New creates a coordinator that forwards over bus
func New(bus queue.Bus, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{bus: bus, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle accepts SCRAPE_CONTENT, reports the response as pending right away
// and resolves it from a separate goroutine. Other message types are left
// unanswered.
func (c *Coordinator) Handle(ctx context.Context, msg *queue.Message, r queue.Responder) bool {
	if msg.Type != domain.MessageScrapeContent {
		return false
	}
	go c.relay(ctx, msg, r)
	return true
}

func (c *Coordinator) relay(ctx context.Context, msg *queue.Message, r queue.Responder) {
	start := time.Now()
	resp := &domain.ScrapeResponse{Success: true}

	data, err := c.Forward(ctx, msg)
	if err != nil {
		c.logger.Error("content scraping failed", "tab", msg.TabID, "selector", msg.Selector, "error", err)
		resp = &domain.ScrapeResponse{Success: false, Error: err.Error()}
		c.metrics.ObserveRelay(metrics.OutcomeError, time.Since(start))
	} else {
		resp.Data = data
		c.metrics.ObserveRelay(metrics.OutcomeOK, time.Since(start))
	}

	if err := r.Respond(resp); err != nil {
		c.logger.Warn("respond", "tab", msg.TabID, "error", err)
	}
}

// Forward sends EXTRACT_CONTENT to the page named by msg.TabID and returns
// its reply unchanged. A missing tab id fails before anything is sent.
func (c *Coordinator) Forward(ctx context.Context, msg *queue.Message) (*domain.ExtractionResult, error) {
	if msg.TabID == 0 {
		return nil, ErrMissingTarget
	}

	var data domain.ExtractionResult
	err := c.bus.Request(ctx, queue.PageChannel(msg.TabID), &queue.Message{
		Type:           domain.MessageExtractContent,
		Selector:       msg.Selector,
		ExtractionType: msg.ExtractionType,
	}, &data)
	if err != nil {
		return nil, err
	}
	return &data, nil
}
