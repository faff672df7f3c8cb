package page

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/project-tktt/go-scraper/internal/common/extractor"
	"github.com/project-tktt/go-scraper/internal/domain"
	"github.com/project-tktt/go-scraper/internal/metrics"
	"github.com/project-tktt/go-scraper/internal/queue"
)

// Host loads pages and attaches an extractor to each of them
type Host struct {
	bus      queue.Bus
	loader   Loader
	dir      Directory
	registry *Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// listeners outlive the request that opened the page
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds page host configuration
type Config struct {
	MaxPages int
	Metrics  *metrics.Metrics
}

// NewHost creates a page host
func NewHost(bus queue.Bus, loader Loader, dir Directory, cfg Config, logger *slog.Logger) (*Host, error) {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 16
	}
	if logger == nil {
		logger = slog.Default()
	}

	reg, err := NewRegistry(cfg.MaxPages)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		bus:      bus,
		loader:   loader,
		dir:      dir,
		registry: reg,
		logger:   logger,
		metrics:  cfg.Metrics,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Open loads url, starts serving EXTRACT_CONTENT for it and makes it the
// active page
func (h *Host) Open(ctx context.Context, url string) (*Page, error) {
	doc, err := h.loader.Load(ctx, url)
	if err != nil {
		h.metrics.ObservePageLoad(metrics.OutcomeError)
		return nil, fmt.Errorf("load %s: %w", url, err)
	}
	h.metrics.ObservePageLoad(metrics.OutcomeOK)

	id, err := h.dir.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate page id: %w", err)
	}

	p := &Page{
		ID:       id,
		URL:      url,
		Doc:      doc,
		LoadedAt: time.Now(),
	}

	l, err := h.bus.Listen(h.ctx, queue.PageChannel(id), extractor.NewHandler(doc, h.logger.With("page", id)))
	if err != nil {
		return nil, fmt.Errorf("listen page %d: %w", id, err)
	}
	h.registry.Add(p, l)
	h.metrics.SetPagesOpen(h.registry.Len())

	if err := h.dir.SetActive(ctx, Tab{ID: id, URL: url}); err != nil {
		h.logger.Warn("set active page", "page", id, "error", err)
	}

	h.logger.Info("page opened", "page", id, "url", url)
	return p, nil
}

// AddDocument registers an already parsed page, for callers that obtained
// the HTML some other way
func (h *Host) AddDocument(ctx context.Context, p *Page) error {
	if p.ID == 0 {
		id, err := h.dir.NextID(ctx)
		if err != nil {
			return fmt.Errorf("allocate page id: %w", err)
		}
		p.ID = id
	}
	if p.LoadedAt.IsZero() {
		p.LoadedAt = time.Now()
	}

	l, err := h.bus.Listen(h.ctx, queue.PageChannel(p.ID), extractor.NewHandler(p.Doc, h.logger.With("page", p.ID)))
	if err != nil {
		return fmt.Errorf("listen page %d: %w", p.ID, err)
	}
	h.registry.Add(p, l)
	h.metrics.SetPagesOpen(h.registry.Len())
	return h.dir.SetActive(ctx, Tab{ID: p.ID, URL: p.URL})
}

// Get returns an open page
func (h *Host) Get(id domain.PageID) (*Page, bool) {
	return h.registry.Get(id)
}

// Pages lists open pages, oldest first
func (h *Host) Pages() []*Page {
	return h.registry.List()
}

// ClosePage stops serving a page. Requests for it then fail with
// queue.ErrNoReceiver.
func (h *Host) ClosePage(id domain.PageID) bool {
	ok := h.registry.Remove(id)
	h.metrics.SetPagesOpen(h.registry.Len())
	if ok {
		h.logger.Info("page closed", "page", id)
	}
	return ok
}

// ActiveTab returns the most recently opened page
func (h *Host) ActiveTab(ctx context.Context) (Tab, error) {
	return h.dir.ActiveTab(ctx)
}

// Close stops serving every page
func (h *Host) Close() error {
	h.registry.Purge()
	h.metrics.SetPagesOpen(0)
	h.cancel()
	return nil
}
