// Package panel is the user-facing side of extraction: it takes a selector
// and mode, asks the coordinator for the active page's content and keeps
// the last result for display, export and saving.
package panel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/project-tktt/go-scraper/internal/domain"
	"github.com/project-tktt/go-scraper/internal/export"
	"github.com/project-tktt/go-scraper/internal/metrics"
	"github.com/project-tktt/go-scraper/internal/module/page"
	"github.com/project-tktt/go-scraper/internal/queue"
	"github.com/project-tktt/go-scraper/internal/storage"
)

var (
	ErrEmptySelector = errors.New("selector is empty")
	ErrBusy          = errors.New("extraction already in progress")
	ErrNoResult      = errors.New("no extraction result")
)

// errUnknown stands in for a failed response without an error message
const errUnknown = "Unknown error occurred"

// TabResolver finds the page a submission targets
type TabResolver interface {
	ActiveTab(ctx context.Context) (page.Tab, error)
}

// State is what a display renders
type State struct {
	Loading   bool                     `json:"loading"`
	Result    *domain.ExtractionResult `json:"result,omitempty"`
	SourceURL string                   `json:"url,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// Controller drives one panel. Its methods are safe for concurrent use.
type Controller struct {
	bus     queue.Bus
	tabs    TabResolver
	store   storage.Store
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	loading   bool
	result    *domain.ExtractionResult
	sourceURL string
	lastErr   string
}

// Option configures a Controller
type Option func(*Controller)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics records submissions and saves
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController creates a panel. store may be nil when saving is not needed.
func NewController(bus queue.Bus, tabs TabResolver, store storage.Store, opts ...Option) *Controller {
	c := &Controller{
		bus:    bus,
		tabs:   tabs,
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit runs one extraction against the active page. It sends exactly one
// SCRAPE_CONTENT request and never retries. A failure leaves the previous
// result in place and is also recorded in State().Error.
func (c *Controller) Submit(ctx context.Context, selector string, mode domain.Mode) (*domain.ExtractionResult, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, ErrEmptySelector
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
	}

	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.loading = true
	c.lastErr = ""
	c.mu.Unlock()

	result, tab, err := c.scrape(ctx, selector, mode)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		c.lastErr = err.Error()
		c.logger.Warn("extraction failed", "selector", selector, "mode", mode, "error", err)
		c.metrics.ObserveExtraction(string(mode), metrics.OutcomeError)
		return nil, err
	}
	if result.MatchCount == 0 {
		c.metrics.ObserveExtraction(string(mode), metrics.OutcomeEmpty)
	} else {
		c.metrics.ObserveExtraction(string(mode), metrics.OutcomeOK)
	}
	c.result = result
	c.sourceURL = tab.URL
	c.logger.Info("extraction finished", "tab", tab.ID, "selector", selector, "matches", result.MatchCount)
	return result.Clone(), nil
}

func (c *Controller) scrape(ctx context.Context, selector string, mode domain.Mode) (*domain.ExtractionResult, page.Tab, error) {
	tab, err := c.tabs.ActiveTab(ctx)
	if err != nil {
		return nil, tab, err
	}
	if tab.ID == 0 {
		return nil, tab, page.ErrNoActiveTab
	}

	var resp domain.ScrapeResponse
	err = c.bus.Request(ctx, queue.CoordinatorChannel, &queue.Message{
		Type:           domain.MessageScrapeContent,
		Selector:       selector,
		ExtractionType: mode,
		TabID:          tab.ID,
	}, &resp)
	if err != nil {
		return nil, tab, err
	}

	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = errUnknown
		}
		return nil, tab, errors.New(msg)
	}
	if resp.Data == nil {
		return domain.EmptyResult(), tab, nil
	}
	return resp.Data, tab, nil
}

// State returns a copy of the current display state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Loading:   c.loading,
		SourceURL: c.sourceURL,
		Error:     c.lastErr,
	}
	if c.result != nil {
		st.Result = c.result.Clone()
	}
	return st
}

// current returns a copy of the last result and its page URL
func (c *Controller) current() (*domain.ExtractionResult, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return nil, "", false
	}
	return c.result.Clone(), c.sourceURL, true
}

// Save stores the current result as a new snapshot and returns its key.
// It works while a submission is in flight and saves the previous result.
func (c *Controller) Save(ctx context.Context) (string, error) {
	result, url, ok := c.current()
	if !ok {
		return "", ErrNoResult
	}
	if c.store == nil {
		return "", errors.New("no snapshot store configured")
	}

	snap := domain.NewSnapshot(result, url, c.now())
	key, err := c.store.Save(ctx, snap)
	if err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	c.metrics.SnapshotSaved()
	c.logger.Info("snapshot saved", "key", key, "rows", len(snap.Rows))
	return key, nil
}

// Export writes the current result in format f and returns the file name
// a download would use
func (c *Controller) Export(w io.Writer, f export.Format) (string, error) {
	result, url, ok := c.current()
	if !ok {
		return "", ErrNoResult
	}
	now := c.now()
	if err := export.Write(w, f, result, export.Meta{Timestamp: now, URL: url}); err != nil {
		return "", err
	}
	return export.FileName(f, now), nil
}
