package page

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// RenderedLoader navigates a headless Chrome tab and parses the DOM after
// scripts have run
type RenderedLoader struct {
	remoteURL  string
	navTimeout time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewRenderedLoader creates a loader. remoteURL is the DevTools WebSocket of
// an external Chrome; empty launches a local headless one on first use.
func NewRenderedLoader(remoteURL string, cfg LoaderConfig, logger *slog.Logger) *RenderedLoader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderedLoader{
		remoteURL:  remoteURL,
		navTimeout: cfg.Timeout,
		logger:     logger,
	}
}

func (l *RenderedLoader) connect() (*rod.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.browser != nil {
		return l.browser, nil
	}

	controlURL := l.remoteURL
	if controlURL == "" {
		l.launcher = launcher.New().Headless(true)
		u, err := l.launcher.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect chrome: %w", err)
	}
	l.browser = b
	return b, nil
}

func (l *RenderedLoader) Load(ctx context.Context, url string) (*goquery.Document, error) {
	b, err := l.connect()
	if err != nil {
		return nil, err
	}

	p, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("create tab: %w", err)
	}
	defer p.Close()

	navCtx, cancel := context.WithTimeout(ctx, l.navTimeout)
	defer cancel()

	if err := p.Context(navCtx).Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.Context(navCtx).WaitLoad(); err != nil {
		l.logger.Warn("wait load timeout", "url", url, "error", err)
	}

	res, err := p.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("get DOM: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Value.Str()))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Close shuts down the browser if this loader started one
func (l *RenderedLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	if l.browser != nil {
		err = l.browser.Close()
		l.browser = nil
	}
	if l.launcher != nil {
		l.launcher.Cleanup()
		l.launcher = nil
	}
	return err
}
