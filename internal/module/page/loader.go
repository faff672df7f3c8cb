// Package page hosts loaded documents and serves extraction requests for
// them, one bus channel per page.
package page

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/project-tktt/go-scraper/internal/domain"
)

// Loader turns a URL into a parsed document
type Loader interface {
	Load(ctx context.Context, url string) (*goquery.Document, error)
}

// LoaderConfig holds common configuration for loaders
type LoaderConfig struct {
	UserAgent    string
	ProxyURL     string
	RequestDelay time.Duration
	Timeout      time.Duration
}

// Page is a loaded document, addressable by its id like a browser tab
type Page struct {
	ID       domain.PageID
	URL      string
	Doc      *goquery.Document
	LoadedAt time.Time
}

// Renderer names
const (
	RendererStatic = "static"
	RendererRod    = "rod"
)

// NewLoader picks a loader by renderer name. The returned close function
// releases the browser when one was started.
func NewLoader(renderer, rodRemoteURL string, cfg LoaderConfig, logger *slog.Logger) (Loader, func() error, error) {
	switch renderer {
	case "", RendererStatic:
		l, err := NewStaticLoader(cfg)
		if err != nil {
			return nil, nil, err
		}
		return l, func() error { return nil }, nil
	case RendererRod:
		l := NewRenderedLoader(rodRemoteURL, cfg, logger)
		return l, l.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown renderer %q", renderer)
}
