package page

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// StaticLoader fetches raw HTML with Colly, without running scripts
type StaticLoader struct {
	collector *colly.Collector
}

// NewStaticLoader creates a Colly-based loader
func NewStaticLoader(cfg LoaderConfig) (*StaticLoader, error) {
	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	}

	// Configure rate limiting
	if cfg.RequestDelay > 0 {
		if err := c.Limit(&colly.LimitRule{
			DomainGlob:  "*",
			Delay:       cfg.RequestDelay,
			RandomDelay: cfg.RequestDelay / 2,
		}); err != nil {
			return nil, fmt.Errorf("set limit: %w", err)
		}
	}

	if cfg.ProxyURL != "" {
		if err := c.SetProxy(cfg.ProxyURL); err != nil {
			return nil, fmt.Errorf("set proxy: %w", err)
		}
	}

	return &StaticLoader{collector: c}, nil
}

func (l *StaticLoader) Load(ctx context.Context, url string) (*goquery.Document, error) {
	var doc *goquery.Document
	var loadErr error

	c := l.collector.Clone()
	c.Context = ctx

	c.OnResponse(func(r *colly.Response) {
		d, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		if err != nil {
			loadErr = fmt.Errorf("parse html: %w", err)
			return
		}
		doc = d
	})

	c.OnError(func(r *colly.Response, err error) {
		loadErr = fmt.Errorf("colly error: %w (status: %d)", err, r.StatusCode)
	})

	if err := c.Visit(url); err != nil {
		if loadErr != nil {
			return nil, loadErr
		}
		return nil, fmt.Errorf("visit url: %w", err)
	}

	if loadErr != nil {
		return nil, loadErr
	}
	if doc == nil {
		return nil, fmt.Errorf("no document loaded from %s", url)
	}

	return doc, nil
}
