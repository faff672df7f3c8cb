package page

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/project-tktt/go-scraper/internal/domain"
	"github.com/project-tktt/go-scraper/internal/queue"
)

type openPage struct {
	page     *Page
	listener queue.Listener
}

// Registry keeps open pages up to a fixed count. Evicting or removing a
// page closes its listener, the way closing a tab detaches its content
// script.
type Registry struct {
	pages *lru.Cache[domain.PageID, *openPage]
}

// NewRegistry creates a registry holding at most maxPages pages
func NewRegistry(maxPages int) (*Registry, error) {
	c, err := lru.NewWithEvict(maxPages, func(_ domain.PageID, p *openPage) {
		if p.listener != nil {
			_ = p.listener.Close()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Registry{pages: c}, nil
}

// Add stores a page with its listener
func (r *Registry) Add(p *Page, l queue.Listener) {
	r.pages.Add(p.ID, &openPage{page: p, listener: l})
}

// Get returns an open page and marks it recently used
func (r *Registry) Get(id domain.PageID) (*Page, bool) {
	p, ok := r.pages.Get(id)
	if !ok {
		return nil, false
	}
	return p.page, true
}

// Remove closes a page. It reports whether the page was open.
func (r *Registry) Remove(id domain.PageID) bool {
	return r.pages.Remove(id)
}

// List returns open pages, oldest first
func (r *Registry) List() []*Page {
	values := r.pages.Values()
	out := make([]*Page, 0, len(values))
	for _, v := range values {
		out = append(out, v.page)
	}
	return out
}

// Len returns the number of open pages
func (r *Registry) Len() int {
	return r.pages.Len()
}

// Purge closes every page
func (r *Registry) Purge() {
	r.pages.Purge()
}
