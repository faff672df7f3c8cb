package panel

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-tktt/go-scraper/internal/common/extractor"
	"github.com/project-tktt/go-scraper/internal/domain"
	"github.com/project-tktt/go-scraper/internal/export"
	"github.com/project-tktt/go-scraper/internal/module/coordinator"
	"github.com/project-tktt/go-scraper/internal/module/page"
	"github.com/project-tktt/go-scraper/internal/queue"
	"github.com/project-tktt/go-scraper/internal/storage"
)

const fixture = `<html><body>
<h1>Title</h1>
<div><h2>Sub</h2><h2>Other</h2></div>
<a id="x" class="y" href="/p?a=1,b=2">Link, "quoted"</a>
<section><p>One <b>bold</b></p></section>
</body></html>`

type staticTabs struct {
	tab page.Tab
	err error
}

func (s staticTabs) ActiveTab(ctx context.Context) (page.Tab, error) { return s.tab, s.err }

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

// newPanel wires a panel, a coordinator and one page on a memory bus
func newPanel(t *testing.T) (*Controller, *storage.MemoryStore) {
	t.Helper()
	bus := queue.NewMemoryBus(nil)

	_, err := bus.Listen(context.Background(), queue.CoordinatorChannel, coordinator.New(bus, nil))
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fixture))
	require.NoError(t, err)
	_, err = bus.Listen(context.Background(), queue.PageChannel(7), extractor.NewHandler(doc, nil))
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	c := NewController(bus, staticTabs{tab: page.Tab{ID: 7, URL: "https://example.test/page"}}, store,
		WithClock(func() time.Time { return fixedNow }))
	return c, store
}

func TestSubmit_Text(t *testing.T) {
	c, _ := newPanel(t)

	res, err := c.Submit(context.Background(), "  h1, h2  ", domain.ModeText)
	require.NoError(t, err)

	assert.Equal(t, 3, res.MatchCount)
	assert.Equal(t, []string{"Element Text"}, res.Columns)
	assert.Equal(t, []map[string]string{
		{"Element Text": "Title"},
		{"Element Text": "Sub"},
		{"Element Text": "Other"},
	}, res.Rows)

	st := c.State()
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
	assert.Equal(t, "https://example.test/page", st.SourceURL)
	assert.Equal(t, res, st.Result)
}

func TestSubmit_NoMatchIsEmptyResult(t *testing.T) {
	c, _ := newPanel(t)

	res, err := c.Submit(context.Background(), ".missing", domain.ModeText)
	require.NoError(t, err)
	assert.Equal(t, 0, res.MatchCount)
	assert.Empty(t, res.Rows)

	res, err = c.Submit(context.Background(), "h1[", domain.ModeHTML)
	require.NoError(t, err)
	assert.Equal(t, 0, res.MatchCount)
}

func TestSubmit_InputValidation(t *testing.T) {
	c, _ := newPanel(t)

	_, err := c.Submit(context.Background(), "   ", domain.ModeText)
	assert.ErrorIs(t, err, ErrEmptySelector)

	_, err = c.Submit(context.Background(), "h1", domain.Mode("xml"))
	assert.ErrorIs(t, err, domain.ErrInvalidMode)
}

func TestSubmit_NoActiveTab(t *testing.T) {
	c := NewController(queue.NewMemoryBus(nil), staticTabs{err: page.ErrNoActiveTab}, nil)

	_, err := c.Submit(context.Background(), "h1", domain.ModeText)
	require.Error(t, err)
	assert.Equal(t, "No active tab found", err.Error())
	assert.Equal(t, "No active tab found", c.State().Error)
}

func TestSubmit_FailureKeepsPreviousResult(t *testing.T) {
	bus := queue.NewMemoryBus(nil)
	_, err := bus.Listen(context.Background(), queue.CoordinatorChannel, coordinator.New(bus, nil))
	require.NoError(t, err)

	tabs := &switchTabs{tab: page.Tab{ID: 7}}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fixture))
	require.NoError(t, err)
	_, err = bus.Listen(context.Background(), queue.PageChannel(7), extractor.NewHandler(doc, nil))
	require.NoError(t, err)

	c := NewController(bus, tabs, nil)
	first, err := c.Submit(context.Background(), "h1", domain.ModeText)
	require.NoError(t, err)

	// page 8 has no listener
	tabs.set(page.Tab{ID: 8})
	_, err = c.Submit(context.Background(), "h1", domain.ModeText)
	require.Error(t, err)
	assert.Equal(t, queue.ErrNoReceiver.Error(), err.Error())

	st := c.State()
	assert.Equal(t, queue.ErrNoReceiver.Error(), st.Error)
	assert.Equal(t, first, st.Result)

	// next submission clears the error
	tabs.set(page.Tab{ID: 7})
	_, err = c.Submit(context.Background(), "h2", domain.ModeText)
	require.NoError(t, err)
	assert.Empty(t, c.State().Error)
}

func TestSubmit_BlankFailureMessage(t *testing.T) {
	bus := queue.NewMemoryBus(nil)
	_, err := bus.Listen(context.Background(), queue.CoordinatorChannel, queue.HandlerFunc(func(ctx context.Context, msg *queue.Message, r queue.Responder) bool {
		_ = r.Respond(&domain.ScrapeResponse{Success: false})
		return false
	}))
	require.NoError(t, err)

	c := NewController(bus, staticTabs{tab: page.Tab{ID: 1}}, nil)
	_, err = c.Submit(context.Background(), "p", domain.ModeText)
	require.Error(t, err)
	assert.Equal(t, "Unknown error occurred", err.Error())
}

func TestSubmit_BusyAndSingleRequest(t *testing.T) {
	bus := queue.NewMemoryBus(nil)
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex

	_, err := bus.Listen(context.Background(), queue.CoordinatorChannel, queue.HandlerFunc(func(ctx context.Context, msg *queue.Message, r queue.Responder) bool {
		mu.Lock()
		calls++
		mu.Unlock()
		go func() {
			<-release
			_ = r.Respond(&domain.ScrapeResponse{Success: true, Data: domain.EmptyResult()})
		}()
		return true
	}))
	require.NoError(t, err)

	c := NewController(bus, staticTabs{tab: page.Tab{ID: 1}}, storage.NewMemoryStore())

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), "p", domain.ModeText)
		done <- err
	}()

	require.Eventually(t, func() bool { return c.State().Loading }, time.Second, time.Millisecond)

	_, err = c.Submit(context.Background(), "p", domain.ModeText)
	assert.ErrorIs(t, err, ErrBusy)

	// nothing to save yet, independent of the in-flight request
	_, err = c.Save(context.Background())
	assert.ErrorIs(t, err, ErrNoResult)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, c.State().Loading)

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestSave_DuringFlightStoresPreviousResult(t *testing.T) {
	bus := queue.NewMemoryBus(nil)
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex

	_, err := bus.Listen(context.Background(), queue.CoordinatorChannel, queue.HandlerFunc(func(ctx context.Context, msg *queue.Message, r queue.Responder) bool {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 1 {
			_ = r.Respond(&domain.ScrapeResponse{Success: true, Data: &domain.ExtractionResult{
				Rows:       []map[string]string{{domain.ColumnElementText: "first"}},
				Columns:    []string{domain.ColumnElementText},
				MatchCount: 1,
			}})
			return false
		}
		go func() {
			<-release
			_ = r.Respond(&domain.ScrapeResponse{Success: true, Data: &domain.ExtractionResult{
				Rows:       []map[string]string{{domain.ColumnElementText: "second"}},
				Columns:    []string{domain.ColumnElementText},
				MatchCount: 1,
			}})
		}()
		return true
	}))
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	c := NewController(bus, staticTabs{tab: page.Tab{ID: 1, URL: "https://shop.test/a"}}, store,
		WithClock(func() time.Time { return fixedNow }))

	_, err = c.Submit(context.Background(), "li", domain.ModeText)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), "li", domain.ModeText)
		done <- err
	}()
	require.Eventually(t, func() bool { return c.State().Loading }, time.Second, time.Millisecond)

	key, err := c.Save(context.Background())
	require.NoError(t, err)

	snap, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "first", snap.Rows[0][domain.ColumnElementText])
	assert.Equal(t, "https://shop.test/a", snap.SourceURL)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, "second", c.State().Result.Rows[0][domain.ColumnElementText])
}

func TestSave(t *testing.T) {
	c, store := newPanel(t)

	_, err := c.Save(context.Background())
	assert.ErrorIs(t, err, ErrNoResult)

	_, err = c.Submit(context.Background(), "a", domain.ModeAttributes)
	require.NoError(t, err)

	key, err := c.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "scrape_2024-05-06T07:08:09.000Z", key)

	snap, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-06T07:08:09.000Z", snap.Timestamp)
	assert.Equal(t, "https://example.test/page", snap.SourceURL)
	assert.Equal(t, 1, snap.MatchCount)
	assert.Equal(t, "a", snap.Rows[0]["Tag Name"])

	// same millisecond, same key
	_, err = c.Save(context.Background())
	assert.ErrorIs(t, err, storage.ErrExists)
}

func TestExport(t *testing.T) {
	c, _ := newPanel(t)

	_, err := c.Export(&bytes.Buffer{}, export.FormatCSV)
	assert.ErrorIs(t, err, ErrNoResult)

	_, err = c.Submit(context.Background(), "a", domain.ModeAttributes)
	require.NoError(t, err)

	var buf bytes.Buffer
	name, err := c.Export(&buf, export.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "scraped_data_1714979289000.csv", name)
	assert.Equal(t,
		"Tag Name,Attributes,Text Content\n"+
			`a,"{""id"":""x"",""class"":""y"",""href"":""/p?a=1,b=2""}","Link, ""quoted"""`+"\n",
		buf.String())

	buf.Reset()
	name, err = c.Export(&buf, export.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "scraped_data_1714979289000.json", name)
	assert.Contains(t, buf.String(), `"url": "https://example.test/page"`)
	assert.Contains(t, buf.String(), `"timestamp": "2024-05-06T07:08:09.000Z"`)
}

func TestRenderTable(t *testing.T) {
	c, _ := newPanel(t)

	assert.ErrorIs(t, c.RenderTable(&bytes.Buffer{}), ErrNoResult)

	_, err := c.Submit(context.Background(), ".none", domain.ModeText)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, c.RenderTable(&buf))
	assert.Equal(t, NoDataMessage+"\n", buf.String())

	_, err = c.Submit(context.Background(), "section p", domain.ModeHTML)
	require.NoError(t, err)
	buf.Reset()
	require.NoError(t, c.RenderTable(&buf))
	out := buf.String()
	assert.Contains(t, out, "Results (1 elements found)")
	assert.Contains(t, out, "HTML Content")
	assert.Contains(t, out, "One bold")
	assert.NotContains(t, out, "<b>")

	// export keeps the markup
	buf.Reset()
	_, err = c.Export(&buf, export.FormatCSV)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "<p>One <b>bold</b></p>")
}

func TestRenderResult_Truncates(t *testing.T) {
	long := strings.Repeat("x", 150)
	out := RenderResult(&domain.ExtractionResult{
		Columns:    []string{domain.ColumnElementText},
		Rows:       []map[string]string{{domain.ColumnElementText: long}},
		MatchCount: 1,
	})
	assert.Contains(t, out, strings.Repeat("x", 100)+"...")
	assert.NotContains(t, out, strings.Repeat("x", 101))
}

type switchTabs struct {
	mu  sync.Mutex
	tab page.Tab
}

func (s *switchTabs) set(t page.Tab) {
	s.mu.Lock()
	s.tab = t
	s.mu.Unlock()
}

func (s *switchTabs) ActiveTab(ctx context.Context) (page.Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tab.ID == 0 {
		return page.Tab{}, errors.New("No active tab found")
	}
	return s.tab, nil
}
