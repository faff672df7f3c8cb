package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-tktt/go-scraper/internal/domain"
	"github.com/project-tktt/go-scraper/internal/module/page"
)

type countingOpener struct {
	mu     sync.Mutex
	opened []string
	fail   map[string]bool
}

func (o *countingOpener) Open(ctx context.Context, url string) (*page.Page, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail[url] {
		return nil, errors.New("boom")
	}
	o.opened = append(o.opened, url)
	return &page.Page{ID: domain.PageID(len(o.opened)), URL: url}, nil
}

func TestWorker_DrainsSource(t *testing.T) {
	opener := &countingOpener{fail: map[string]bool{"https://bad.test": true}}
	w := NewWorker(NewSliceSource("https://a.test", "https://bad.test", "https://b.test", "https://c.test"), opener, Config{Concurrency: 2}, nil)

	var mu sync.Mutex
	var failures int
	w.OnOpened = func(url string, p *page.Page, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures++
		}
	}

	require.NoError(t, w.Run(context.Background()))
	assert.ElementsMatch(t, []string{"https://a.test", "https://b.test", "https://c.test"}, opener.opened)
	assert.Equal(t, 1, failures)
}

type blockingSource struct{}

func (blockingSource) Next(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestWorker_StopsOnContext(t *testing.T) {
	w := NewWorker(blockingSource{}, &countingOpener{}, Config{Concurrency: 3}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type failingSource struct {
	calls atomic.Int64
}

func (s *failingSource) Next(ctx context.Context) (string, error) {
	s.calls.Add(1)
	return "", errors.New("redis down")
}

func TestWorker_SourceErrorStopsPool(t *testing.T) {
	src := &failingSource{}
	opener := &countingOpener{}
	w := NewWorker(src, opener, Config{Concurrency: 2}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := w.Run(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "redis down")
	assert.LessOrEqual(t, src.calls.Load(), int64(2))
	assert.Empty(t, opener.opened)
}

type flakySource struct {
	mu   sync.Mutex
	urls []string
}

func (s *flakySource) Next(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.urls) == 0 {
		return "", errors.New("connection reset")
	}
	url := s.urls[0]
	s.urls = s.urls[1:]
	return url, nil
}

func TestWorker_SourceErrorAfterOpens(t *testing.T) {
	opener := &countingOpener{}
	w := NewWorker(&flakySource{urls: []string{"https://a.test", "https://b.test"}}, opener, Config{Concurrency: 1}, nil)

	err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, opener.opened)
}

func TestRedisSource_PushNext(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	src := NewRedisSource(client, "", time.Second)
	require.NoError(t, src.Push(ctx, "https://a.test", "https://b.test"))

	url, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://a.test", url)
	url, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://b.test", url)

	// empty list: wait out the timeout and ask again
	url, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestWorker_StopsWhenRedisGoesAway(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	src := NewRedisSource(client, "", time.Second)
	require.NoError(t, src.Push(context.Background(), "https://a.test"))

	opener := &countingOpener{}
	w := NewWorker(src, opener, Config{Concurrency: 1}, nil)
	w.OnOpened = func(url string, p *page.Page, err error) { mr.Close() }

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := w.Run(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"https://a.test"}, opener.opened)
}
