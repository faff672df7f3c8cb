// Package worker opens pages from a stream of URLs with a bounded pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/project-tktt/go-scraper/internal/module/page"
)

// ErrDone is returned by a Source that has no more URLs
var ErrDone = errors.New("source exhausted")

// Opener loads a URL and starts serving it
type Opener interface {
	Open(ctx context.Context, url string) (*page.Page, error)
}

// Source yields URLs to open. Next returns "" with a nil error when it
// timed out waiting and should be called again.
type Source interface {
	Next(ctx context.Context) (string, error)
}

// Worker opens pages from a source
type Worker struct {
	source      Source
	opener      Opener
	concurrency int
	logger      *slog.Logger

	// OnOpened, when set, is called after every attempt
	OnOpened func(url string, p *page.Page, err error)
}

// Config holds worker configuration
type Config struct {
	Concurrency int
}

// NewWorker creates a new worker
func NewWorker(source Source, opener Opener, cfg Config, logger *slog.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		source:      source,
		opener:      opener,
		concurrency: cfg.Concurrency,
		logger:      logger,
	}
}

// Run starts the pool. It returns nil once the source is exhausted and
// every open has finished, ctx.Err() when ctx ends first, or the first
// source error. Either way the remaining workers are stopped before it
// returns.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("starting page workers", "concurrency", w.concurrency)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errChan := make(chan error, w.concurrency)

	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			if err := w.runSingle(runCtx, workerID); err != nil {
				errChan <- fmt.Errorf("worker %d: %w", workerID, err)
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errChan:
		w.logger.Error("page workers stopping", "error", err)
	case <-done:
		// a worker may have failed just before the last one finished
		select {
		case err = <-errChan:
		default:
			return nil
		}
	}

	cancel()
	<-done
	return err
}

func (w *Worker) runSingle(ctx context.Context, workerID int) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		url, err := w.source.Next(ctx)
		if errors.Is(err, ErrDone) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("next url: %w", err)
		}
		if url == "" {
			continue
		}

		p, err := w.opener.Open(ctx, url)
		if err != nil {
			w.logger.Error("open page failed", "worker", workerID, "url", url, "error", err)
		}
		if w.OnOpened != nil {
			w.OnOpened(url, p, err)
		}
	}
}
