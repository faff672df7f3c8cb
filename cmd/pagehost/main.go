package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/project-tktt/go-scraper/internal/config"
	"github.com/project-tktt/go-scraper/internal/logging"
	"github.com/project-tktt/go-scraper/internal/metrics"
	"github.com/project-tktt/go-scraper/internal/module/page"
	"github.com/project-tktt/go-scraper/internal/module/worker"
	"github.com/project-tktt/go-scraper/internal/queue"
)

func main() {
	concurrency := flag.Int("concurrency", 4, "pages loaded in parallel")
	openKey := flag.String("queue", "scrape:page:open", "Redis list of URLs to open")
	flag.Parse()

	cfg := config.Load()

	logger, closeLog, err := logging.Setup(logging.Config(cfg.Logging))
	if err != nil {
		slog.Error("logging setup failed", "error", err)
		os.Exit(1)
	}
	defer closeLog()
	logger = logger.With("component", "pagehost")
	logger.Info("starting page host", "renderer", cfg.Page.Renderer, "max_pages", cfg.Page.MaxPages)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	logger.Info("redis connected", "addr", cfg.Redis.Addr)

	loader, closeLoader, err := page.NewLoader(cfg.Page.Renderer, cfg.Page.RodRemoteURL, page.LoaderConfig{
		UserAgent:    cfg.Page.UserAgent,
		ProxyURL:     cfg.Page.ProxyURL,
		RequestDelay: cfg.Page.RequestDelay,
		Timeout:      cfg.Page.Timeout,
	}, logger)
	if err != nil {
		logger.Error("create loader failed", "error", err)
		os.Exit(1)
	}
	defer closeLoader()

	m := metrics.New()

	bus := queue.NewRedisBus(rdb, queue.RedisBusConfig{Prefix: cfg.Redis.BusPrefix}, logger)
	host, err := page.NewHost(bus, loader, page.NewRedisDirectory(rdb, cfg.Redis.PagePrefix), page.Config{
		MaxPages: cfg.Page.MaxPages,
		Metrics:  m,
	}, logger)
	if err != nil {
		logger.Error("create host failed", "error", err)
		os.Exit(1)
	}
	defer host.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Gateway.MetricsAddr != "" {
		g.Go(func() error {
			return m.Serve(gctx, cfg.Gateway.MetricsAddr, logger)
		})
	}

	// URLs from the command line first, then whatever arrives on the queue
	g.Go(func() error {
		if args := flag.Args(); len(args) > 0 {
			w := worker.NewWorker(worker.NewSliceSource(args...), host, worker.Config{Concurrency: *concurrency}, logger)
			if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("open pages", "error", err)
			}
		}

		src := worker.NewRedisSource(rdb, *openKey, 5*time.Second)
		w := worker.NewWorker(src, host, worker.Config{Concurrency: *concurrency}, logger)
		if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	select {
	case <-sigChan:
		logger.Info("shutdown signal received, stopping")
	case <-gctx.Done():
		logger.Warn("page host stopped on its own")
	}
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("page host", "error", err)
		}
		logger.Info("graceful shutdown complete")
	case <-time.After(30 * time.Second):
		logger.Warn("shutdown timeout, forcing exit")
	}
}
