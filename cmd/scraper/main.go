package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/redis/go-redis/v9"

	"github.com/project-tktt/go-scraper/internal/api"
	"github.com/project-tktt/go-scraper/internal/config"
	"github.com/project-tktt/go-scraper/internal/domain"
	"github.com/project-tktt/go-scraper/internal/export"
	"github.com/project-tktt/go-scraper/internal/logging"
	"github.com/project-tktt/go-scraper/internal/metrics"
	"github.com/project-tktt/go-scraper/internal/module/coordinator"
	"github.com/project-tktt/go-scraper/internal/module/page"
	"github.com/project-tktt/go-scraper/internal/module/panel"
	"github.com/project-tktt/go-scraper/internal/module/worker"
	"github.com/project-tktt/go-scraper/internal/queue"
	"github.com/project-tktt/go-scraper/internal/settings"
	"github.com/project-tktt/go-scraper/internal/storage"
)

type options struct {
	bus      string
	url      string
	file     string
	selector string
	mode     string
	export   string
	outDir   string
	save     bool
	serve    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.bus, "bus", "memory", "message bus: memory (all in this process) or redis")
	flag.StringVar(&opts.url, "url", "", "page to open")
	flag.StringVar(&opts.file, "file", "", "local HTML file to open instead of a URL")
	flag.StringVar(&opts.selector, "selector", "", "CSS selector to extract")
	flag.StringVar(&opts.mode, "mode", "text", "extraction type: text, attributes or html")
	flag.StringVar(&opts.export, "export", "", "write the result as csv or json")
	flag.StringVar(&opts.outDir, "out", ".", "directory for exported files")
	flag.BoolVar(&opts.save, "save", false, "store the result as a snapshot")
	flag.BoolVar(&opts.serve, "serve", false, "serve the HTTP gateway until interrupted")
	flag.Parse()

	cfg := config.Load()

	logger, closeLog, err := logging.Setup(logging.Config(cfg.Logging))
	if err != nil {
		slog.Error("logging setup failed", "error", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(opts, cfg, logger); err != nil {
		logger.Error("scraper failed", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(opts options, cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var rdb *redis.Client
	if opts.bus == "redis" || cfg.Snapshot.Backend == storage.BackendRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		logger.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	store, err := storage.Open(ctx, storage.Options{
		Backend:       cfg.Snapshot.Backend,
		Redis:         rdb,
		RedisPrefix:   cfg.Redis.StorePrefix,
		PostgresURL:   cfg.Postgres.ConnectionString,
		PostgresTable: cfg.Postgres.TableName,
		ESAddresses:   cfg.Elasticsearch.Addresses,
		ESIndex:       cfg.Elasticsearch.Index,
	})
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	var settingsStore settings.Store = settings.NewMemoryStore()
	if rdb != nil {
		settingsStore = settings.NewRedisStore(rdb, cfg.Redis.SettingsPrefix)
	}

	m := metrics.New()
	deps := api.Deps{Store: store, Settings: settingsStore, Metrics: m, Logger: logger.With("component", "gateway")}
	var ctrl *panel.Controller

	switch opts.bus {
	case "memory":
		bus := queue.NewMemoryBus(logger)
		if _, err := bus.Listen(ctx, queue.CoordinatorChannel, coordinator.New(bus, logger.With("component", "coordinator"), coordinator.WithMetrics(m))); err != nil {
			return fmt.Errorf("listen coordinator: %w", err)
		}

		loader, closeLoader, err := page.NewLoader(cfg.Page.Renderer, cfg.Page.RodRemoteURL, page.LoaderConfig{
			UserAgent:    cfg.Page.UserAgent,
			ProxyURL:     cfg.Page.ProxyURL,
			RequestDelay: cfg.Page.RequestDelay,
			Timeout:      cfg.Page.Timeout,
		}, logger)
		if err != nil {
			return err
		}
		defer closeLoader()

		host, err := page.NewHost(bus, loader, page.NewMemoryDirectory(), page.Config{MaxPages: cfg.Page.MaxPages, Metrics: m}, logger.With("component", "pagehost"))
		if err != nil {
			return err
		}
		defer host.Close()

		if err := openInitial(ctx, host, opts); err != nil {
			return err
		}

		ctrl = panel.NewController(bus, host, store, panel.WithLogger(logger.With("component", "panel")), panel.WithMetrics(m))
		deps.Pages = host

	case "redis":
		bus := queue.NewRedisBus(rdb, queue.RedisBusConfig{Prefix: cfg.Redis.BusPrefix}, logger)
		urls := worker.NewRedisSource(rdb, "", 0)
		if opts.url != "" {
			// a page host picks it up; -selector then targets whatever tab is active
			if err := urls.Push(ctx, opts.url); err != nil {
				return err
			}
			logger.Info("url queued", "url", opts.url)
		}

		ctrl = panel.NewController(bus, page.NewRedisDirectory(rdb, cfg.Redis.PagePrefix), store, panel.WithLogger(logger.With("component", "panel")), panel.WithMetrics(m))
		deps.Queue = urls

	default:
		return fmt.Errorf("unknown bus %q", opts.bus)
	}
	deps.Panel = ctrl

	if opts.selector != "" {
		if err := extractOnce(ctx, ctrl, opts, logger); err != nil {
			return err
		}
	}

	if opts.serve {
		return serve(ctx, cfg.Gateway.Addr, api.NewServer(deps), logger)
	}
	return nil
}

func openInitial(ctx context.Context, host *page.Host, opts options) error {
	switch {
	case opts.file != "":
		f, err := os.Open(opts.file)
		if err != nil {
			return fmt.Errorf("open file: %w", err)
		}
		defer f.Close()

		doc, err := goquery.NewDocumentFromReader(f)
		if err != nil {
			return fmt.Errorf("parse %s: %w", opts.file, err)
		}
		abs, _ := filepath.Abs(opts.file)
		return host.AddDocument(ctx, &page.Page{URL: "file://" + abs, Doc: doc})
	case opts.url != "":
		_, err := host.Open(ctx, opts.url)
		return err
	}
	return nil
}

func extractOnce(ctx context.Context, ctrl *panel.Controller, opts options, logger *slog.Logger) error {
	mode, err := domain.ParseMode(opts.mode)
	if err != nil {
		return err
	}

	if _, err := ctrl.Submit(ctx, opts.selector, mode); err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if err := ctrl.RenderTable(os.Stdout); err != nil {
		return err
	}

	if opts.export != "" {
		f, err := export.ParseFormat(opts.export)
		if err != nil {
			return err
		}
		path, err := writeExport(ctrl, f, opts.outDir)
		if err != nil {
			return err
		}
		logger.Info("exported", "file", path)
	}

	if opts.save {
		key, err := ctrl.Save(ctx)
		if err != nil {
			return err
		}
		logger.Info("snapshot saved", "key", key)
	}
	return nil
}

func writeExport(ctrl *panel.Controller, f export.Format, dir string) (string, error) {
	tmp, err := os.CreateTemp(dir, "export-*")
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	name, err := ctrl.Export(tmp, f)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename export file: %w", err)
	}
	return path, nil
}

func serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
