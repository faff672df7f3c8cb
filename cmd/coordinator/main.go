package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/project-tktt/go-scraper/internal/config"
	"github.com/project-tktt/go-scraper/internal/logging"
	"github.com/project-tktt/go-scraper/internal/metrics"
	"github.com/project-tktt/go-scraper/internal/module/coordinator"
	"github.com/project-tktt/go-scraper/internal/queue"
)

func main() {
	cfg := config.Load()

	logger, closeLog, err := logging.Setup(logging.Config(cfg.Logging))
	if err != nil {
		slog.Error("logging setup failed", "error", err)
		os.Exit(1)
	}
	defer closeLog()
	logger = logger.With("component", "coordinator")
	logger.Info("starting coordinator")

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

	m := metrics.New()
	if cfg.Gateway.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Gateway.MetricsAddr, logger); err != nil {
				logger.Error("metrics server", "error", err)
			}
		}()
	}

	bus := queue.NewRedisBus(rdb, queue.RedisBusConfig{Prefix: cfg.Redis.BusPrefix}, logger)
	l, err := bus.Listen(ctx, queue.CoordinatorChannel, coordinator.New(bus, logger, coordinator.WithMetrics(m)))
	if err != nil {
		logger.Error("listen failed", "channel", queue.CoordinatorChannel, "error", err)
		os.Exit(1)
	}
	logger.Info("listening", "channel", queue.CoordinatorChannel)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping")
	if err := l.Close(); err != nil {
		logger.Warn("close listener", "error", err)
	}
	cancel()
	logger.Info("graceful shutdown complete")
}
