// The scheduler binary runs the due-schedule poller: every interval it
// queries the priority store for schedules whose next_run has passed,
// filters out ids still held by the dedup cache, and publishes the rest
// to the broker for the runner fleet.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"cronback/internal/broker"
	"cronback/internal/cache"
	"cronback/internal/config"
	"cronback/internal/poller"
	"cronback/internal/store"
	"cronback/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.NewLogger(&config.Config{LogLevel: "error", LogFormat: "json"}).
			Error("failed to load configuration", "error", err.Error())
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err.Error())
		os.Exit(1)
	}
	defer pool.Close()

	if err := store.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to ensure schema", "error", err.Error())
		os.Exit(1)
	}

	b, err := broker.Open(ctx, broker.Options{
		Driver:      cfg.BrokerDriver,
		URL:         cfg.BrokerURL,
		Queue:       cfg.QueueName,
		Prefetch:    cfg.PrefetchCount,
		SQSQueueURL: cfg.SQSQueueURL,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to open broker", "error", err.Error())
		os.Exit(1)
	}
	defer b.Close()

	p := poller.New(poller.Config{
		Store:    store.NewPostgresScheduleStore(pool),
		Cache:    cache.NewPostgresDedupCache(pool, cfg.CacheTTL(), types.RealClock{}),
		Broker:   b,
		Interval: cfg.PollInterval(),
		Logger:   logger,
	})

	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("poller failed", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("scheduler stopped")
}
