// The runner binary consumes due-schedule ids from the broker, executes
// each schedule's HTTP callback, records the result, and advances the
// schedule's next run. Messages are acknowledged only after the results
// are persisted, so a crash mid-batch means redelivery, not loss.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"cronback/internal/broker"
	"cronback/internal/config"
	"cronback/internal/runner"
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

	// The in-process driver keeps unacked state in this process; recover
	// anything a previous incarnation left behind.
	if mb, ok := b.(*broker.MemoryBroker); ok {
		if n := mb.RequeueUnacked(); n > 0 {
			logger.Info("requeued unacked messages", "count", n)
		}
	}

	r := runner.New(runner.Config{
		Schedules:  store.NewPostgresScheduleStore(pool),
		Jobs:       store.NewPostgresJobStore(pool),
		Broker:     b,
		Executor:   runner.NewCallbackExecutor(cfg.CallbackTimeout(), types.RealClock{}),
		BatchLimit: cfg.PrefetchCount,
		Logger:     logger,
	})

	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("runner failed", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("runner stopped")
}
