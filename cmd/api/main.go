// The api binary serves the schedule management HTTP API: schedule CRUD
// plus per-schedule execution history, backed by Postgres.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"cronback/internal/api"
	"cronback/internal/config"
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

	server := api.NewServer(
		cfg.APIAddr(),
		store.NewPostgresScheduleStore(pool),
		store.NewPostgresJobStore(pool),
		types.RealClock{},
		logger,
	)

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("api server failed", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("api server stopped")
}
