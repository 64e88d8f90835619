package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"cronback/internal/types"
)

// Database connection retry bounds. Startup tolerates a database that is
// still coming up; an exhausted retry budget is fatal.
const (
	dbConnectAttempts = 10
	dbConnectBaseWait = time.Second
	dbConnectMaxWait  = 30 * time.Second
)

// Connect opens a pgx pool and verifies it with a ping, retrying with
// exponential backoff.
func Connect(ctx context.Context, databaseURL string, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	wait := dbConnectBaseWait
	var lastErr error
	for attempt := 1; attempt <= dbConnectAttempts; attempt++ {
		pool, err := pgxpool.New(ctx, databaseURL)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				logger.Info("database connected")
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err

		logger.Warn("database connection failed, retrying",
			"attempt", attempt,
			"wait", wait.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > dbConnectMaxWait {
			wait = dbConnectMaxWait
		}
	}
	return nil, types.NewAppError(types.ErrCodeInternalDB,
		fmt.Sprintf("database connection failed after %d attempts", dbConnectAttempts), lastErr)
}
