package store

import (
	"context"

	"cronback/internal/types"
)

// schemaStatements creates the tables the Postgres backends rely on.
// Statements are idempotent so every process can run them at startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS schedules (
		id       TEXT PRIMARY KEY,
		data     JSONB NOT NULL,
		priority DOUBLE PRECISION NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_priority ON schedules (priority)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id          TEXT PRIMARY KEY,
		schedule_id TEXT NOT NULL,
		data        JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_schedule_id ON jobs (schedule_id)`,
	`CREATE TABLE IF NOT EXISTS dedup_entries (
		id         TEXT PRIMARY KEY,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema creates the schedules, jobs, and dedup tables if missing.
func EnsureSchema(ctx context.Context, db DBTX) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to ensure schema", err)
		}
	}
	return nil
}
