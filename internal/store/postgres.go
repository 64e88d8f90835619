package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"cronback/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresScheduleStore implements ScheduleStore on a schedules table:
//
//	schedules(id TEXT PRIMARY KEY, data JSONB, priority DOUBLE PRECISION)
//
// with a btree index on priority for range queries. Value and score live
// in the same row, so each single-key write is atomic and the two can
// never disagree for a key.
type PostgresScheduleStore struct {
	db DBTX
}

// NewPostgresScheduleStore creates a schedule store backed by the given
// database connection (pool or transaction).
func NewPostgresScheduleStore(db DBTX) *PostgresScheduleStore {
	return &PostgresScheduleStore{db: db}
}

// Add upserts each item. On conflict only the value is replaced; the
// existing priority is kept (insert-only score semantics), so a racing
// add cannot move a score the pipeline already advanced.
func (s *PostgresScheduleStore) Add(ctx context.Context, items ...ScheduleItem) error {
	for _, it := range items {
		_, err := s.db.Exec(ctx,
			`INSERT INTO schedules (id, data, priority)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
			it.ID, it.Data, it.Priority,
		)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to add schedule", err)
		}
	}
	return nil
}

// Get returns serialized schedules for the ids that exist, in no
// particular correspondence to the input order.
func (s *PostgresScheduleStore) Get(ctx context.Context, ids ...string) ([][]byte, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT data FROM schedules WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get schedules", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan schedule", err)
		}
		out = append(out, data)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating schedules", err)
	}
	return out, nil
}

// Update overwrites value and score for existing rows only. A plain
// UPDATE never creates a score entry for a key that was deleted in a race.
func (s *PostgresScheduleStore) Update(ctx context.Context, items ...ScheduleItem) error {
	for _, it := range items {
		_, err := s.db.Exec(ctx,
			`UPDATE schedules SET data = $2, priority = $3 WHERE id = $1`,
			it.ID, it.Data, it.Priority,
		)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to update schedule", err)
		}
	}
	return nil
}

// Delete removes the rows; absent ids are a no-op.
func (s *PostgresScheduleStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `DELETE FROM schedules WHERE id = ANY($1)`, ids)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete schedules", err)
	}
	return nil
}

// GetRange returns ids with priority in [min, max] inclusive, ordered by
// priority. DOUBLE PRECISION accepts ±Infinity, so the unbounded
// sentinels pass through unchanged.
func (s *PostgresScheduleStore) GetRange(ctx context.Context, min, max float64) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id FROM schedules
		 WHERE priority >= $1 AND priority <= $2
		 ORDER BY priority`,
		min, max,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query schedule range", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan schedule id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating schedule range", err)
	}
	return ids, nil
}

// Size returns the number of schedule rows.
func (s *PostgresScheduleStore) Size(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM schedules`).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count schedules", err)
	}
	return n, nil
}

// PostgresJobStore implements JobStore on a jobs table:
//
//	jobs(id TEXT PRIMARY KEY, schedule_id TEXT, data JSONB)
//
// with an index on schedule_id for per-schedule lookup.
type PostgresJobStore struct {
	db DBTX
}

// NewPostgresJobStore creates a job store backed by the given database
// connection (pool or transaction).
func NewPostgresJobStore(db DBTX) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

// Add inserts the job records. Jobs are immutable; conflicts on id are
// ignored so a redelivered batch can be recorded idempotently.
func (s *PostgresJobStore) Add(ctx context.Context, items ...JobItem) error {
	for _, it := range items {
		_, err := s.db.Exec(ctx,
			`INSERT INTO jobs (id, schedule_id, data)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO NOTHING`,
			it.ID, it.ScheduleID, it.Data,
		)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to add job record", err)
		}
	}
	return nil
}

func (s *PostgresJobStore) Get(ctx context.Context, ids ...string) ([][]byte, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `SELECT data FROM jobs WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get jobs", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan job", err)
		}
		out = append(out, data)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating jobs", err)
	}
	return out, nil
}

// GetByParent returns the serialized jobs grouped by owning schedule id.
// Schedules with no jobs map to a nil slice.
func (s *PostgresJobStore) GetByParent(ctx context.Context, scheduleIDs ...string) (map[string][][]byte, error) {
	out := make(map[string][][]byte, len(scheduleIDs))
	if len(scheduleIDs) == 0 {
		return out, nil
	}
	for _, sid := range scheduleIDs {
		out[sid] = nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT schedule_id, data FROM jobs WHERE schedule_id = ANY($1)`,
		scheduleIDs,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get jobs by schedule", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sid string
		var data []byte
		if err := rows.Scan(&sid, &data); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan job row", err)
		}
		out[sid] = append(out[sid], data)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating job rows", err)
	}
	return out, nil
}
