package cache

import (
	"context"
	"time"

	"cronback/internal/store"
	"cronback/internal/types"
)

// PostgresDedupCache implements DedupCache on a dedup_entries table:
//
//	dedup_entries(id TEXT PRIMARY KEY, expires_at TIMESTAMPTZ)
//
// Add uses INSERT ... ON CONFLICT DO UPDATE ... WHERE expired, the SQL
// analogue of SET key val EX ttl NX: a live entry is left alone, an
// expired one is reclaimed atomically.
type PostgresDedupCache struct {
	db    store.DBTX
	ttl   time.Duration
	clock types.Clock
}

// NewPostgresDedupCache creates a Postgres-backed cache with the given
// TTL. A nil clock defaults to the system clock.
func NewPostgresDedupCache(db store.DBTX, ttl time.Duration, clock types.Clock) *PostgresDedupCache {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &PostgresDedupCache{db: db, ttl: ttl, clock: clock}
}

// Add arms each id with TTL from now. The expires_at is computed as a
// concrete timestamp in Go rather than interval arithmetic in SQL, which
// avoids PostgreSQL interval parsing of Go duration strings.
func (c *PostgresDedupCache) Add(ctx context.Context, ids ...string) error {
	now := c.clock.Now()
	expiresAt := now.Add(c.ttl)
	for _, id := range ids {
		_, err := c.db.Exec(ctx,
			`INSERT INTO dedup_entries (id, expires_at)
			 VALUES ($1, $2)
			 ON CONFLICT (id) DO UPDATE
			   SET expires_at = EXCLUDED.expires_at
			   WHERE dedup_entries.expires_at < $3`,
			id, expiresAt, now,
		)
		if err != nil {
			return types.NewAppError(types.ErrCodeCacheUnavailable, "failed to add dedup entry", err)
		}
	}
	return nil
}

// Get returns id-or-empty per input, preserving order and cardinality.
func (c *PostgresDedupCache) Get(ctx context.Context, ids ...string) ([]string, error) {
	out := make([]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := c.db.Query(ctx,
		`SELECT id FROM dedup_entries WHERE id = ANY($1) AND expires_at > $2`,
		ids, c.clock.Now(),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeCacheUnavailable, "failed to query dedup entries", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeCacheUnavailable, "failed to scan dedup entry", err)
		}
		present[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeCacheUnavailable, "error iterating dedup entries", err)
	}

	for i, id := range ids {
		if present[id] {
			out[i] = id
		}
	}
	return out, nil
}
