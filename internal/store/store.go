// Package store provides the priority store for schedules and the append-
// only store for job records. The schedule store is a keyed map from
// schedule ID to its serialized form joined with a sorted index on a
// numeric priority score (the schedule's next-run time as Unix seconds),
// enabling "everything due before T" range queries.
//
// Two backends exist for each store: an in-memory implementation for tests
// and local development, and a PostgreSQL implementation for production.
package store

import (
	"context"
	"math"
)

// ScheduleItem is one (id, serialized schedule, priority score) tuple as
// the schedule store persists it.
type ScheduleItem struct {
	ID       string
	Data     []byte
	Priority float64
}

// JobItem is one (id, owning schedule id, serialized job) tuple.
type JobItem struct {
	ID         string
	ScheduleID string
	Data       []byte
}

// Unbounded range sentinels for GetRange.
var (
	NegInf = math.Inf(-1)
	PosInf = math.Inf(1)
)

// ScheduleStore is the priority store contract.
//
// Concurrency: callers operate on overlapping key sets concurrently; the
// backend serializes conflicting writes to the same key. Batch operations
// are not cross-key atomic, but each key's value and score always move
// together.
type ScheduleStore interface {
	// Add inserts the items, overwriting values but never an existing
	// priority score (insert-only score semantics, so a concurrent add
	// cannot clobber a score the pipeline already advanced).
	Add(ctx context.Context, items ...ScheduleItem) error

	// Get returns the serialized schedules for the ids that exist.
	// Missing ids are silently omitted; the result carries no positional
	// correspondence to the input.
	Get(ctx context.Context, ids ...string) ([][]byte, error)

	// Update overwrites value and score for existing entries. Entries
	// that do not exist are not created (must-exist score semantics).
	Update(ctx context.Context, items ...ScheduleItem) error

	// Delete removes value and score entries; absent ids are not an error.
	Delete(ctx context.Context, ids ...string) error

	// GetRange returns the ids of all entries whose score lies in
	// [min, max], inclusive. Use NegInf/PosInf for unbounded sides.
	GetRange(ctx context.Context, min, max float64) ([]string, error)

	// Size returns the number of live entries.
	Size(ctx context.Context) (int64, error)
}

// JobStore persists immutable job execution records, indexed by the owning
// schedule for lookup.
type JobStore interface {
	Add(ctx context.Context, items ...JobItem) error
	Get(ctx context.Context, ids ...string) ([][]byte, error)
	// GetByParent returns the serialized jobs for each schedule id.
	GetByParent(ctx context.Context, scheduleIDs ...string) (map[string][][]byte, error)
}
