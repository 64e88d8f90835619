// Package cache provides the short-TTL dedup cache that keeps the poller
// from enqueueing a schedule whose previous invocation is still in flight.
//
// The cache is advisory, not a source of truth: if it fails open the
// system still functions with possible duplicate enqueues, which the
// broker and runner tolerate (at-least-once). The TTL should exceed the
// worst-case single-cycle runner latency; a longer TTL only delays
// re-enqueue of already-completed work.
package cache

import "context"

// DedupCache is a best-effort TTL set-membership structure keyed by
// schedule id.
type DedupCache interface {
	// Add marks each id present with the configured TTL from now.
	// An id whose previous entry has expired is re-armed; an id whose
	// entry is still live keeps its original expiry.
	Add(ctx context.Context, ids ...string) error

	// Get returns one element per input id, preserving order and
	// cardinality: the id itself if present and unexpired, otherwise the
	// empty string.
	Get(ctx context.Context, ids ...string) ([]string, error)
}
