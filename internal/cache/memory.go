package cache

import (
	"context"
	"sync"
	"time"

	"cronback/internal/types"
)

// MemoryDedupCache is a mutex-guarded in-memory DedupCache with an
// injectable clock so tests can step past the TTL without sleeping.
type MemoryDedupCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	clock   types.Clock
}

// NewMemoryDedupCache creates an in-memory cache with the given TTL.
// A nil clock defaults to the system clock.
func NewMemoryDedupCache(ttl time.Duration, clock types.Clock) *MemoryDedupCache {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &MemoryDedupCache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		clock:   clock,
	}
}

// Add arms each id with TTL from now. Live entries keep their expiry;
// expired entries are re-armed (SETNX-with-TTL semantics).
func (c *MemoryDedupCache) Add(_ context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	for _, id := range ids {
		if exp, ok := c.entries[id]; ok && exp.After(now) {
			continue
		}
		c.entries[id] = now.Add(c.ttl)
	}
	return nil
}

// Get returns id-or-empty per input, preserving order and cardinality.
func (c *MemoryDedupCache) Get(_ context.Context, ids ...string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	out := make([]string, len(ids))
	for i, id := range ids {
		if exp, ok := c.entries[id]; ok {
			if exp.After(now) {
				out[i] = id
			} else {
				delete(c.entries, id)
			}
		}
	}
	return out, nil
}
