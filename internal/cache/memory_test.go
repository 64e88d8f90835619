package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time          { return f.now.UTC() }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func TestMemoryDedupCache_AddAndGetPreservesOrder(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	c := NewMemoryDedupCache(10*time.Second, clock)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, "a", "b"))

	hits, err := c.Get(ctx, "a", "ghost", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "", "b"}, hits)
}

func TestMemoryDedupCache_EntriesExpire(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	c := NewMemoryDedupCache(10*time.Second, clock)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, "a"))

	clock.Advance(9 * time.Second)
	hits, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, hits)

	clock.Advance(2 * time.Second)
	hits, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{""}, hits)
}

func TestMemoryDedupCache_AddDoesNotExtendLiveEntry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	c := NewMemoryDedupCache(10*time.Second, clock)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, "a"))

	// Re-adding at t+5 must not push the expiry to t+15.
	clock.Advance(5 * time.Second)
	require.NoError(t, c.Add(ctx, "a"))

	clock.Advance(6 * time.Second)
	hits, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{""}, hits)
}

func TestMemoryDedupCache_ExpiredEntryIsReArmed(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	c := NewMemoryDedupCache(10*time.Second, clock)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, "a"))
	clock.Advance(11 * time.Second)
	require.NoError(t, c.Add(ctx, "a"))

	hits, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, hits)
}
