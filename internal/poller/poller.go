// Package poller implements the scheduler poller: the control loop that
// finds due schedules in the priority store, drops deactivated ones,
// filters out those still in flight via the dedup cache, and hands the
// rest to the broker.
//
// Per cycle: fetch due -> dedup filter -> publish -> mark cached ->
// sleep. Every sub-step failure is logged and the cycle continues; the
// next cycle re-derives its state from the durable store, so the loop is
// self-healing.
package poller

import (
	"context"
	"log/slog"
	"time"

	"cronback/internal/broker"
	"cronback/internal/cache"
	"cronback/internal/service"
	"cronback/internal/store"
	"cronback/internal/types"
)

// Poller is the due-schedule detection loop.
type Poller struct {
	store    store.ScheduleStore
	cache    cache.DedupCache
	broker   broker.Broker
	interval time.Duration
	clock    types.Clock
	logger   *slog.Logger
}

// Config holds the dependencies for creating a Poller.
type Config struct {
	Store    store.ScheduleStore
	Cache    cache.DedupCache
	Broker   broker.Broker
	Interval time.Duration
	Clock    types.Clock
	Logger   *slog.Logger
}

// New creates a Poller from the given configuration.
func New(cfg Config) *Poller {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		store:    cfg.Store,
		cache:    cfg.Cache,
		broker:   cfg.Broker,
		interval: cfg.Interval,
		clock:    clock,
		logger:   logger,
	}
}

// Run executes poll cycles at the configured interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "poller started", "interval", p.interval.String())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.Cycle(ctx); err != nil {
			// Infrastructure hiccups are not fatal; the next cycle
			// re-queries the store.
			p.logger.ErrorContext(ctx, "poll cycle failed", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "poller stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cycle runs one poll iteration. "now" is truncated to whole seconds so
// repeated queries within the same second see a stable upper bound.
func (p *Poller) Cycle(ctx context.Context) error {
	now := p.clock.Now().Truncate(time.Second)

	// Everything due at or before now.
	candidates, err := service.GetRange(ctx, p.store, store.NegInf, float64(now.Unix()))
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	// Deactivated schedules keep their store entry and score but are
	// never handed to the broker.
	active := make([]*types.Schedule, 0, len(candidates))
	for _, s := range candidates {
		if s.Active {
			active = append(active, s)
		}
	}
	inactive := len(candidates) - len(active)
	if len(active) == 0 {
		return nil
	}

	runnable, suppressed, err := service.FilterCached(ctx, p.cache, active...)
	if err != nil {
		// Fail open: the cache is advisory, duplicate enqueues are
		// tolerated downstream.
		p.logger.WarnContext(ctx, "dedup cache unavailable, publishing unfiltered",
			"error", err.Error(),
		)
		runnable = active
		suppressed = 0
	}

	queued, err := service.EnqueueSchedules(ctx, p.broker, runnable...)
	if err != nil {
		return err
	}

	if err := service.MarkCached(ctx, p.cache, queued...); err != nil {
		// A missed cache write means at worst one duplicate publish next
		// cycle.
		p.logger.WarnContext(ctx, "failed to mark schedules cached", "error", err.Error())
	}

	// Lag signal over every active candidate, suppressed ones included;
	// a paused schedule is deliberately behind, not lagging.
	var totalDelay time.Duration
	for _, s := range active {
		totalDelay += s.CurrentDelay(now)
	}

	p.logger.InfoContext(ctx, "poll cycle complete",
		"candidates", len(candidates),
		"inactive", inactive,
		"suppressed", suppressed,
		"published", len(queued),
		"total_delay", totalDelay.String(),
	)
	return nil
}
