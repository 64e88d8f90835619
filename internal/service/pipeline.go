package service

import (
	"context"

	"github.com/google/uuid"

	"cronback/internal/broker"
	"cronback/internal/cache"
	"cronback/internal/types"
)

// EnqueueSchedules publishes the schedules' ids to the broker and returns
// the schedules that were actually queued.
func EnqueueSchedules(ctx context.Context, b broker.Broker, schedules ...*types.Schedule) ([]*types.Schedule, error) {
	ids := make([]string, len(schedules))
	for i, s := range schedules {
		ids[i] = s.ID.String()
	}
	queued, err := b.Publish(ctx, ids...)
	if err != nil {
		return nil, err
	}

	queuedSet := make(map[string]bool, len(queued))
	for _, id := range queued {
		queuedSet[id] = true
	}
	var out []*types.Schedule
	for _, s := range schedules {
		if queuedSet[s.ID.String()] {
			out = append(out, s)
		}
	}
	return out, nil
}

// DequeueIDs drains up to limit deliveries and parses their payloads as
// schedule ids. Malformed payloads are dropped; their deliveries are
// still returned so the caller acks them (a payload that can never parse
// would otherwise redeliver forever).
func DequeueIDs(ctx context.Context, b broker.Broker, limit int) ([]uuid.UUID, []broker.Delivery, error) {
	deliveries, err := b.Drain(ctx, limit)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]uuid.UUID, 0, len(deliveries))
	for _, d := range deliveries {
		id, err := uuid.Parse(d.Payload)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, deliveries, nil
}

// FilterCached returns only the schedules whose ids are not present in
// the dedup cache, plus the count of suppressed schedules.
func FilterCached(ctx context.Context, c cache.DedupCache, schedules ...*types.Schedule) ([]*types.Schedule, int, error) {
	if len(schedules) == 0 {
		return nil, 0, nil
	}
	ids := make([]string, len(schedules))
	for i, s := range schedules {
		ids[i] = s.ID.String()
	}
	hits, err := c.Get(ctx, ids...)
	if err != nil {
		return nil, 0, err
	}

	var runnable []*types.Schedule
	suppressed := 0
	for i, s := range schedules {
		if hits[i] == "" {
			runnable = append(runnable, s)
		} else {
			suppressed++
		}
	}
	return runnable, suppressed, nil
}

// MarkCached records the schedules' ids in the dedup cache.
func MarkCached(ctx context.Context, c cache.DedupCache, schedules ...*types.Schedule) error {
	if len(schedules) == 0 {
		return nil
	}
	ids := make([]string, len(schedules))
	for i, s := range schedules {
		ids[i] = s.ID.String()
	}
	return c.Add(ctx, ids...)
}
