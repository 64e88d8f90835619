// Package service bridges the domain entities and the store, broker, and
// cache interfaces: it owns serialization and the read-modify-write
// choreography that the API handlers, the poller, and the runner share.
package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"cronback/internal/store"
	"cronback/internal/types"
)

// scheduleItem serializes a schedule into its store representation. The
// priority score is always the entity's next_run projection; the two can
// never diverge because this is the only write path.
func scheduleItem(s *types.Schedule) (store.ScheduleItem, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return store.ScheduleItem{}, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal schedule", err)
	}
	return store.ScheduleItem{
		ID:       s.ID.String(),
		Data:     data,
		Priority: s.Priority(),
	}, nil
}

// StoreSchedules persists new schedules into the priority store.
func StoreSchedules(ctx context.Context, repo store.ScheduleStore, schedules ...*types.Schedule) error {
	items := make([]store.ScheduleItem, 0, len(schedules))
	for _, s := range schedules {
		it, err := scheduleItem(s)
		if err != nil {
			return err
		}
		items = append(items, it)
	}
	return repo.Add(ctx, items...)
}

// GetSchedules resolves ids to deserialized schedules. Ids not present in
// the store are silently omitted.
func GetSchedules(ctx context.Context, repo store.ScheduleStore, ids ...string) ([]*types.Schedule, error) {
	data, err := repo.Get(ctx, ids...)
	if err != nil {
		return nil, err
	}
	schedules := make([]*types.Schedule, 0, len(data))
	for _, d := range data {
		var s types.Schedule
		if err := json.Unmarshal(d, &s); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to unmarshal schedule", err)
		}
		schedules = append(schedules, &s)
	}
	return schedules, nil
}

// GetSchedule resolves a single id. Returns a not-found error when the
// schedule does not exist.
func GetSchedule(ctx context.Context, repo store.ScheduleStore, id uuid.UUID) (*types.Schedule, error) {
	schedules, err := GetSchedules(ctx, repo, id.String())
	if err != nil {
		return nil, err
	}
	if len(schedules) == 0 {
		return nil, types.NewAppError(types.ErrCodeNotFoundSchedule, "schedule not found", nil)
	}
	return schedules[0], nil
}

// UpdateSchedules writes back already-mutated schedules, value and score
// together. Entries deleted since the read are not resurrected (the
// store's update path is must-exist).
func UpdateSchedules(ctx context.Context, repo store.ScheduleStore, schedules ...*types.Schedule) error {
	items := make([]store.ScheduleItem, 0, len(schedules))
	for _, s := range schedules {
		it, err := scheduleItem(s)
		if err != nil {
			return err
		}
		items = append(items, it)
	}
	return repo.Update(ctx, items...)
}

// PatchSchedule applies a partial update to a stored schedule: re-read,
// merge present fields (recomputing next_run when the cron expression or
// start_at changed), write back.
func PatchSchedule(ctx context.Context, repo store.ScheduleStore, id uuid.UUID, patch types.SchedulePatch) (*types.Schedule, error) {
	s, err := GetSchedule(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	if err := s.Apply(patch); err != nil {
		return nil, err
	}
	if err := UpdateSchedules(ctx, repo, s); err != nil {
		return nil, err
	}
	return s, nil
}

// DeleteSchedule removes a schedule and returns its last stored state.
func DeleteSchedule(ctx context.Context, repo store.ScheduleStore, id uuid.UUID) (*types.Schedule, error) {
	s, err := GetSchedule(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	if err := repo.Delete(ctx, id.String()); err != nil {
		return nil, err
	}
	return s, nil
}

// GetRange returns the deserialized schedules whose priority score lies
// in [min, max].
func GetRange(ctx context.Context, repo store.ScheduleStore, min, max float64) ([]*types.Schedule, error) {
	ids, err := repo.GetRange(ctx, min, max)
	if err != nil {
		return nil, err
	}
	return GetSchedules(ctx, repo, ids...)
}
