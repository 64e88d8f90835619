package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"cronback/internal/store"
	"cronback/internal/types"
)

// AddJobs persists execution records into the job store.
func AddJobs(ctx context.Context, repo store.JobStore, jobs ...types.Job) error {
	items := make([]store.JobItem, 0, len(jobs))
	for _, j := range jobs {
		data, err := json.Marshal(j)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal job", err)
		}
		items = append(items, store.JobItem{
			ID:         j.ID.String(),
			ScheduleID: j.ScheduleID.String(),
			Data:       data,
		})
	}
	return repo.Add(ctx, items...)
}

// GetScheduleJobs returns the execution records for each schedule id.
func GetScheduleJobs(ctx context.Context, repo store.JobStore, scheduleIDs ...uuid.UUID) (map[uuid.UUID][]types.Job, error) {
	ids := make([]string, len(scheduleIDs))
	for i, sid := range scheduleIDs {
		ids[i] = sid.String()
	}

	raw, err := repo.GetByParent(ctx, ids...)
	if err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID][]types.Job, len(scheduleIDs))
	for _, sid := range scheduleIDs {
		var jobs []types.Job
		for _, d := range raw[sid.String()] {
			var j types.Job
			if err := json.Unmarshal(d, &j); err != nil {
				return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to unmarshal job", err)
			}
			jobs = append(jobs, j)
		}
		out[sid] = jobs
	}
	return out, nil
}
