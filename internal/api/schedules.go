package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cronback/internal/service"
	"cronback/internal/store"
	"cronback/internal/types"
)

// CreateScheduleRequest is the request body for POST /schedules.
type CreateScheduleRequest struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Expression  string              `json:"schedule"`
	StartAt     *time.Time          `json:"start_at,omitempty"`
	Active      *bool               `json:"active,omitempty"`
	Job         types.JobDefinition `json:"job"`
}

// ScheduleJobsResponse is the body for GET /schedules/{id}/jobs.
type ScheduleJobsResponse struct {
	ScheduleID uuid.UUID   `json:"schedule_id"`
	Jobs       []types.Job `json:"jobs"`
}

// ScheduleHandler manages schedule CRUD and execution-history reads.
type ScheduleHandler struct {
	schedules store.ScheduleStore
	jobs      store.JobStore
	clock     types.Clock
	logger    *slog.Logger
}

// NewScheduleHandler creates a handler over the given stores.
func NewScheduleHandler(schedules store.ScheduleStore, jobs store.JobStore, clock types.Clock, logger *slog.Logger) *ScheduleHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduleHandler{
		schedules: schedules,
		jobs:      jobs,
		clock:     clock,
		logger:    logger,
	}
}

// RegisterRoutes mounts the schedule routes on r.
func (h *ScheduleHandler) RegisterRoutes(r chi.Router) {
	r.Route("/schedules", func(r chi.Router) {
		r.Post("/", h.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Patch)
			r.Delete("/", h.Delete)
			r.Get("/jobs", h.ListJobs)
		})
	})
}

// Create handles POST /schedules. Validation order is: decode, required
// fields, cron expression, callback definition. The stored schedule,
// initial next_run included, is echoed back with 201.
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	if err := validateCreate(&req); err != nil {
		Error(w, r, err)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	var startAt time.Time
	if req.StartAt != nil {
		startAt = *req.StartAt
	}

	s, err := types.NewSchedule(req.Name, req.Description, req.Expression, startAt, active, req.Job, h.clock)
	if err != nil {
		Error(w, r, err)
		return
	}

	if err := service.StoreSchedules(r.Context(), h.schedules, s); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to store schedule", "error", err.Error())
		Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "schedule created",
		"schedule_id", s.ID.String(),
		"next_run", s.NextRun.Format(time.RFC3339),
	)
	JSON(w, r, http.StatusCreated, APIResponse{Data: s})
}

// Get handles GET /schedules/{id}.
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	s, err := service.GetSchedule(r.Context(), h.schedules, id)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: s})
}

// Patch handles PATCH /schedules/{id}. Only fields present in the body
// change; patching the cron expression or start_at recomputes next_run.
func (h *ScheduleHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	var patch types.SchedulePatch
	if err := DecodeJSON(w, r, &patch); err != nil {
		Error(w, r, err)
		return
	}

	s, err := service.PatchSchedule(r.Context(), h.schedules, id, patch)
	if err != nil {
		Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "schedule updated", "schedule_id", s.ID.String())
	JSON(w, r, http.StatusOK, APIResponse{Data: s})
}

// Delete handles DELETE /schedules/{id}. The last stored state is
// returned so the caller can see what was removed.
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	s, err := service.DeleteSchedule(r.Context(), h.schedules, id)
	if err != nil {
		Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "schedule deleted", "schedule_id", s.ID.String())
	JSON(w, r, http.StatusOK, APIResponse{Data: s})
}

// ListJobs handles GET /schedules/{id}/jobs. Requires the schedule to
// exist; a schedule with no executions yet returns an empty list.
func (h *ScheduleHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	if _, err := service.GetSchedule(r.Context(), h.schedules, id); err != nil {
		Error(w, r, err)
		return
	}

	history, err := service.GetScheduleJobs(r.Context(), h.jobs, id)
	if err != nil {
		Error(w, r, err)
		return
	}
	jobs := history[id]
	if jobs == nil {
		jobs = []types.Job{}
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: ScheduleJobsResponse{
		ScheduleID: id,
		Jobs:       jobs,
	}})
}

// pathID parses the {id} path parameter. A non-UUID id cannot name any
// schedule, so it reads as not found rather than a validation failure.
func pathID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, types.NewAppError(types.ErrCodeNotFoundSchedule, "schedule not found", err)
	}
	return id, nil
}

func validateCreate(req *CreateScheduleRequest) error {
	missing := ""
	switch {
	case req.Name == "":
		missing = "name"
	case req.Expression == "":
		missing = "schedule"
	case req.Job.CallbackURL == "":
		missing = "job.callback_url"
	case req.Job.HTTPMethod == "":
		missing = "job.http_method"
	}
	if missing != "" {
		return types.NewAppError(types.ErrCodeValidationMissingField,
			"missing required field: "+missing, nil)
	}
	if len(req.Job.Payload) > 0 && !json.Valid(req.Job.Payload) {
		return types.NewAppError(types.ErrCodeValidationBadPayload,
			"job payload must be valid JSON", nil)
	}
	return nil
}
