package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronback/internal/service"
	"cronback/internal/store"
	"cronback/internal/types"
)

type fakeClock struct {
	now time.Time
}

func (f fakeClock) Now() time.Time { return f.now.UTC() }

type testAPI struct {
	handler   http.Handler
	schedules *store.MemoryScheduleStore
	jobs      *store.MemoryJobStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	schedules := store.NewMemoryScheduleStore()
	jobs := store.NewMemoryJobStore()
	clock := fakeClock{now: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := NewServer("127.0.0.1:0", schedules, jobs, clock, logger)
	return &testAPI{handler: server.Handler(), schedules: schedules, jobs: jobs}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error ErrorDetail `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

func createBody() map[string]any {
	return map[string]any{
		"name":        "hourly-report",
		"description": "sends the hourly report",
		"schedule":    "0 * * * *",
		"job": map[string]any{
			"callback_url": "https://example.com/hook",
			"http_method":  "POST",
			"payload":      map[string]any{"k": "v"},
		},
	}
}

func TestCreateSchedule(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/schedules", createBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	data := decodeData(t, rec)
	assert.Equal(t, "hourly-report", data["name"])
	assert.Equal(t, true, data["active"])
	// start_at defaulted to now; next_run is the following hour boundary.
	assert.Equal(t, "2026-01-01T10:00:00Z", data["start_at"])
	assert.Equal(t, "2026-01-01T10:00:00Z", data["next_run"])
	assert.NotEmpty(t, data["id"])
}

func TestCreateSchedule_ExplicitStartAt(t *testing.T) {
	a := newTestAPI(t)
	body := createBody()
	body["start_at"] = "2026-06-01T00:30:00Z"

	rec := a.do(t, http.MethodPost, "/schedules", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	data := decodeData(t, rec)
	assert.Equal(t, "2026-06-01T01:00:00Z", data["next_run"])
}

func TestCreateSchedule_InvalidCron(t *testing.T) {
	a := newTestAPI(t)
	body := createBody()
	body["schedule"] = "every five minutes"

	rec := a.do(t, http.MethodPost, "/schedules", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidCron), decodeErrorCode(t, rec))
}

func TestCreateSchedule_InvalidCallbackURL(t *testing.T) {
	a := newTestAPI(t)
	body := createBody()
	body["job"].(map[string]any)["callback_url"] = "nope"

	rec := a.do(t, http.MethodPost, "/schedules", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidURL), decodeErrorCode(t, rec))
}

func TestCreateSchedule_MissingName(t *testing.T) {
	a := newTestAPI(t)
	body := createBody()
	delete(body, "name")

	rec := a.do(t, http.MethodPost, "/schedules", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationMissingField), decodeErrorCode(t, rec))
}

func TestCreateSchedule_UnknownField(t *testing.T) {
	a := newTestAPI(t)
	body := createBody()
	body["bogus"] = 1

	rec := a.do(t, http.MethodPost, "/schedules", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationBadPayload), decodeErrorCode(t, rec))
}

func TestCreateSchedule_EmptyBody(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/schedules", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationBadPayload), decodeErrorCode(t, rec))
}

func TestGetSchedule(t *testing.T) {
	a := newTestAPI(t)
	created := decodeData(t, a.do(t, http.MethodPost, "/schedules", createBody()))
	id := created["id"].(string)

	rec := a.do(t, http.MethodGet, "/schedules/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decodeData(t, rec)["id"])
}

func TestGetSchedule_NotFound(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/schedules/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundSchedule), decodeErrorCode(t, rec))

	// A non-UUID id names nothing either.
	rec = a.do(t, http.MethodGet, "/schedules/not-a-uuid", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchSchedule(t *testing.T) {
	a := newTestAPI(t)
	created := decodeData(t, a.do(t, http.MethodPost, "/schedules", createBody()))
	id := created["id"].(string)

	rec := a.do(t, http.MethodPatch, "/schedules/"+id, map[string]any{
		"schedule": "30 * * * *",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeData(t, rec)
	assert.Equal(t, "30 * * * *", data["schedule"])
	assert.Equal(t, "2026-01-01T10:30:00Z", data["next_run"])
}

func TestPatchSchedule_InvalidCron(t *testing.T) {
	a := newTestAPI(t)
	created := decodeData(t, a.do(t, http.MethodPost, "/schedules", createBody()))
	id := created["id"].(string)

	rec := a.do(t, http.MethodPatch, "/schedules/"+id, map[string]any{
		"schedule": "bogus",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidCron), decodeErrorCode(t, rec))

	// Unchanged on disk.
	rec = a.do(t, http.MethodGet, "/schedules/"+id, nil)
	assert.Equal(t, "0 * * * *", decodeData(t, rec)["schedule"])
}

func TestDeleteSchedule(t *testing.T) {
	a := newTestAPI(t)
	created := decodeData(t, a.do(t, http.MethodPost, "/schedules", createBody()))
	id := created["id"].(string)

	rec := a.do(t, http.MethodDelete, "/schedules/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decodeData(t, rec)["id"])

	rec = a.do(t, http.MethodGet, "/schedules/"+id, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodDelete, "/schedules/"+id, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobs(t *testing.T) {
	a := newTestAPI(t)
	created := decodeData(t, a.do(t, http.MethodPost, "/schedules", createBody()))
	id := created["id"].(string)
	scheduleID := uuid.MustParse(id)

	rec := a.do(t, http.MethodGet, "/schedules/"+id+"/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeData(t, rec)
	assert.Equal(t, id, data["schedule_id"])
	assert.Empty(t, data["jobs"])

	// Record an execution and read it back.
	job := types.Job{
		ID:          uuid.New(),
		ScheduleID:  scheduleID,
		CallbackURL: "https://example.com/hook",
		HTTPMethod:  types.MethodPost,
		StatusCode:  200,
		Result:      json.RawMessage(`{"ok":true}`),
		RanAt:       time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC),
	}
	require.NoError(t, service.AddJobs(context.Background(), a.jobs, job))

	rec = a.do(t, http.MethodGet, "/schedules/"+id+"/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data = decodeData(t, rec)
	jobs := data["jobs"].([]any)
	require.Len(t, jobs, 1)
	first := jobs[0].(map[string]any)
	assert.Equal(t, float64(200), first["status_code"])
	assert.Equal(t, id, first["schedule_id"])
}

func TestListJobs_UnknownSchedule(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/schedules/"+uuid.NewString()+"/jobs", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundSchedule), decodeErrorCode(t, rec))
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeData(t, rec)["status"])
}
