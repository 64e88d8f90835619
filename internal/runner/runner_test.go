package runner

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronback/internal/broker"
	"cronback/internal/service"
	"cronback/internal/store"
	"cronback/internal/types"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now.UTC() }

type failingJobStore struct{}

func (failingJobStore) Add(context.Context, ...store.JobItem) error {
	return types.NewAppError(types.ErrCodeInternalDB, "job store down", nil)
}

func (failingJobStore) Get(context.Context, ...string) ([][]byte, error) {
	return nil, types.NewAppError(types.ErrCodeInternalDB, "job store down", nil)
}

func (failingJobStore) GetByParent(context.Context, ...string) (map[string][][]byte, error) {
	return nil, types.NewAppError(types.ErrCodeInternalDB, "job store down", nil)
}

type failingBroker struct {
	drains atomic.Int32
}

func (b *failingBroker) Publish(context.Context, ...string) ([]string, error) {
	return nil, types.NewAppError(types.ErrCodeBrokerUnavailable, "broker down", nil)
}

func (b *failingBroker) Get(context.Context) (broker.Delivery, error) {
	return broker.Delivery{}, types.NewAppError(types.ErrCodeBrokerUnavailable, "broker down", nil)
}

func (b *failingBroker) Drain(context.Context, int) ([]broker.Delivery, error) {
	b.drains.Add(1)
	return nil, types.NewAppError(types.ErrCodeBrokerUnavailable, "broker down", nil)
}

func (b *failingBroker) Ack(context.Context, ...broker.Delivery) error { return nil }

func (b *failingBroker) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	schedules *store.MemoryScheduleStore
	jobs      store.JobStore
	broker    *broker.MemoryBroker
	clock     *fakeClock
	runner    *Runner
}

func newFixture(t *testing.T, jobs store.JobStore, now time.Time) *fixture {
	t.Helper()
	if jobs == nil {
		jobs = store.NewMemoryJobStore()
	}
	f := &fixture{
		schedules: store.NewMemoryScheduleStore(),
		jobs:      jobs,
		broker:    broker.NewMemoryBroker(),
		clock:     &fakeClock{now: now},
	}
	f.runner = New(Config{
		Schedules:  f.schedules,
		Jobs:       f.jobs,
		Broker:     f.broker,
		Executor:   NewCallbackExecutor(time.Second, f.clock),
		BatchLimit: 10,
		Clock:      f.clock,
		Logger:     discardLogger(),
	})
	return f
}

func (f *fixture) addSchedule(t *testing.T, callbackURL string, startAt time.Time) *types.Schedule {
	t.Helper()
	s, err := types.NewSchedule("job", "", "0 * * * *", startAt, true, types.JobDefinition{
		CallbackURL: callbackURL,
		HTTPMethod:  types.MethodPost,
		Payload:     json.RawMessage(`{"n":1}`),
	}, f.clock)
	require.NoError(t, err)
	require.NoError(t, service.StoreSchedules(context.Background(), f.schedules, s))
	return s
}

func (f *fixture) enqueue(t *testing.T, s *types.Schedule) {
	t.Helper()
	_, err := f.broker.Publish(context.Background(), s.ID.String())
	require.NoError(t, err)
}

func (f *fixture) recordedJobs(t *testing.T, s *types.Schedule) []types.Job {
	t.Helper()
	byID, err := service.GetScheduleJobs(context.Background(), f.jobs, s.ID)
	require.NoError(t, err)
	return byID[s.ID]
}

func TestCycle_SuccessfulCallback(t *testing.T) {
	startAt := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	var gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody.Store(string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := newFixture(t, nil, startAt.Add(5*time.Second))
	s := f.addSchedule(t, srv.URL, startAt)
	f.enqueue(t, s)

	require.NoError(t, f.runner.Cycle(context.Background()))

	jobs := f.recordedJobs(t, s)
	require.Len(t, jobs, 1)
	assert.Equal(t, http.StatusOK, jobs[0].StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(jobs[0].Result))
	assert.Equal(t, s.ID, jobs[0].ScheduleID)
	assert.JSONEq(t, `{"n":1}`, gotBody.Load().(string))

	// Reconciled: last_run set, next_run advanced, message acked.
	fresh, err := service.GetSchedule(context.Background(), f.schedules, s.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh.LastRun)
	assert.Equal(t, startAt.Add(time.Hour), fresh.NextRun)
	assert.Zero(t, f.broker.Size())
}

func TestCycle_ErrorStatusIsRecordedNotRetried(t *testing.T) {
	startAt := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"boom"}`))
	}))
	defer srv.Close()

	f := newFixture(t, nil, startAt.Add(5*time.Second))
	s := f.addSchedule(t, srv.URL, startAt)
	f.enqueue(t, s)

	require.NoError(t, f.runner.Cycle(context.Background()))

	// An HTTP error from the callback is a result, not a pipeline failure:
	// the job records the real status and the schedule still advances.
	jobs := f.recordedJobs(t, s)
	require.Len(t, jobs, 1)
	assert.Equal(t, http.StatusInternalServerError, jobs[0].StatusCode)
	assert.JSONEq(t, `{"detail":"boom"}`, string(jobs[0].Result))

	fresh, err := service.GetSchedule(context.Background(), f.schedules, s.ID)
	require.NoError(t, err)
	assert.Equal(t, startAt.Add(time.Hour), fresh.NextRun)
	assert.Zero(t, f.broker.Size())
}

func TestCycle_UnreachableCallbackRecordsSentinelFailure(t *testing.T) {
	startAt := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	unreachable := srv.URL
	srv.Close()

	f := newFixture(t, nil, startAt.Add(5*time.Second))
	s := f.addSchedule(t, unreachable, startAt)
	f.enqueue(t, s)

	require.NoError(t, f.runner.Cycle(context.Background()))

	jobs := f.recordedJobs(t, s)
	require.Len(t, jobs, 1)
	assert.Equal(t, types.FailureStatusCode, jobs[0].StatusCode)

	var result map[string]string
	require.NoError(t, json.Unmarshal(jobs[0].Result, &result))
	assert.Contains(t, result, "error")

	// A failed callback still reschedules.
	fresh, err := service.GetSchedule(context.Background(), f.schedules, s.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh.LastRun)
	assert.Equal(t, startAt.Add(time.Hour), fresh.NextRun)
	assert.Zero(t, f.broker.Size())
}

func TestCycle_NonJSONResponseRecordsSentinelFailure(t *testing.T) {
	startAt := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	f := newFixture(t, nil, startAt.Add(5*time.Second))
	s := f.addSchedule(t, srv.URL, startAt)
	f.enqueue(t, s)

	require.NoError(t, f.runner.Cycle(context.Background()))

	jobs := f.recordedJobs(t, s)
	require.Len(t, jobs, 1)
	assert.Equal(t, types.FailureStatusCode, jobs[0].StatusCode)

	var result map[string]string
	require.NoError(t, json.Unmarshal(jobs[0].Result, &result))
	assert.Contains(t, result["error"], "non-JSON")
}

func TestCycle_DeletedScheduleSkippedBatchCompletes(t *testing.T) {
	startAt := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := newFixture(t, nil, startAt.Add(5*time.Second))
	s := f.addSchedule(t, srv.URL, startAt)

	ghost := f.addSchedule(t, srv.URL, startAt)
	f.enqueue(t, s)
	f.enqueue(t, ghost)
	_, err := service.DeleteSchedule(context.Background(), f.schedules, ghost.ID)
	require.NoError(t, err)

	require.NoError(t, f.runner.Cycle(context.Background()))

	// The surviving schedule executed; the ghost's message was acked
	// without execution so it will not redeliver.
	assert.Len(t, f.recordedJobs(t, s), 1)
	assert.Zero(t, f.broker.Size())
}

func TestCycle_JobStoreFailureLeavesBatchUnacked(t *testing.T) {
	startAt := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := newFixture(t, failingJobStore{}, startAt.Add(5*time.Second))
	s := f.addSchedule(t, srv.URL, startAt)
	f.enqueue(t, s)

	err := f.runner.Cycle(context.Background())
	require.Error(t, err)

	// Nothing was acked, so a restarted consumer gets the batch back.
	assert.Equal(t, 1, f.broker.Size())
	assert.Equal(t, 1, f.broker.RequeueUnacked())
}

func TestCycle_BlocksUntilWorkArrives(t *testing.T) {
	startAt := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, nil, startAt)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := f.runner.Cycle(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_FailingBrokerBacksOffBetweenCycles(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: now}
	fb := &failingBroker{}
	r := New(Config{
		Schedules: store.NewMemoryScheduleStore(),
		Jobs:      store.NewMemoryJobStore(),
		Broker:    fb,
		Executor:  NewCallbackExecutor(time.Second, clock),
		Clock:     clock,
		Logger:    discardLogger(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := r.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// A broker that fails immediately (closed channel, unreachable host)
	// must not turn the loop into a busy spin: within the window the loop
	// attempted at most one cycle before waiting out the backoff.
	drains := fb.drains.Load()
	assert.GreaterOrEqual(t, drains, int32(1))
	assert.LessOrEqual(t, drains, int32(2))
}

func TestExecute_OpenBreakerShortCircuitsIntoFailedJob(t *testing.T) {
	startAt := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: startAt}
	exec := NewCallbackExecutor(200*time.Millisecond, clock)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	unreachable := srv.URL
	srv.Close()

	s, err := types.NewSchedule("job", "", "0 * * * *", startAt, true, types.JobDefinition{
		CallbackURL: unreachable,
		HTTPMethod:  types.MethodGet,
	}, clock)
	require.NoError(t, err)

	// Trip the breaker with consecutive transport failures, then confirm
	// further calls still produce a job record instead of an error.
	for i := 0; i < 8; i++ {
		job := exec.Execute(context.Background(), s)
		assert.Equal(t, types.FailureStatusCode, job.StatusCode)
	}
}
