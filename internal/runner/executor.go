package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"cronback/internal/types"
)

// CallbackExecutor invokes schedule callbacks over HTTP. Each callback
// host gets its own circuit breaker so one flapping endpoint cannot burn
// the whole batch's time budget on timeouts; an open breaker
// short-circuits into a failed job record, never an aborted batch.
type CallbackExecutor struct {
	client  *http.Client
	timeout time.Duration
	clock   types.Clock

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*http.Response]
}

// NewCallbackExecutor creates an executor whose HTTP calls are bounded by
// the given per-call timeout.
func NewCallbackExecutor(timeout time.Duration, clock types.Clock) *CallbackExecutor {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &CallbackExecutor{
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		clock:    clock,
		breakers: make(map[string]*gobreaker.CircuitBreaker[*http.Response]),
	}
}

// breakerFor returns the circuit breaker for a callback host, creating it
// on first use. Only transport-level failures count toward tripping; an
// HTTP error status is a result to record, not a breaker failure.
func (e *CallbackExecutor) breakerFor(host string) *gobreaker.CircuitBreaker[*http.Response] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[host]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	e.breakers[host] = cb
	return cb
}

// Execute invokes the schedule's callback and always returns a Job
// record. Callback failure is captured in the record (sentinel status
// plus {"error": ...} result), never returned as an error: execution
// failure of the callback is not a scheduling failure.
func (e *CallbackExecutor) Execute(ctx context.Context, s *types.Schedule) types.Job {
	job := types.Job{
		ID:          uuid.New(),
		ScheduleID:  s.ID,
		CallbackURL: s.Job.CallbackURL,
		HTTPMethod:  s.Job.HTTPMethod,
		RanAt:       e.clock.Now(),
	}

	statusCode, result := e.invoke(ctx, s.Job)
	job.StatusCode = statusCode
	job.Result = result
	return job
}

// invoke performs the HTTP call and interprets the response. Connection
// failure, timeout, an open breaker, and a non-JSON response body all map
// to the sentinel failure code with an error-shaped result.
func (e *CallbackExecutor) invoke(ctx context.Context, def types.JobDefinition) (int, json.RawMessage) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var body io.Reader
	if len(def.Payload) > 0 {
		body = bytes.NewReader(def.Payload)
	}

	req, err := http.NewRequestWithContext(callCtx, string(def.HTTPMethod), def.CallbackURL, body)
	if err != nil {
		return types.FailureStatusCode, types.FailureResult(err)
	}
	req.Header.Set("Content-Type", "application/json")

	host := def.CallbackURL
	if u, uErr := url.Parse(def.CallbackURL); uErr == nil {
		host = u.Host
	}

	resp, err := e.breakerFor(host).Execute(func() (*http.Response, error) {
		return e.client.Do(req)
	})
	if err != nil {
		return types.FailureStatusCode, types.FailureResult(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.FailureStatusCode, types.FailureResult(err)
	}
	if !json.Valid(respBody) {
		return types.FailureStatusCode, types.FailureResult(errNonJSONResponse)
	}
	return resp.StatusCode, respBody
}

var errNonJSONResponse = types.NewAppError(
	types.ErrCodeValidationBadPayload,
	"callback returned a non-JSON response body",
	nil,
)
