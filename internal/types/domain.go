// Package types defines the domain entities shared by the API, the
// scheduler poller, and the runner: Schedule (a recurring callback
// definition with cron-based time math) and Job (an immutable record of
// one callback execution). JSON tags use snake_case to match the public
// API payload shape.
package types

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// HTTPMethod is the restricted set of methods a schedule callback may use.
type HTTPMethod string

const (
	MethodGet    HTTPMethod = "GET"
	MethodPost   HTTPMethod = "POST"
	MethodPut    HTTPMethod = "PUT"
	MethodDelete HTTPMethod = "DELETE"
)

// Valid reports whether m is one of the supported callback methods.
func (m HTTPMethod) Valid() bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodDelete:
		return true
	}
	return false
}

// cronParser parses standard 5-field cron expressions (minute, hour,
// day-of-month, month, day-of-week). Descriptors like @hourly are not
// part of the schedule contract.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ParseCron validates and compiles a 5-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, NewAppError(ErrCodeValidationInvalidCron,
			fmt.Sprintf("invalid cron expression %q", expr), err)
	}
	return sched, nil
}

// JobDefinition describes the HTTP callback a schedule invokes when due.
type JobDefinition struct {
	CallbackURL string          `json:"callback_url"`
	HTTPMethod  HTTPMethod      `json:"http_method"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Validate checks the callback URL and method.
func (j JobDefinition) Validate() error {
	u, err := url.ParseRequestURI(j.CallbackURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return NewAppError(ErrCodeValidationInvalidURL,
			fmt.Sprintf("invalid callback URL %q", j.CallbackURL), err)
	}
	if !j.HTTPMethod.Valid() {
		return NewAppError(ErrCodeValidationInvalidMethod,
			fmt.Sprintf("unsupported HTTP method %q", j.HTTPMethod), nil)
	}
	return nil
}

// Schedule is a recurring-job definition. NextRun is always present once a
// Schedule exists and is always the next cron occurrence at or after
// StartAt (or, after an execution, after the relevant reference instant).
// All timestamps are UTC; naive instants are rejected at the boundary.
type Schedule struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Expression  string        `json:"schedule"`
	StartAt     time.Time     `json:"start_at"`
	Active      bool          `json:"active"`
	NextRun     time.Time     `json:"next_run"`
	LastRun     *time.Time    `json:"last_run,omitempty"`
	Job         JobDefinition `json:"job"`
}

// NewSchedule constructs a Schedule from user input, validating the cron
// expression and callback definition and computing the initial NextRun.
// If startAt is the zero time it defaults to now (UTC). A non-UTC startAt
// is converted; the instant it names is preserved.
func NewSchedule(name, description, expression string, startAt time.Time, active bool, job JobDefinition, clock Clock) (*Schedule, error) {
	sched, err := ParseCron(expression)
	if err != nil {
		return nil, err
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	if startAt.IsZero() {
		startAt = clock.Now()
	}
	startAt = startAt.UTC()

	s := &Schedule{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		Expression:  expression,
		StartAt:     startAt,
		Active:      active,
		Job:         job,
	}
	// The initial next_run is the first occurrence at or after start_at.
	// cron.Schedule.Next is strictly-after and rounds its argument up to
	// the next whole second, so backing off one nanosecond yields exactly
	// "earliest occurrence >= start_at" for whole-second and fractional
	// inputs alike.
	s.NextRun = sched.Next(startAt.Add(-time.Nanosecond))
	return s, nil
}

// NextAfter returns the earliest occurrence of the schedule's cron
// expression strictly after from, in UTC. The expression was validated at
// construction; a parse failure here indicates a corrupted entity.
func (s *Schedule) NextAfter(from time.Time) time.Time {
	sched, err := cronParser.Parse(s.Expression)
	if err != nil {
		panic(fmt.Sprintf("schedule %s holds unparseable expression %q: %v", s.ID, s.Expression, err))
	}
	return sched.Next(from.UTC())
}

// IsDue reports whether the schedule's next run is at or before now.
func (s *Schedule) IsDue(now time.Time) bool {
	return !s.NextRun.After(now.UTC())
}

// CurrentDelay returns now minus next_run: how late the schedule is.
// Negative when the schedule is not yet due.
func (s *Schedule) CurrentDelay(now time.Time) time.Duration {
	return now.UTC().Sub(s.NextRun)
}

// Priority is the store score for this schedule: next_run as fractional
// Unix seconds. The store and the entity must never disagree on this
// projection.
func (s *Schedule) Priority() float64 {
	if s.NextRun.IsZero() {
		panic(fmt.Sprintf("schedule %s has no next_run", s.ID))
	}
	return float64(s.NextRun.UnixNano()) / float64(time.Second)
}

// ConfirmExecution records an execution at now and advances next_run.
//
// If the current next_run is strictly before now, the schedule ran late:
// next_run is recomputed relative to now, skipping any missed occurrences
// (catch-up). Otherwise the execution happened at or ahead of schedule and
// next_run advances exactly one period from the old due time, so fast
// execution does not drift the schedule forward.
func (s *Schedule) ConfirmExecution(now time.Time) {
	if s.NextRun.IsZero() {
		panic(fmt.Sprintf("schedule %s: confirm_execution with no next_run", s.ID))
	}
	now = now.UTC()
	ran := now
	s.LastRun = &ran

	if s.NextRun.Before(now) {
		s.NextRun = s.NextAfter(now)
	} else {
		s.NextRun = s.NextAfter(s.NextRun)
	}
}

// SchedulePatch is an explicit partial update: only non-nil fields are
// applied. Patching Expression or StartAt recomputes next_run.
type SchedulePatch struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Expression  *string         `json:"schedule,omitempty"`
	StartAt     *time.Time      `json:"start_at,omitempty"`
	Active      *bool           `json:"active,omitempty"`
	CallbackURL *string         `json:"callback_url,omitempty"`
	HTTPMethod  *HTTPMethod     `json:"http_method,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Apply merges the patch onto the schedule. Omitted fields are untouched.
// A changed cron expression is re-validated before anything is mutated.
func (s *Schedule) Apply(p SchedulePatch) error {
	if p.Expression != nil {
		if _, err := ParseCron(*p.Expression); err != nil {
			return err
		}
	}

	job := s.Job
	if p.CallbackURL != nil {
		job.CallbackURL = *p.CallbackURL
	}
	if p.HTTPMethod != nil {
		job.HTTPMethod = *p.HTTPMethod
	}
	if p.Payload != nil {
		job.Payload = p.Payload
	}
	if err := job.Validate(); err != nil {
		return err
	}

	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.Active != nil {
		s.Active = *p.Active
	}
	s.Job = job

	recompute := false
	if p.Expression != nil {
		s.Expression = *p.Expression
		recompute = true
	}
	if p.StartAt != nil {
		s.StartAt = p.StartAt.UTC()
		recompute = true
	}
	if recompute {
		s.NextRun = s.NextAfter(s.StartAt.Add(-time.Nanosecond))
	}
	return nil
}

// Job is an immutable record of one executed invocation of a schedule's
// callback. StatusCode is the HTTP result, or the sentinel failure code
// when the callback could not be reached or returned a non-JSON body.
type Job struct {
	ID          uuid.UUID       `json:"job_id"`
	ScheduleID  uuid.UUID       `json:"schedule_id"`
	CallbackURL string          `json:"callback_url"`
	HTTPMethod  HTTPMethod      `json:"http_method"`
	StatusCode  int             `json:"status_code"`
	Result      json.RawMessage `json:"result"`
	RanAt       time.Time       `json:"ran_at"`
}

// FailureStatusCode is recorded on a Job when the callback failed at the
// transport level (connection refused, timeout) or returned a body that
// could not be parsed as JSON.
const FailureStatusCode = 400

// FailureResult builds the {"error": ...} result body for a failed
// callback invocation.
func FailureResult(err error) json.RawMessage {
	body, mErr := json.Marshal(map[string]string{"error": err.Error()})
	if mErr != nil {
		return json.RawMessage(`{"error":"unknown callback failure"}`)
	}
	return body
}
