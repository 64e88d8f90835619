// Package runner implements the execution side of the pipeline: it drains
// batches of due-schedule ids from the broker, fires each schedule's HTTP
// callback concurrently, records a Job per attempt, advances each
// schedule's next run in the priority store, and only then acknowledges
// the broker messages.
//
// The ack-after-persist ordering is the load-bearing guarantee: if the
// process dies mid-batch the unacked messages are redelivered, trading a
// possible duplicate execution for never losing one.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"cronback/internal/broker"
	"cronback/internal/service"
	"cronback/internal/store"
	"cronback/internal/types"
)

// DefaultBatchLimit bounds how many messages one cycle drains, and with
// it the callback fan-out width.
const DefaultBatchLimit = 100

// Backoff bounds for consecutive failed cycles. A broker whose Get fails
// immediately (closed AMQP channel, unreachable endpoint) would otherwise
// turn the run loop into a busy spin.
const (
	errBackoffBase = time.Second
	errBackoffMax  = 30 * time.Second
)

// Executor abstracts callback invocation for testability.
type Executor interface {
	Execute(ctx context.Context, s *types.Schedule) types.Job
}

// Runner is the callback-execution loop.
type Runner struct {
	schedules  store.ScheduleStore
	jobs       store.JobStore
	broker     broker.Broker
	executor   Executor
	batchLimit int
	clock      types.Clock
	logger     *slog.Logger
}

// Config holds the dependencies for creating a Runner.
type Config struct {
	Schedules  store.ScheduleStore
	Jobs       store.JobStore
	Broker     broker.Broker
	Executor   Executor
	BatchLimit int
	Clock      types.Clock
	Logger     *slog.Logger
}

// New creates a Runner from the given configuration.
func New(cfg Config) *Runner {
	limit := cfg.BatchLimit
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		schedules:  cfg.Schedules,
		jobs:       cfg.Jobs,
		broker:     cfg.Broker,
		executor:   cfg.Executor,
		batchLimit: limit,
		clock:      clock,
		logger:     logger,
	}
}

// Run executes batch cycles until ctx is done. A new cycle does not start
// until the previous cycle's ack completed, so there is no cross-cycle
// overlap within one runner process.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "runner started", "batch_limit", r.batchLimit)

	backoff := errBackoffBase
	for {
		err := r.Cycle(ctx)
		if err == nil {
			backoff = errBackoffBase
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			r.logger.InfoContext(ctx, "runner stopping")
			return err
		}
		// Storage or broker failure: the batch stays unacked and the
		// broker will redeliver it. Wait before retrying so a broker that
		// fails fast does not spin the loop.
		r.logger.ErrorContext(ctx, "run cycle failed",
			"error", err.Error(),
			"retry_in", backoff.String(),
		)
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "runner stopping")
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > errBackoffMax {
			backoff = errBackoffMax
		}
	}
}

// Cycle processes one batch: dequeue, look up, execute all, record,
// reconcile, ack.
func (r *Runner) Cycle(ctx context.Context) error {
	ids, deliveries, err := service.DequeueIDs(ctx, r.broker, r.batchLimit)
	if err != nil {
		return err
	}

	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}

	// Ids deleted between enqueue and now simply resolve to nothing;
	// their deliveries are acked with the batch since there is no work
	// left to protect.
	schedules, err := service.GetSchedules(ctx, r.schedules, idStrings...)
	if err != nil {
		return err
	}

	start := time.Now()
	jobs := r.executeAll(ctx, schedules)
	elapsed := time.Since(start)

	if len(jobs) > 0 {
		if err := service.AddJobs(ctx, r.jobs, jobs...); err != nil {
			return err
		}
	}

	if err := r.reconcile(ctx, schedules); err != nil {
		return err
	}

	if err := r.broker.Ack(ctx, deliveries...); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "ran schedule batch",
		"dequeued", len(deliveries),
		"executed", len(schedules),
		"elapsed", elapsed.String(),
	)
	return nil
}

// executeAll fires every callback in the batch concurrently and joins on
// all of them. Parallelism is naturally bounded by the drain limit.
func (r *Runner) executeAll(ctx context.Context, schedules []*types.Schedule) []types.Job {
	jobs := make([]types.Job, len(schedules))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range schedules {
		g.Go(func() error {
			jobs[i] = r.executor.Execute(gctx, s)
			return nil
		})
	}
	// Execute never returns an error; failures live in the job records.
	_ = g.Wait()
	return jobs
}

// reconcile re-reads each executed schedule (so concurrent client edits
// made during execution are not clobbered), confirms the execution, and
// writes the advanced schedule back with its new priority score.
func (r *Runner) reconcile(ctx context.Context, executed []*types.Schedule) error {
	if len(executed) == 0 {
		return nil
	}
	ids := make([]string, len(executed))
	for i, s := range executed {
		ids[i] = s.ID.String()
	}

	fresh, err := service.GetSchedules(ctx, r.schedules, ids...)
	if err != nil {
		return err
	}

	now := r.clock.Now()
	for _, s := range fresh {
		s.ConfirmExecution(now)
	}
	return service.UpdateSchedules(ctx, r.schedules, fresh...)
}
