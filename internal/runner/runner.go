// Package runner implements the self-rescheduling batch import job: fetch
// one window at the current offset, transform every row, emit each event,
// advance the checkpoint, and decide the next run (normal cadence, backoff,
// or termination). A single scheduler goroutine owns the whole cycle, so at
// most one invocation is ever in flight and teardown can only observe a
// checkpoint whose ephemeral increments are complete.
package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/crestline-io/snowcap/pkg/checkpoint"
	"github.com/crestline-io/snowcap/pkg/errors"
	"github.com/crestline-io/snowcap/pkg/logger"
	"github.com/crestline-io/snowcap/pkg/metrics"
	"github.com/crestline-io/snowcap/pkg/models"
	"github.com/crestline-io/snowcap/pkg/sink"
	"github.com/crestline-io/snowcap/pkg/snowflake"
	"github.com/crestline-io/snowcap/pkg/transform"
)

// outcome is the terminal state of one batch run.
type outcome string

const (
	outcomeSuccess    outcome = "success"
	outcomeRetry      outcome = "retry"
	outcomeAbandoned  outcome = "abandoned"
	outcomeTerminated outcome = "terminated"
)

// ErrAbandoned is returned by Run after a batch window exhausts its retry
// budget. The pipeline halts rather than advancing past unprocessed rows.
var ErrAbandoned = errors.New(errors.ErrorTypeData, "batch abandoned after retry ceiling")

// Options configures a Runner.
type Options struct {
	Table     string
	OrderBy   string
	BatchSize int64
	// Interval is the polling cadence between successful batches.
	Interval time.Duration
	Mode     models.ImportMode
}

// Runner drives the import. One Runner owns one import pipeline.
type Runner struct {
	exec       snowflake.Executor
	checkpoint *checkpoint.Checkpoint
	strategy   transform.Strategy
	sink       sink.Sink
	opts       Options
	query      string
	log        *zap.Logger
}

// New creates a Runner. The batch query is built once, with identifiers
// sanitized up front.
func New(exec snowflake.Executor, cp *checkpoint.Checkpoint, strategy transform.Strategy, snk sink.Sink, opts Options) *Runner {
	return &Runner{
		exec:       exec,
		checkpoint: cp,
		strategy:   strategy,
		sink:       snk,
		opts:       opts,
		query:      snowflake.BatchQuery(opts.Table, opts.OrderBy, opts.BatchSize),
		log: logger.With(
			zap.String("component", "job_runner"),
			zap.String("table", opts.Table),
			zap.String("transform", strategy.Name())),
	}
}

// Run executes the scheduler loop until the context is cancelled or the
// import reaches a terminal state. Each run schedules exactly one successor
// on every exit path except abandonment and termination. The first run fires
// immediately.
//
// On return every in-flight batch has completed, so callers may persist the
// checkpoint and release the connection safely.
func (r *Runner) Run(ctx context.Context) error {
	state := models.RetryState{}
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("scheduler stopping", zap.Error(ctx.Err()))
			return nil
		case <-timer.C:
		}

		result, err := r.runOnce(ctx, state)
		if err != nil {
			return err
		}

		switch result.outcome {
		case outcomeSuccess:
			state = models.RetryState{}
			timer.Reset(r.opts.Interval)
		case outcomeRetry:
			state = result.next
			timer.Reset(result.delay)
		case outcomeAbandoned:
			return ErrAbandoned
		case outcomeTerminated:
			return nil
		}
	}
}

// runResult carries the scheduling decision out of a single run.
type runResult struct {
	outcome outcome
	next    models.RetryState
	delay   time.Duration
}

// runOnce executes one batch invocation: the transition from SCHEDULED
// through RUNNING to a terminal state.
func (r *Runner) runOnce(ctx context.Context, state models.RetryState) (runResult, error) {
	// A retry reuses the window it failed on; a fresh batch computes its
	// offset from the checkpoint.
	var offset int64
	if state.IsRetry() {
		offset = *state.Offset
	} else {
		offset = r.checkpoint.EffectiveOffset()
	}

	window := models.BatchWindow{Offset: offset, Limit: r.opts.BatchSize}
	log := r.log.With(
		zap.Int64("offset", window.Offset),
		zap.Int64("limit", window.Limit),
		zap.Int("attempts", state.AttemptsSoFar))

	// A bounded historical import stops permanently once the offset passes
	// the watermark captured at first startup.
	if r.opts.Mode == models.ModeHistorical {
		if watermark, ok := r.checkpoint.TotalRowsSnapshot(); ok && offset > watermark {
			log.Info("historical import complete", zap.Int64("total_rows", watermark))
			metrics.BatchesTotal.WithLabelValues(string(outcomeTerminated)).Inc()
			return runResult{outcome: outcomeTerminated}, nil
		}
	}

	// Past the retry ceiling the window is abandoned: logged, checkpoint not
	// advanced, pipeline halted. Advancing would silently skip these rows
	// forever.
	if state.IsRetry() && state.AttemptsSoFar >= maxAttempts {
		log.Error("abandoning batch window after retry ceiling",
			zap.String("window", window.String()))
		metrics.BatchesTotal.WithLabelValues(string(outcomeAbandoned)).Inc()
		return runResult{outcome: outcomeAbandoned}, nil
	}

	log.Info("running batch", zap.String("window", window.String()))

	rows, err := r.exec.Execute(ctx, r.query, window.Offset)
	if err != nil {
		// Shutdown mid-fetch is not a transient source failure.
		if ctx.Err() != nil {
			return runResult{outcome: outcomeTerminated}, nil
		}

		// Only the transient class (query, connection, timeout) earns a
		// retry. Structural failures fail the import immediately.
		if !errors.IsRetryable(err) {
			log.Error("batch fetch failed with non-transient error",
				zap.String("window", window.String()), zap.Error(err))
			return runResult{}, err
		}

		delay := backoffDelay(state.AttemptsSoFar)
		log.Warn("batch fetch failed, scheduling retry",
			zap.Duration("delay", delay),
			zap.Error(err))
		metrics.BatchesTotal.WithLabelValues(string(outcomeRetry)).Inc()
		metrics.RetryDelaySeconds.Observe(delay.Seconds())

		next := models.RetryState{
			AttemptsSoFar: state.AttemptsSoFar + 1,
			Offset:        &window.Offset,
		}
		return runResult{outcome: outcomeRetry, next: next, delay: delay}, nil
	}

	emitted, err := r.processRows(ctx, rows)
	if err != nil {
		// Transform failures are structural misconfiguration; retrying
		// cannot fix them, so they are fatal to the import.
		log.Error("batch transform failed", zap.String("window", window.String()), zap.Error(err))
		return runResult{}, err
	}

	if len(rows) > 0 {
		r.checkpoint.EphemeralIncrement()
	} else if r.opts.Mode == models.ModeHistorical {
		// An empty window in a bounded import means the source is drained:
		// the offset never moves on an empty fetch, so without terminating
		// here a watermark that is an exact multiple of the batch size would
		// be re-polled forever.
		log.Info("historical import complete", zap.Int("rows", 0))
		metrics.BatchesTotal.WithLabelValues(string(outcomeTerminated)).Inc()
		return runResult{outcome: outcomeTerminated}, nil
	}

	log.Info("batch ingested",
		zap.Int("rows", len(rows)),
		zap.Int("events", emitted))
	metrics.BatchesTotal.WithLabelValues(string(outcomeSuccess)).Inc()
	metrics.RowsIngested.Add(float64(len(rows)))

	return runResult{outcome: outcomeSuccess}, nil
}

// processRows transforms and emits every row in order. The first transform
// error aborts the batch.
func (r *Runner) processRows(ctx context.Context, rows []*models.RawRow) (int, error) {
	emitted := 0
	for _, row := range rows {
		event, err := r.strategy.Transform(row)
		if err != nil {
			return emitted, err
		}

		if !event.Emittable() {
			r.log.Warn("skipping event without a name")
			continue
		}

		r.sink.Capture(ctx, event)
		emitted++
		metrics.EventsEmitted.Inc()
	}
	return emitted, nil
}
