package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"promptcron/pkg/completion"
	"promptcron/pkg/config"
	"promptcron/pkg/cronexpr"
	"promptcron/pkg/gen"
	"promptcron/pkg/lease"
	"promptcron/pkg/logger"
	"promptcron/services/job"
	"promptcron/services/retry"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrMissingJobID   = errors.New("jobId is required")
	ErrInvalidTrigger = errors.New("trigger must be one of scheduled, manual, retry")
	ErrTimeout        = errors.New("completion call timed out")
	ErrJobBusy        = errors.New("job is already running")
)

// Error types recorded on failed executions.
const (
	ErrorTypeTimeout             = "Timeout"
	ErrorTypeExternalCallFailure = "ExternalCallFailure"
	ErrorTypeCanceled            = "Canceled"
)

const DefaultTimeout = 300 * time.Second

// Recurring refreshes the recurring trigger of a job after a successful run.
type Recurring interface {
	Upsert(ctx context.Context, jobID, schedule string, enabled bool) (*time.Time, error)
}

// RetryCoordinator decides whether a failed job gets another attempt.
type RetryCoordinator interface {
	MaybeScheduleRetry(ctx context.Context, j *job.Job) retry.Decision
}

// Result describes one call to Execute.
type Result struct {
	JobID       string
	Trigger     job.Trigger
	Skipped     bool
	ExecutionID string
	Status      job.ExecutionStatus
	Response    json.RawMessage
	ErrorType   string
	Error       string
	DurationMs  int64
	NextRunAt   *time.Time
	Retry       *retry.Decision
}

func (r *Result) Success() bool {
	return r != nil && (r.Skipped || r.Status == job.ExecutionSuccess)
}

type Executor struct {
	jobs            job.Store
	executions      job.ExecutionStore
	completion      completion.Client
	recurring       Recurring
	retries         RetryCoordinator
	locker          lease.Locker
	node            *snowflake.Node
	timeout         time.Duration
	defaultMaxTurns int
	now             func() time.Time

	tracer   trace.Tracer
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

type Option func(*Executor)

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithLocker serialises executions of one job through l.
func WithLocker(l lease.Locker) Option {
	return func(e *Executor) { e.locker = l }
}

func New(
	jobs job.Store,
	executions job.ExecutionStore,
	client completion.Client,
	recurring Recurring,
	retries RetryCoordinator,
	node *snowflake.Node,
	cfg *config.Config,
	opts ...Option,
) *Executor {
	e := &Executor{
		jobs:            jobs,
		executions:      executions,
		completion:      client,
		recurring:       recurring,
		retries:         retries,
		node:            node,
		timeout:         cfg.Completion.Timeout,
		defaultMaxTurns: cfg.Completion.DefaultMaxTurns,
		now:             time.Now,
		tracer:          otel.Tracer("promptcron/executor"),
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	for _, opt := range opts {
		opt(e)
	}

	meter := otel.Meter("promptcron/executor")
	if c, err := meter.Int64Counter("promptcron.executions",
		metric.WithDescription("Finished job executions by status")); err == nil {
		e.runs = c
	}
	if h, err := meter.Float64Histogram("promptcron.execution.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Wall time of job executions")); err == nil {
		e.duration = h
	}
	return e
}

// Execute runs one attempt of a job. Recorded failures are reported through
// the result; the error is reserved for attempts that never reached the
// completion service.
func (e *Executor) Execute(ctx context.Context, jobID string, trigger job.Trigger) (*Result, error) {
	if jobID == "" {
		return nil, ErrMissingJobID
	}
	parsed, ok := job.ParseTrigger(string(trigger))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTrigger, trigger)
	}
	trigger = parsed

	ctx, span := e.tracer.Start(ctx, "executor.Execute", trace.WithAttributes(
		attribute.String("job.id", jobID),
		attribute.String("job.trigger", string(trigger)),
	))
	defer span.End()

	log := logger.ForJob(jobID, zap.String("trigger", string(trigger)))

	j, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		log.Error("[Executor] failed to load job", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "load job")
		return nil, err
	}

	if trigger == job.TriggerScheduled && !j.Enabled {
		log.Info("[Executor] job disabled, skipping scheduled run")
		span.SetAttributes(attribute.Bool("job.skipped", true))
		return &Result{JobID: jobID, Trigger: trigger, Skipped: true}, nil
	}

	if e.locker != nil {
		var held *lease.Lease
		err := secondary(ctx, log, "acquire_lease", true, func(ctx context.Context) error {
			var err error
			held, err = e.locker.Acquire(ctx, jobID)
			return err
		})
		if errors.Is(err, lease.ErrHeld) {
			return nil, fmt.Errorf("%w: %s", ErrJobBusy, jobID)
		}
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = secondary(context.WithoutCancel(ctx), log, "release_lease", false, held.Release)
		}()
	}

	startedAt := e.now().UTC()
	_ = secondary(ctx, log, "mark_running", false, func(ctx context.Context) error {
		return e.jobs.MarkRunning(ctx, jobID, startedAt)
	})

	callStart := e.now()
	resp, callErr := e.call(ctx, j)
	latency := e.now().Sub(callStart)
	completedAt := e.now().UTC()
	if completedAt.Before(startedAt) {
		completedAt = startedAt
	}

	res := &Result{
		JobID:       jobID,
		Trigger:     trigger,
		ExecutionID: gen.ExecutionID(e.node),
		DurationMs:  completedAt.Sub(startedAt).Milliseconds(),
	}

	exec := &job.Execution{
		ID:           res.ExecutionID,
		JobID:        jobID,
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		Trigger:      trigger,
		DurationMs:   res.DurationMs,
		APILatencyMs: latency.Milliseconds(),
		CreatedAt:    completedAt,
	}

	if callErr == nil {
		e.succeed(ctx, log, j, res, exec, resp)
	} else {
		e.fail(ctx, log, j, res, exec, callErr)
		span.RecordError(callErr)
		span.SetStatus(codes.Error, res.ErrorType)
	}

	span.SetAttributes(
		attribute.String("execution.id", res.ExecutionID),
		attribute.String("execution.status", string(res.Status)),
	)
	e.observe(ctx, res)
	return res, nil
}

func (e *Executor) call(ctx context.Context, j *job.Job) (*completion.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.completion.Complete(callCtx, completion.Request{
		Prompt:       j.Prompt,
		SystemPrompt: j.SystemPromptText(),
		MaxTurns:     j.EffectiveMaxTurns(e.defaultMaxTurns),
	})
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
		}
		return nil, err
	}
	return resp, nil
}

func (e *Executor) succeed(ctx context.Context, log *zap.Logger, j *job.Job, res *Result, exec *job.Execution, resp *completion.Response) {
	res.Status = job.ExecutionSuccess
	res.Response = resp.Raw

	exec.Status = job.ExecutionSuccess
	exec.Response = []byte(resp.Raw)
	exec.ToolsExecuted = resp.ToolsUsed

	_ = secondary(ctx, log, "record_execution", false, func(ctx context.Context) error {
		return e.executions.Create(ctx, exec)
	})

	// the row may have been disabled or rescheduled while the call was running
	var current *job.Job
	_ = secondary(ctx, log, "reload_job", false, func(ctx context.Context) error {
		var err error
		current, err = e.jobs.Get(ctx, j.ID)
		return err
	})

	outcome := job.Outcome{
		CompletedAt: exec.CompletedAt,
		DurationMs:  exec.DurationMs,
	}
	if current != nil && current.Enabled {
		next, err := cronexpr.NextRun(current.Schedule, exec.CompletedAt)
		if err != nil {
			log.Warn("[Executor] stored schedule has no next run", zap.String("schedule", current.Schedule), zap.Error(err))
		} else {
			res.NextRunAt = &next
			outcome.NextRunAt = &next
			outcome.Schedule = current.Schedule
		}
	}

	_ = secondary(ctx, log, "record_success", false, func(ctx context.Context) error {
		return e.jobs.RecordSuccess(ctx, j.ID, outcome)
	})

	if res.Trigger != job.TriggerRetry && e.recurring != nil && current != nil {
		_ = secondary(ctx, log, "refresh_trigger", false, func(ctx context.Context) error {
			_, err := e.recurring.Upsert(ctx, current.ID, current.Schedule, current.Enabled)
			return err
		})
	}

	log.Info("[Executor] execution succeeded",
		zap.String("execution_id", res.ExecutionID),
		zap.Int64("duration_ms", res.DurationMs),
		zap.Int("tools_executed", exec.ToolsExecuted),
	)
}

func (e *Executor) fail(ctx context.Context, log *zap.Logger, j *job.Job, res *Result, exec *job.Execution, callErr error) {
	res.Status, res.ErrorType = classify(ctx, callErr)
	res.Error = callErr.Error()

	exec.Status = res.Status
	exec.ErrorMessage = &res.Error
	exec.ErrorType = &res.ErrorType

	log.Warn("[Executor] execution failed",
		zap.String("execution_id", res.ExecutionID),
		zap.String("error_type", res.ErrorType),
		zap.Error(callErr),
	)

	// a cancelled caller context must not stop the failure from being recorded
	recordCtx := context.WithoutCancel(ctx)

	_ = secondary(recordCtx, log, "record_execution", false, func(ctx context.Context) error {
		return e.executions.Create(ctx, exec)
	})
	_ = secondary(recordCtx, log, "record_failure", false, func(ctx context.Context) error {
		return e.jobs.RecordFailure(ctx, j.ID, job.Outcome{
			CompletedAt: exec.CompletedAt,
			DurationMs:  exec.DurationMs,
			Error:       res.Error,
		})
	})

	if e.retries != nil {
		d := e.retries.MaybeScheduleRetry(recordCtx, j)
		res.Retry = &d
	}
}

func classify(ctx context.Context, err error) (job.ExecutionStatus, string) {
	switch {
	case errors.Is(err, ErrTimeout):
		return job.ExecutionTimeout, ErrorTypeTimeout
	case ctx.Err() != nil:
		return job.ExecutionFailed, ErrorTypeCanceled
	}
	return job.ExecutionFailed, ErrorTypeExternalCallFailure
}

func (e *Executor) observe(ctx context.Context, res *Result) {
	attrs := metric.WithAttributes(
		attribute.String("status", string(res.Status)),
		attribute.String("trigger", string(res.Trigger)),
	)
	if e.runs != nil {
		e.runs.Add(ctx, 1, attrs)
	}
	if e.duration != nil {
		e.duration.Record(ctx, float64(res.DurationMs), attrs)
	}
}
