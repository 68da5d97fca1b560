package retry

import (
	"context"
	"time"

	"promptcron/pkg/config"
	"promptcron/services/job"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Reason explains a retry decision.
type Reason string

const (
	ReasonScheduled      Reason = "scheduled"
	ReasonAutoRetryOff   Reason = "auto_retry_disabled"
	ReasonExhausted      Reason = "retries_exhausted"
	ReasonClaimFailed    Reason = "claim_failed"
	ReasonScheduleFailed Reason = "schedule_failed"
)

// Request asks the trigger side to arm a one-shot execution of a job.
type Request struct {
	JobID        string
	DelayMinutes int
	Attempt      int
}

// Scheduler consumes retry requests.
type Scheduler interface {
	ScheduleRetry(ctx context.Context, jobID string, delayMinutes int) (time.Time, error)
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(ctx context.Context, jobID string, delayMinutes int) (time.Time, error)

func (f SchedulerFunc) ScheduleRetry(ctx context.Context, jobID string, delayMinutes int) (time.Time, error) {
	return f(ctx, jobID, delayMinutes)
}

type Decision struct {
	Scheduled          bool
	Reason             Reason
	PreviousRetryCount int
	RetryCount         int
	DelayMinutes       int
	FireAt             *time.Time
}

type Coordinator struct {
	jobs      job.Store
	scheduler Scheduler
	base      int
	cap       int
	decisions metric.Int64Counter
}

func NewCoordinator(jobs job.Store, scheduler Scheduler, cfg *config.Config) *Coordinator {
	c := &Coordinator{
		jobs:      jobs,
		scheduler: scheduler,
		base:      cfg.Retry.BaseMinutes,
		cap:       cfg.Retry.CapMinutes,
	}
	counter, err := otel.Meter("promptcron/retry").Int64Counter("promptcron.retry.decisions",
		metric.WithDescription("Retry decisions taken after failed executions"))
	if err == nil {
		c.decisions = counter
	}
	return c
}

// MaybeScheduleRetry runs after a failed execution. The snapshot only
// short-circuits obviously ineligible jobs; the store claim is what consumes
// budget. Failures are logged and reported in the decision, never returned.
func (c *Coordinator) MaybeScheduleRetry(ctx context.Context, j *job.Job) Decision {
	log := zap.L().With(zap.String("job_id", j.ID))
	d := c.decide(ctx, j, log)
	if c.decisions != nil {
		c.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(d.Reason))))
	}
	return d
}

func (c *Coordinator) decide(ctx context.Context, j *job.Job, log *zap.Logger) Decision {
	if !j.AutoRetry {
		return Decision{Reason: ReasonAutoRetryOff, PreviousRetryCount: j.RetryCount, RetryCount: j.RetryCount}
	}
	if j.RetryCount >= j.MaxRetries {
		log.Info("[Retry] retry budget exhausted", zap.Int("retry_count", j.RetryCount), zap.Int("max_retries", j.MaxRetries))
		return Decision{Reason: ReasonExhausted, PreviousRetryCount: j.RetryCount, RetryCount: j.RetryCount}
	}

	previous, claimed, err := c.jobs.ClaimRetry(ctx, j.ID)
	if err != nil {
		log.Error("[Retry] failed to claim retry", zap.Error(err))
		return Decision{Reason: ReasonClaimFailed, PreviousRetryCount: j.RetryCount, RetryCount: j.RetryCount}
	}
	if !claimed {
		log.Info("[Retry] retry budget exhausted by a concurrent attempt")
		return Decision{Reason: ReasonExhausted, PreviousRetryCount: j.RetryCount, RetryCount: j.RetryCount}
	}

	req := Request{
		JobID:        j.ID,
		DelayMinutes: Backoff(previous, c.base, c.cap),
		Attempt:      previous + 1,
	}
	d := Decision{
		Reason:             ReasonScheduled,
		PreviousRetryCount: previous,
		RetryCount:         req.Attempt,
		DelayMinutes:       req.DelayMinutes,
	}

	fireAt, err := c.scheduler.ScheduleRetry(ctx, req.JobID, req.DelayMinutes)
	if err != nil {
		// the claimed budget stays consumed; the retry is simply missed
		log.Error("[Retry] failed to schedule retry", zap.Int("attempt", req.Attempt), zap.Error(err))
		d.Reason = ReasonScheduleFailed
		return d
	}

	log.Info("[Retry] retry scheduled",
		zap.Int("attempt", req.Attempt),
		zap.Int("delay_minutes", req.DelayMinutes),
		zap.Time("fire_at", fireAt),
	)
	d.Scheduled = true
	d.FireAt = &fireAt
	return d
}
