package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync/atomic"
	"time"

	"promptcron/pkg/config"
	"promptcron/pkg/cronexpr"
	"promptcron/pkg/gen"
	"promptcron/services/job"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrMissingJobID    = errors.New("jobId is required")
	ErrInvalidDelay    = errors.New("retry delay must not be negative")
	ErrRegistryFailure = errors.New("trigger registry failure")
)

const reconcilePageSize = 200

// Registry maps jobs onto named triggers in the scheduling facility.
type Registry struct {
	facility Facility
	taskType string
	queue    string
	node     *snowflake.Node
	now      func() time.Time
}

type RegistryOption func(*Registry)

// WithClock replaces the time source used for next-run and retry instants.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(facility Facility, cfg *config.Config, node *snowflake.Node, opts ...RegistryOption) *Registry {
	r := &Registry{
		facility: facility,
		taskType: cfg.Executor.TaskType,
		queue:    cfg.Executor.Queue,
		node:     node,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TriggerName derives the recurring trigger name of a job. Identifiers that do
// not survive slugging unchanged get a hash suffix so distinct jobs never share
// a name.
func TriggerName(jobID string) string {
	s := slug.Make(jobID)
	if s == jobID {
		return "job-" + s
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(jobID))
	return fmt.Sprintf("job-%s-%08x", s, h.Sum32())
}

func (r *Registry) target(jobID string, trigger job.Trigger) (Target, error) {
	payload, err := json.Marshal(job.TaskPayload{JobID: jobID, Trigger: trigger})
	if err != nil {
		return Target{}, err
	}
	return Target{TaskType: r.taskType, Queue: r.queue, Payload: payload}, nil
}

// Upsert creates or updates the recurring trigger of a job and returns the
// next activation for display, or nil when the job is disabled.
func (r *Registry) Upsert(ctx context.Context, jobID, schedule string, enabled bool) (*time.Time, error) {
	if jobID == "" {
		return nil, ErrMissingJobID
	}

	next, err := cronexpr.NextRun(schedule, r.now())
	if err != nil {
		return nil, err
	}

	target, err := r.target(jobID, job.TriggerScheduled)
	if err != nil {
		return nil, err
	}

	name := TriggerName(jobID)
	err = r.facility.PutRecurring(ctx, Recurring{
		Name:        name,
		Expression:  cronexpr.ToExternalTriggerExpression(schedule),
		Enabled:     enabled,
		Description: fmt.Sprintf("Scheduled execution for job %s", jobID),
		Target:      target,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: upsert %s: %w", ErrRegistryFailure, name, err)
	}

	zap.L().Info("[Trigger] recurring trigger upserted",
		zap.String("job_id", jobID),
		zap.String("trigger_name", name),
		zap.Bool("enabled", enabled),
		zap.Time("next_run_at", next),
	)

	if !enabled {
		return nil, nil
	}
	return &next, nil
}

// Remove deletes the recurring trigger of a job. Missing triggers and facility
// errors are logged; only a missing jobId is reported.
func (r *Registry) Remove(ctx context.Context, jobID string) error {
	if jobID == "" {
		return ErrMissingJobID
	}

	name := TriggerName(jobID)
	log := zap.L().With(zap.String("job_id", jobID), zap.String("trigger_name", name))

	if err := r.facility.DeleteTargets(ctx, name); err != nil && !errors.Is(err, ErrTriggerNotFound) {
		log.Warn("[Trigger] failed to remove trigger targets", zap.Error(err))
	}
	if err := r.facility.DeleteTrigger(ctx, name); err != nil && !errors.Is(err, ErrTriggerNotFound) {
		log.Warn("[Trigger] failed to remove trigger", zap.Error(err))
		return nil
	}

	log.Info("[Trigger] recurring trigger removed")
	return nil
}

// ScheduleRetry arms a uniquely named one-shot trigger delayMinutes from now.
func (r *Registry) ScheduleRetry(ctx context.Context, jobID string, delayMinutes int) (time.Time, error) {
	if jobID == "" {
		return time.Time{}, ErrMissingJobID
	}
	if delayMinutes < 0 {
		return time.Time{}, ErrInvalidDelay
	}

	fireAt := r.now().UTC().Add(time.Duration(delayMinutes) * time.Minute).Truncate(time.Second)
	name := fmt.Sprintf("%s-retry-%d-%s", TriggerName(jobID), fireAt.Unix(), gen.ShortID(r.node))

	target, err := r.target(jobID, job.TriggerRetry)
	if err != nil {
		return time.Time{}, err
	}

	if err := r.facility.PutOneShot(ctx, OneShot{Name: name, FireAt: fireAt, Target: target}); err != nil {
		return time.Time{}, fmt.Errorf("%w: schedule retry %s: %w", ErrRegistryFailure, name, err)
	}

	zap.L().Info("[Trigger] retry scheduled",
		zap.String("job_id", jobID),
		zap.String("trigger_name", name),
		zap.Int("delay_minutes", delayMinutes),
		zap.Time("fire_at", fireAt),
	)
	return fireAt, nil
}

// Reconcile re-upserts the trigger of every stored job and refreshes its
// nextRunAt. Jobs that fail are logged and counted; the first store error
// aborts the walk.
func (r *Registry) Reconcile(ctx context.Context, jobs job.Store, workers int) (int, error) {
	if workers <= 0 {
		workers = 1
	}

	var failed atomic.Int64
	after := ""
	for {
		page, err := jobs.List(ctx, job.ListParams{AfterID: after, Limit: reconcilePageSize})
		if err != nil {
			return int(failed.Load()), err
		}
		if len(page) == 0 {
			return int(failed.Load()), nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i := range page {
			j := &page[i]
			g.Go(func() error {
				if err := r.reconcileOne(gctx, jobs, j); err != nil {
					failed.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()

		after = page[len(page)-1].ID
	}
}

func (r *Registry) reconcileOne(ctx context.Context, jobs job.Store, j *job.Job) error {
	next, err := r.Upsert(ctx, j.ID, j.Schedule, j.Enabled)
	if err != nil {
		zap.L().Warn("[Trigger] reconcile failed", zap.String("job_id", j.ID), zap.Error(err))
		return err
	}
	if err := jobs.SetNextRun(ctx, j.ID, next); err != nil {
		zap.L().Warn("[Trigger] reconcile could not store nextRunAt", zap.String("job_id", j.ID), zap.Error(err))
		return err
	}
	return nil
}
