package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"promptcron/services/job"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// HandleTask is the asynq entry point for recurring and retry triggers.
// Attempts are never retried by asynq; retries are owned by the coordinator.
func (e *Executor) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload job.TaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("[Executor] invalid task payload", zap.String("task_type", t.Type()), zap.Error(err))
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	res, err := e.Execute(ctx, payload.JobID, payload.Trigger)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	if !res.Success() {
		zap.L().Info("[Executor] task finished with recorded failure",
			zap.String("job_id", res.JobID),
			zap.String("execution_id", res.ExecutionID),
			zap.String("error_type", res.ErrorType),
		)
	}
	return nil
}
