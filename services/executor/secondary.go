package executor

import (
	"context"

	"go.uber.org/zap"
)

// secondary runs a step around the completion call. A fatal step returns its
// error to the caller; any other step only logs it.
func secondary(ctx context.Context, log *zap.Logger, name string, fatal bool, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		return nil
	}
	if fatal {
		log.Error("[Executor] step failed", zap.String("step", name), zap.Error(err))
		return err
	}
	log.Warn("[Executor] best-effort step failed", zap.String("step", name), zap.Error(err))
	return nil
}
