package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"promptcron/pkg/asynq"
	"promptcron/pkg/config"
	"promptcron/pkg/db"
	"promptcron/pkg/gen"
	"promptcron/pkg/logger"
	"promptcron/pkg/redis"
	"promptcron/pkg/task"
	"promptcron/services/job"
	"promptcron/services/trigger"
)

type registryUpserter struct {
	registry *trigger.Registry
}

func (r registryUpserter) Upsert(ctx context.Context, jobID, schedule string, enabled bool) error {
	_, err := r.registry.Upsert(ctx, jobID, schedule, enabled)
	return err
}

func main() {
	var (
		jobs     job.Store
		registry *trigger.Registry
	)

	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		gen.Module,
		asynq.Client,
		task.Module,
		job.StoreModule,
		trigger.RegistryModule,
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
		fx.Populate(&jobs, &registry),
	)
	if err := app.Err(); err != nil {
		log.Fatalf("fx init failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		log.Fatalf("start failed: %v", err)
	}
	defer func() { _ = app.Stop(context.Background()) }()

	created, err := seed(ctx, jobs, registryUpserter{registry: registry})
	if err != nil {
		zap.L().Error("seeding templates failed", zap.Error(err))
		return
	}
	zap.L().Info("templates seeded", zap.Int("created", created))
}
