package asynq

import (
	"context"
	"fmt"

	"promptcron/pkg/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("asynq:client",
	fx.Provide(registerClient),
)

func registerClient(lc fx.Lifecycle, redis *redis.Client) *asynq.Client {
	client := asynq.NewClientFromRedisClient(redis)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client
}

// Server runs handlers registered on the shared *asynq.ServeMux.
var Server = fx.Module("asynq:server",
	fx.Provide(registerServerMux),
	fx.Invoke(registerAsynqServer),
)

func registerServerMux() *asynq.ServeMux {
	return asynq.NewServeMux()
}

func redisConnOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

func registerAsynqServer(lc fx.Lifecycle, cfg *config.Config, mux *asynq.ServeMux) {
	concurrency := cfg.Executor.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	server := asynq.NewServer(
		redisConnOpt(cfg),
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				cfg.Executor.Queue: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				zap.L().Error("[Asynq] task failed", zap.String("task_type", task.Type()), zap.Error(err))
			}),
		},
	)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := server.Start(mux); err != nil {
				return fmt.Errorf("[Asynq] start server: %w", err)
			}
			zap.L().Info("[Asynq] server started", zap.String("queue", cfg.Executor.Queue), zap.Int("concurrency", concurrency))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			server.Shutdown()
			return nil
		},
	})
}

// Periodic runs a PeriodicTaskManager fed by the provided PeriodicTaskConfigProvider.
var Periodic = fx.Module("asynq:periodic",
	fx.Invoke(registerPeriodicManager),
)

func registerPeriodicManager(lc fx.Lifecycle, cfg *config.Config, provider asynq.PeriodicTaskConfigProvider) error {
	mgr, err := asynq.NewPeriodicTaskManager(asynq.PeriodicTaskManagerOpts{
		RedisConnOpt:               redisConnOpt(cfg),
		PeriodicTaskConfigProvider: provider,
		SyncInterval:               cfg.Trigger.SyncInterval,
		SchedulerOpts: &asynq.SchedulerOpts{
			PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
				if err != nil {
					zap.L().Error("[Asynq] periodic enqueue failed", zap.Error(err))
					return
				}
				zap.L().Debug("[Asynq] periodic task enqueued", zap.String("task_id", info.ID), zap.String("queue", info.Queue))
			},
		},
	})
	if err != nil {
		return fmt.Errorf("[Asynq] periodic task manager: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return mgr.Start()
		},
		OnStop: func(ctx context.Context) error {
			mgr.Shutdown()
			return nil
		},
	})
	return nil
}
