package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"promptcron/pkg/asynq"
	"promptcron/pkg/completion"
	"promptcron/pkg/config"
	"promptcron/pkg/db"
	"promptcron/pkg/gen"
	"promptcron/pkg/hashistack/secretmanager"
	"promptcron/pkg/health"
	"promptcron/pkg/httpapi"
	"promptcron/pkg/lease"
	"promptcron/pkg/logger"
	"promptcron/pkg/otelcol"
	"promptcron/pkg/profiling"
	"promptcron/pkg/redis"
	"promptcron/pkg/server"
	"promptcron/pkg/task"
	"promptcron/services/executor"
	"promptcron/services/job"
	"promptcron/services/retry"
	"promptcron/services/trigger"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		asynq.Client,
		asynq.Server,
		asynq.Periodic,
		task.Module,
		lease.Module,
		completion.Module,
		health.Module,
		httpapi.Module,
		job.Module,
		trigger.Module,
		retry.Module,
		executor.Module,
		server.ProvideHTTPServer,
		server.ProvideGRPCServer,
		fxLogger,
	}
	if secretmanager.Enabled() {
		opts = append(opts, secretmanager.Module)
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger}
})
