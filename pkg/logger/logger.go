package logger

import (
	"promptcron/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Module = fx.Module("zap",
	fx.Provide(
		New,
	),
)

type ConfigParams struct {
	fx.In
	Cfg *config.Config `optional:"true"`
}

func New(p ConfigParams) (*zap.Logger, error) {
	env, service := "development", "promptcron"
	if p.Cfg != nil {
		env, service = p.Cfg.AppEnv, p.Cfg.AppName
	}

	log, err := build(env)
	if err != nil {
		return nil, err
	}

	log = log.With(
		zap.String("env", env),
		zap.String("service_name", service),
	)
	zap.ReplaceGlobals(log)

	return log, nil
}

func build(env string) (*zap.Logger, error) {
	if env != "production" {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.EncoderConfig.LevelKey = "severity"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.Encoding = "json"
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// ForJob returns the global logger annotated with the job being worked on.
func ForJob(jobID string, fields ...zap.Field) *zap.Logger {
	return zap.L().With(append([]zap.Field{zap.String("job_id", jobID)}, fields...)...)
}
