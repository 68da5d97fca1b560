package trigger

import (
	"context"

	"promptcron/pkg/config"
	"promptcron/pkg/task"
	"promptcron/services/job"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RegistryModule provides the asynq backed facility and the Registry.
var RegistryModule = fx.Module("trigger.registry",
	fx.Provide(
		provideAsynqFacility,
		func(f *AsynqFacility) Facility { return f },
		func(f *AsynqFacility) asynq.PeriodicTaskConfigProvider { return f },
		NewRegistry,
	),
)

var Module = fx.Module("trigger",
	RegistryModule,
	fx.Provide(NewHandler),
	fx.Invoke(
		registerRoutes,
		registerReconcile,
	),
)

func provideAsynqFacility(db *gorm.DB, enqueuer task.Enqueuer) (*AsynqFacility, error) {
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return NewAsynqFacility(db, enqueuer), nil
}

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r.Group("/v1"))
}

type reconcileParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Registry  *Registry
	Jobs      job.Store
}

func registerReconcile(p reconcileParams) {
	if !p.Config.Trigger.ReconcileOnStart {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				failed, err := p.Registry.Reconcile(ctx, p.Jobs, p.Config.Trigger.ReconcileWorkers)
				if err != nil {
					zap.L().Error("[Trigger] reconcile aborted", zap.Error(err))
					return
				}
				zap.L().Info("[Trigger] reconcile finished", zap.Int("failed", failed))
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
