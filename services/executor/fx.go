package executor

import (
	"promptcron/pkg/completion"
	"promptcron/pkg/config"
	"promptcron/pkg/lease"
	"promptcron/services/job"
	"promptcron/services/retry"
	"promptcron/services/trigger"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("executor",
	fx.Provide(
		provideExecutor,
		NewHandler,
	),
	fx.Invoke(
		registerTaskHandler,
		registerRoutes,
	),
)

type executorParams struct {
	fx.In
	Jobs        job.Store
	Executions  job.ExecutionStore
	Completion  completion.Client
	Registry    *trigger.Registry
	Coordinator *retry.Coordinator
	Node        *snowflake.Node
	Config      *config.Config
	Locker      lease.Locker `optional:"true"`
}

func provideExecutor(p executorParams) *Executor {
	var opts []Option
	if p.Locker != nil {
		opts = append(opts, WithLocker(p.Locker))
	}
	return New(p.Jobs, p.Executions, p.Completion, p.Registry, p.Coordinator, p.Node, p.Config, opts...)
}

func registerTaskHandler(mux *asynq.ServeMux, cfg *config.Config, e *Executor) {
	mux.HandleFunc(cfg.Executor.TaskType, e.HandleTask)
}

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r.Group("/v1"))
}
