package job

import (
	"fmt"

	"promptcron/pkg/config"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// StoreModule provides the job and execution stores without any routes.
var StoreModule = fx.Module("job.store",
	fx.Provide(provideStores),
)

var Module = fx.Module("job",
	StoreModule,
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

type storeParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
	Node   *snowflake.Node
}

type storeResult struct {
	fx.Out
	Jobs       Store
	Executions ExecutionStore
}

func provideStores(p storeParams) (storeResult, error) {
	tables := p.Config.Store
	if err := MigrateJobs(p.DB, tables.JobsTable); err != nil {
		return storeResult{}, fmt.Errorf("migrate %s: %w", tables.JobsTable, err)
	}
	if err := MigrateExecutions(p.DB, tables.ExecutionsTable); err != nil {
		return storeResult{}, fmt.Errorf("migrate %s: %w", tables.ExecutionsTable, err)
	}

	jobs, err := NewStore(p.DB, tables.JobsTable, p.Node)
	if err != nil {
		return storeResult{}, err
	}
	executions, err := NewExecutionStore(p.DB, tables.ExecutionsTable)
	if err != nil {
		return storeResult{}, err
	}
	return storeResult{Jobs: jobs, Executions: executions}, nil
}

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r.Group("/v1"))
}
