package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/vault-client-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps,omitempty"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
}

type health struct {
	db    *gorm.DB
	redis *redis.Client
	vault *vault.Client
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
	Vault *vault.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	return &health{
		db:    p.DB,
		redis: p.Redis,
		vault: p.Vault,
	}
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  statusHealthy,
		Message: "OK",
	})
}

// Readiness reports 503 when the database, redis or vault cannot be reached.
func (h *health) Readiness(c *gin.Context) {
	ctx := c.Request.Context()
	this := &Health{Status: statusHealthy, Message: "OK"}

	check := func(name string, ping func() error) {
		dep := Dependency{Name: name, Status: statusHealthy, Message: "OK"}
		if err := ping(); err != nil {
			dep.Status = statusUnhealthy
			dep.Message = err.Error()
			this.Status = statusUnhealthy
			this.Message = name + " unavailable"
		}
		this.Deps = append(this.Deps, dep)
	}

	if h.db != nil {
		check(h.db.Name(), func() error {
			sql, err := h.db.DB()
			if err != nil {
				return err
			}
			return sql.PingContext(ctx)
		})
	}
	if h.redis != nil {
		check("redis", func() error {
			return h.redis.Ping(ctx).Err()
		})
	}
	if h.vault != nil {
		check("vault", func() error {
			_, err := h.vault.System.ReadHealthStatus(ctx)
			return err
		})
	}

	status := http.StatusOK
	if this.Status != statusHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, this)
}
