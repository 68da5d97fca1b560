// Package lease serialises executions of the same job across workers with a
// redis key per job.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"promptcron/pkg/config"
	"promptcron/pkg/gen"
	"promptcron/pkg/rediskey"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("lease",
	fx.Provide(New),
)

// ErrHeld is returned when another worker owns the lease.
var ErrHeld = errors.New("lease held by another worker")

// Locker grants exclusive, expiring ownership of a job.
type Locker interface {
	Acquire(ctx context.Context, jobID string) (*Lease, error)
}

type Lease struct {
	key   string
	token string
	rdb   redis.Cmdable
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Release drops the lease if it is still owned by the caller.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}

type RedisLocker struct {
	rdb  redis.Cmdable
	node *snowflake.Node
	ttl  time.Duration
}

func NewRedisLocker(rdb redis.Cmdable, node *snowflake.Node, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, node: node, ttl: ttl}
}

type Params struct {
	fx.In
	Config *config.Config
	Redis  *redis.Client
	Node   *snowflake.Node
}

// New returns nil unless EXECUTOR.LEASE_TTL is set, leaving concurrent
// executions of one job unserialised.
func New(p Params) Locker {
	if p.Config.Executor.LeaseTTL <= 0 {
		return nil
	}
	return NewRedisLocker(p.Redis, p.Node, p.Config.Executor.LeaseTTL)
}

func (l *RedisLocker) Acquire(ctx context.Context, jobID string) (*Lease, error) {
	key := rediskey.BuildJobLeaseKey(jobID)
	token := gen.ShortID(l.node)

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &Lease{key: key, token: token, rdb: l.rdb}, nil
}
