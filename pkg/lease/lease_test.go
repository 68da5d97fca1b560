package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"promptcron/pkg/rediskey"
)

func newLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	return NewRedisLocker(rdb, node, time.Minute), mr
}

func TestAcquireIsExclusive(t *testing.T) {
	locker, _ := newLocker(t)
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "job-1")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "job-1")
	require.ErrorIs(t, err, ErrHeld)

	other, err := locker.Acquire(ctx, "job-2")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, first.Release(ctx))
	again, err := locker.Acquire(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, again)
}

func TestLeaseExpires(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	_, err := locker.Acquire(ctx, "job-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = locker.Acquire(ctx, "job-1")
	require.NoError(t, err)
}

func TestReleaseKeepsForeignLease(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "job-1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	current, err := locker.Acquire(ctx, "job-1")
	require.NoError(t, err)

	require.NoError(t, stale.Release(ctx))
	require.True(t, mr.Exists(rediskey.BuildJobLeaseKey("job-1")))

	require.NoError(t, current.Release(ctx))
	require.False(t, mr.Exists(rediskey.BuildJobLeaseKey("job-1")))
}
