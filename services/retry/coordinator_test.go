package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"promptcron/pkg/config"
	"promptcron/services/job"
	"promptcron/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestBackoff(t *testing.T) {
	cases := []struct{ previous, want int }{
		{0, 30},
		{1, 60},
		{2, 120},
		{3, 240},
		{4, 240},
		{62, 240},
		{1 << 30, 240},
		{-1, 30},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Backoff(c.previous, 30, 240), c.previous)
	}

	last := 0
	for prev := 0; prev < 100; prev++ {
		d := Backoff(prev, 30, 240)
		require.GreaterOrEqual(t, d, last)
		require.LessOrEqual(t, d, 240)
		last = d
	}
}

type scheduled struct {
	jobID string
	delay int
}

type fixture struct {
	coordinator *Coordinator
	jobs        job.Store
	calls       []scheduled
	err         error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	require.NoError(t, job.MigrateJobs(db, "jobs"))

	node, err := snowflake.NewNode(11)
	require.NoError(t, err)
	jobs, err := job.NewStore(db, "jobs", node)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Retry.BaseMinutes = 30
	cfg.Retry.CapMinutes = 240

	f := &fixture{jobs: jobs}
	now := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	f.coordinator = NewCoordinator(jobs, SchedulerFunc(func(_ context.Context, jobID string, delay int) (time.Time, error) {
		if f.err != nil {
			return time.Time{}, f.err
		}
		f.calls = append(f.calls, scheduled{jobID: jobID, delay: delay})
		return now.Add(time.Duration(delay) * time.Minute), nil
	}), cfg)
	return f
}

func (f *fixture) seed(t *testing.T, retryCount, maxRetries int, autoRetry bool) *job.Job {
	t.Helper()
	ctx := context.Background()
	j := &job.Job{Name: "alert", Prompt: "check metrics", Schedule: "*/30 * * * *", Enabled: true, MaxRetries: maxRetries, AutoRetry: autoRetry}
	require.NoError(t, f.jobs.Create(ctx, j))
	for i := 0; i < retryCount; i++ {
		_, claimed, err := f.jobs.ClaimRetry(ctx, j.ID)
		require.NoError(t, err)
		require.True(t, claimed)
	}
	got, err := f.jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	return got
}

func TestEligibleJobIsScheduled(t *testing.T) {
	f := newFixture(t)
	j := f.seed(t, 2, 3, true)

	d := f.coordinator.MaybeScheduleRetry(context.Background(), j)
	require.True(t, d.Scheduled)
	require.Equal(t, ReasonScheduled, d.Reason)
	require.Equal(t, 2, d.PreviousRetryCount)
	require.Equal(t, 3, d.RetryCount)
	require.Equal(t, 120, d.DelayMinutes)
	require.NotNil(t, d.FireAt)
	require.Equal(t, []scheduled{{jobID: j.ID, delay: 120}}, f.calls)

	stored, err := f.jobs.Get(context.Background(), j.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stored.RetryCount)
}

func TestExhaustedJobIsNotScheduled(t *testing.T) {
	f := newFixture(t)
	j := f.seed(t, 3, 3, true)

	d := f.coordinator.MaybeScheduleRetry(context.Background(), j)
	require.False(t, d.Scheduled)
	require.Equal(t, ReasonExhausted, d.Reason)
	require.Empty(t, f.calls)

	stored, err := f.jobs.Get(context.Background(), j.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stored.RetryCount)
}

func TestAutoRetryDisabled(t *testing.T) {
	f := newFixture(t)
	j := f.seed(t, 0, 3, false)

	d := f.coordinator.MaybeScheduleRetry(context.Background(), j)
	require.False(t, d.Scheduled)
	require.Equal(t, ReasonAutoRetryOff, d.Reason)
	require.Empty(t, f.calls)
}

func TestStaleSnapshotLosesToStore(t *testing.T) {
	f := newFixture(t)
	j := f.seed(t, 2, 3, true)

	// a concurrent attempt consumes the last unit after the snapshot was taken
	_, claimed, err := f.jobs.ClaimRetry(context.Background(), j.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	d := f.coordinator.MaybeScheduleRetry(context.Background(), j)
	require.False(t, d.Scheduled)
	require.Equal(t, ReasonExhausted, d.Reason)
	require.Empty(t, f.calls)
}

func TestScheduleFailureKeepsClaim(t *testing.T) {
	f := newFixture(t)
	f.err = errors.New("facility unavailable")
	j := f.seed(t, 0, 3, true)

	d := f.coordinator.MaybeScheduleRetry(context.Background(), j)
	require.False(t, d.Scheduled)
	require.Equal(t, ReasonScheduleFailed, d.Reason)
	require.Equal(t, 30, d.DelayMinutes)

	stored, err := f.jobs.Get(context.Background(), j.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.RetryCount)
}

func TestMissingJobClaimFails(t *testing.T) {
	f := newFixture(t)

	d := f.coordinator.MaybeScheduleRetry(context.Background(), &job.Job{ID: "job_missing", AutoRetry: true, MaxRetries: 3})
	require.False(t, d.Scheduled)
	require.Equal(t, ReasonClaimFailed, d.Reason)
}
