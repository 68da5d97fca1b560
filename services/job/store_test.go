package job

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"promptcron/pkg/cronexpr"
	"promptcron/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestStores(t *testing.T) (Store, ExecutionStore) {
	t.Helper()
	db := testutil.NewTestDB(t)
	require.NoError(t, MigrateJobs(db, "jobs"))
	require.NoError(t, MigrateExecutions(db, "job_executions"))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	jobs, err := NewStore(db, "jobs", node)
	require.NoError(t, err)
	execs, err := NewExecutionStore(db, "job_executions")
	require.NoError(t, err)
	return jobs, execs
}

func seedJob(t *testing.T, store Store, mutate func(*Job)) *Job {
	t.Helper()
	j := &Job{
		ID:         "job-1",
		Name:       "news summary",
		Prompt:     "summarise today's headlines",
		Schedule:   "0 */4 * * *",
		Enabled:    true,
		MaxRetries: 3,
		AutoRetry:  true,
	}
	if mutate != nil {
		mutate(j)
	}
	require.NoError(t, store.Create(context.Background(), j))
	return j
}

func TestNewStoreRequiresTable(t *testing.T) {
	_, err := NewStore(nil, " ", nil)
	require.ErrorIs(t, err, ErrInvalidTable)

	_, err = NewExecutionStore(nil, "")
	require.ErrorIs(t, err, ErrInvalidTable)
}

func TestCreateAppliesDefaults(t *testing.T) {
	store, _ := newTestStores(t)
	j := seedJob(t, store, func(j *Job) { j.ID = "" })

	require.NotEmpty(t, j.ID)
	require.Equal(t, DefaultMaxTurns, j.MaxTurns)

	got, err := store.Get(context.Background(), j.ID)
	require.NoError(t, err)
	require.Equal(t, "news summary", got.Name)
	require.True(t, got.Enabled)
	require.True(t, got.AutoRetry)
	require.Zero(t, got.TotalRuns)
}

func TestCreateKeepsDisabledFlag(t *testing.T) {
	store, _ := newTestStores(t)
	seedJob(t, store, func(j *Job) { j.Enabled = false; j.AutoRetry = false })

	got, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.False(t, got.Enabled)
	require.False(t, got.AutoRetry)
}

func TestCreateRejectsInvalidSchedule(t *testing.T) {
	store, _ := newTestStores(t)
	err := store.Create(context.Background(), &Job{ID: "job-x", Name: "n", Prompt: "p", Schedule: "every hour"})
	require.ErrorIs(t, err, cronexpr.ErrInvalidSchedule)

	_, err = store.Get(context.Background(), "job-x")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestGetAndDeleteNotFound(t *testing.T) {
	store, _ := newTestStores(t)
	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
	require.ErrorIs(t, store.Delete(context.Background(), "missing"), ErrJobNotFound)
}

func TestListEnabledOnly(t *testing.T) {
	store, _ := newTestStores(t)
	seedJob(t, store, nil)
	seedJob(t, store, func(j *Job) { j.ID = "job-2"; j.Enabled = false })
	seedJob(t, store, func(j *Job) { j.ID = "job-3" })

	all, err := store.List(context.Background(), ListParams{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	enabled, err := store.List(context.Background(), ListParams{EnabledOnly: true})
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	require.Equal(t, "job-1", enabled[0].ID)
	require.Equal(t, "job-3", enabled[1].ID)

	page, err := store.List(context.Background(), ListParams{AfterID: "job-1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "job-2", page[0].ID)
}

func TestRecordSuccessResetsRetryState(t *testing.T) {
	store, _ := newTestStores(t)
	ctx := context.Background()
	seedJob(t, store, nil)

	require.NoError(t, store.RecordFailure(ctx, "job-1", Outcome{CompletedAt: time.Now(), DurationMs: 10, Error: "boom"}))
	_, claimed, err := store.ClaimRetry(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, claimed)

	next := time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordSuccess(ctx, "job-1", Outcome{CompletedAt: time.Now(), DurationMs: 25, NextRunAt: &next, Schedule: "0 */4 * * *"}))

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, RunStatusSuccess, got.LastRunStatus)
	require.Zero(t, got.RetryCount)
	require.Nil(t, got.LastRunError)
	require.EqualValues(t, 2, got.TotalRuns)
	require.EqualValues(t, 1, got.SuccessCount)
	require.EqualValues(t, 1, got.FailureCount)
	require.EqualValues(t, 25, got.LastRunDuration)
	require.NotNil(t, got.NextRunAt)
	require.True(t, got.NextRunAt.Equal(next))
}

func TestRecordSuccessSkipsNextRunForChangedRow(t *testing.T) {
	store, _ := newTestStores(t)
	ctx := context.Background()
	seedJob(t, store, nil)

	prior := time.Date(2024, 1, 1, 9, 15, 0, 0, time.UTC)
	require.NoError(t, store.SetNextRun(ctx, "job-1", &prior))

	stale := time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordSuccess(ctx, "job-1", Outcome{CompletedAt: time.Now(), NextRunAt: &stale, Schedule: "0 9 * * *"}))

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, got.SuccessCount)
	require.True(t, got.NextRunAt.Equal(prior))

	db := store.(*gormStore).db
	require.NoError(t, db.Table("jobs").Where("id = ?", "job-1").Update("enabled", false).Error)
	require.NoError(t, store.RecordSuccess(ctx, "job-1", Outcome{CompletedAt: time.Now(), NextRunAt: &stale, Schedule: "0 */4 * * *"}))

	got, err = store.Get(ctx, "job-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, got.SuccessCount)
	require.True(t, got.NextRunAt.Equal(prior))
}

func TestRecordFailureKeepsNextRun(t *testing.T) {
	store, _ := newTestStores(t)
	ctx := context.Background()
	seedJob(t, store, nil)

	next := time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetNextRun(ctx, "job-1", &next))
	require.NoError(t, store.MarkRunning(ctx, "job-1", time.Now()))

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, RunStatusRunning, got.LastRunStatus)

	require.NoError(t, store.RecordFailure(ctx, "job-1", Outcome{CompletedAt: time.Now(), Error: "completion service returned 500: Internal Server Error"}))

	got, err = store.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, RunStatusFailed, got.LastRunStatus)
	require.Equal(t, "completion service returned 500: Internal Server Error", *got.LastRunError)
	require.True(t, got.NextRunAt.Equal(next))
}

func TestConcurrentOutcomesDoNotLoseCounts(t *testing.T) {
	store, _ := newTestStores(t)
	ctx := context.Background()
	seedJob(t, store, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := Outcome{CompletedAt: time.Now(), DurationMs: int64(i)}
			if i%2 == 0 {
				errs <- store.RecordSuccess(ctx, "job-1", o)
				return
			}
			o.Error = "boom"
			errs <- store.RecordFailure(ctx, "job-1", o)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	require.EqualValues(t, 10, got.TotalRuns)
	require.EqualValues(t, 5, got.SuccessCount)
	require.EqualValues(t, 5, got.FailureCount)
}

func TestClaimRetryBoundary(t *testing.T) {
	store, _ := newTestStores(t)
	ctx := context.Background()
	seedJob(t, store, func(j *Job) { j.RetryCount = 2 })

	prev, claimed, err := store.ClaimRetry(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, claimed)
	require.Equal(t, 2, prev)

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, 3, got.RetryCount)

	_, claimed, err = store.ClaimRetry(ctx, "job-1")
	require.NoError(t, err)
	require.False(t, claimed)

	got, err = store.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, 3, got.RetryCount)
}

func TestConcurrentClaimsSeeDistinctCounts(t *testing.T) {
	store, _ := newTestStores(t)
	ctx := context.Background()
	seedJob(t, store, func(j *Job) { j.MaxRetries = 5 })

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen []int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prev, claimed, err := store.ClaimRetry(ctx, "job-1")
			if err != nil || !claimed {
				return
			}
			mu.Lock()
			seen = append(seen, prev)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.ElementsMatch(t, []int{0, 1, 2, 3, 4}, seen)
}

func TestClaimRetryHonoursAutoRetry(t *testing.T) {
	store, _ := newTestStores(t)
	ctx := context.Background()
	seedJob(t, store, func(j *Job) { j.AutoRetry = false })

	_, claimed, err := store.ClaimRetry(ctx, "job-1")
	require.NoError(t, err)
	require.False(t, claimed)

	_, _, err = store.ClaimRetry(ctx, "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestExecutionStoreValidates(t *testing.T) {
	_, execs := newTestStores(t)
	ctx := context.Background()
	now := time.Now()
	msg := "boom"

	cases := []*Execution{
		{ID: "e1", JobID: "job-1", StartedAt: now, CompletedAt: now.Add(-time.Second), Status: ExecutionFailed, ErrorMessage: &msg},
		{ID: "e2", JobID: "job-1", StartedAt: now, CompletedAt: now, Status: ExecutionSuccess},
		{ID: "e3", JobID: "job-1", StartedAt: now, CompletedAt: now, Status: ExecutionSuccess, Response: datatypes.JSON(`{}`), ErrorMessage: &msg},
		{ID: "e4", JobID: "job-1", StartedAt: now, CompletedAt: now, Status: ExecutionFailed, Response: datatypes.JSON(`{}`)},
		{ID: "", JobID: "job-1", StartedAt: now, CompletedAt: now, Status: ExecutionFailed, ErrorMessage: &msg},
	}
	for _, c := range cases {
		require.ErrorIs(t, execs.Create(ctx, c), ErrInvalidExecution, c.ID)
	}
}

func TestExecutionStoreListByJobNewestFirst(t *testing.T) {
	_, execs := newTestStores(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	msg := "boom"

	for i, id := range []string{"exec_a", "exec_b", "exec_c"} {
		started := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, execs.Create(ctx, &Execution{
			ID:           id,
			JobID:        "job-1",
			StartedAt:    started,
			CompletedAt:  started.Add(time.Second),
			Status:       ExecutionFailed,
			Trigger:      TriggerScheduled,
			ErrorMessage: &msg,
			DurationMs:   1000,
		}))
	}
	response, err := json.Marshal(map[string]string{"result": "ok"})
	require.NoError(t, err)
	require.NoError(t, execs.Create(ctx, &Execution{
		ID:          "exec_other",
		JobID:       "job-2",
		StartedAt:   base,
		CompletedAt: base,
		Status:      ExecutionSuccess,
		Trigger:     TriggerManual,
		Response:    response,
	}))

	list, err := execs.ListByJob(ctx, "job-1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "exec_c", list[0].ID)
	require.Equal(t, "exec_b", list[1].ID)

	got, err := execs.Get(ctx, "exec_other")
	require.NoError(t, err)
	require.JSONEq(t, `{"result":"ok"}`, string(got.Response))

	_, err = execs.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestParseTrigger(t *testing.T) {
	tr, ok := ParseTrigger("")
	require.True(t, ok)
	require.Equal(t, TriggerScheduled, tr)

	tr, ok = ParseTrigger("Retry")
	require.True(t, ok)
	require.Equal(t, TriggerRetry, tr)

	_, ok = ParseTrigger("cron")
	require.False(t, ok)
}
