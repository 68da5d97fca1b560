package main

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"promptcron/pkg/cronexpr"
	"promptcron/services/job"
	"promptcron/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type recordedUpsert struct {
	jobID    string
	schedule string
	enabled  bool
}

type fakeUpserter struct {
	calls []recordedUpsert
}

func (f *fakeUpserter) Upsert(_ context.Context, jobID, schedule string, enabled bool) error {
	f.calls = append(f.calls, recordedUpsert{jobID: jobID, schedule: schedule, enabled: enabled})
	return nil
}

func TestTemplatesAreValidSchedules(t *testing.T) {
	for _, tpl := range templates {
		require.NoError(t, cronexpr.Validate(tpl.Schedule), tpl.ID)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	db := testutil.NewTestDB(t)
	require.NoError(t, job.MigrateJobs(db, "jobs"))
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	jobs, err := job.NewStore(db, "jobs", node)
	require.NoError(t, err)

	up := &fakeUpserter{}
	created, err := seed(context.Background(), jobs, up)
	require.NoError(t, err)
	require.Equal(t, len(templates), created)
	require.Len(t, up.calls, len(templates))

	for _, call := range up.calls {
		require.False(t, call.enabled)
		stored, err := jobs.Get(context.Background(), call.jobID)
		require.NoError(t, err)
		require.False(t, stored.Enabled)
		require.Equal(t, call.schedule, stored.Schedule)
		require.Equal(t, job.DefaultMaxRetries, stored.MaxRetries)
	}

	created, err = seed(context.Background(), jobs, up)
	require.NoError(t, err)
	require.Zero(t, created)
	require.Len(t, up.calls, len(templates))
}
