package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func setRequiredEnv(t *testing.T) {
	t.Setenv("STORE_JOBS_TABLE", "jobs")
	t.Setenv("STORE_EXECUTIONS_TABLE", "job_executions")
	t.Setenv("COMPLETION_ENDPOINT", "http://completion.local/v1/complete")
	t.Setenv("EXECUTOR_TASK_TYPE", "job:execute")
	t.Setenv("EXECUTOR_QUEUE", "jobs")
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig(Params{})
	require.NoError(t, err)
	require.Equal(t, "jobs", cfg.Store.JobsTable)
	require.Equal(t, "job_executions", cfg.Store.ExecutionsTable)
	require.Equal(t, "job:execute", cfg.Executor.TaskType)
	require.Equal(t, 300*time.Second, cfg.Completion.Timeout)
	require.Equal(t, 10, cfg.Completion.DefaultMaxTurns)
	require.Equal(t, 30, cfg.Retry.BaseMinutes)
	require.Equal(t, 240, cfg.Retry.CapMinutes)
	require.Zero(t, cfg.Executor.LeaseTTL)
	require.EqualValues(t, 1, cfg.AppNodeID)
}

func TestLoadConfigMissingIdentifiers(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STORE_JOBS_TABLE", "")
	t.Setenv("COMPLETION_ENDPOINT", "")

	_, err := LoadConfig(Params{})
	require.ErrorIs(t, err, ErrMissingIdentifier)
	require.Contains(t, err.Error(), "STORE.JOBS_TABLE")
	require.Contains(t, err.Error(), "COMPLETION.ENDPOINT")
}

func TestValidateRetryBounds(t *testing.T) {
	var cfg Config
	cfg.Store.JobsTable = "jobs"
	cfg.Store.ExecutionsTable = "job_executions"
	cfg.Completion.Endpoint = "http://completion.local"
	cfg.Completion.Timeout = time.Minute
	cfg.Executor.TaskType = "job:execute"
	cfg.Executor.Queue = "jobs"
	cfg.Retry.BaseMinutes = 30
	cfg.Retry.CapMinutes = 10

	require.ErrorIs(t, cfg.Validate(), ErrMissingIdentifier)

	cfg.Retry.CapMinutes = 240
	require.NoError(t, cfg.Validate())
}

func TestValidateLeaseOutlivesCall(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EXECUTOR_LEASE_TTL", "60s")

	_, err := LoadConfig(Params{})
	require.ErrorIs(t, err, ErrMissingIdentifier)
	require.Contains(t, err.Error(), "EXECUTOR.LEASE_TTL")

	t.Setenv("EXECUTOR_LEASE_TTL", "330s")
	cfg, err := LoadConfig(Params{})
	require.NoError(t, err)
	require.Equal(t, 330*time.Second, cfg.Executor.LeaseTTL)
}

func TestValidateNodeID(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_NODE_ID", "1024")

	_, err := LoadConfig(Params{})
	require.ErrorIs(t, err, ErrMissingIdentifier)
	require.Contains(t, err.Error(), "APP_NODE_ID")

	t.Setenv("APP_NODE_ID", "7")
	cfg, err := LoadConfig(Params{})
	require.NoError(t, err)
	require.EqualValues(t, 7, cfg.AppNodeID)
}
