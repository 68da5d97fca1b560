package job

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
	RunStatusRunning RunStatus = "running"
)

type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
	ExecutionTimeout ExecutionStatus = "timeout"
)

// Trigger names what caused an execution.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerRetry     Trigger = "retry"
)

// ParseTrigger defaults an empty value to TriggerScheduled.
func ParseTrigger(v string) (Trigger, bool) {
	switch Trigger(strings.ToLower(strings.TrimSpace(v))) {
	case "", TriggerScheduled:
		return TriggerScheduled, true
	case TriggerManual:
		return TriggerManual, true
	case TriggerRetry:
		return TriggerRetry, true
	}
	return "", false
}

const (
	DefaultMaxTurns   = 10
	DefaultMaxRetries = 3
)

type Job struct {
	ID           string  `gorm:"column:id;primaryKey;type:varchar(64)" json:"id"`
	Name         string  `gorm:"column:name;type:varchar(200);not null" json:"name"`
	Prompt       string  `gorm:"column:prompt;type:text;not null" json:"prompt"`
	SystemPrompt *string `gorm:"column:system_prompt;type:text" json:"systemPrompt,omitempty"`
	Schedule     string  `gorm:"column:schedule;type:varchar(100);not null" json:"schedule"`
	Enabled      bool    `gorm:"column:enabled;not null" json:"enabled"`
	MaxTurns     int     `gorm:"column:max_turns;not null" json:"maxTurns"`

	LastRunAt       *time.Time `gorm:"column:last_run_at" json:"lastRunAt,omitempty"`
	NextRunAt       *time.Time `gorm:"column:next_run_at" json:"nextRunAt,omitempty"`
	LastRunStatus   RunStatus  `gorm:"column:last_run_status;type:varchar(20)" json:"lastRunStatus,omitempty"`
	LastRunError    *string    `gorm:"column:last_run_error;type:text" json:"lastRunError,omitempty"`
	LastRunDuration int64      `gorm:"column:last_run_duration;not null;default:0" json:"lastRunDuration"`

	TotalRuns    int64 `gorm:"column:total_runs;not null;default:0" json:"totalRuns"`
	SuccessCount int64 `gorm:"column:success_count;not null;default:0" json:"successCount"`
	FailureCount int64 `gorm:"column:failure_count;not null;default:0" json:"failureCount"`

	RetryCount int  `gorm:"column:retry_count;not null;default:0" json:"retryCount"`
	MaxRetries int  `gorm:"column:max_retries;not null" json:"maxRetries"`
	AutoRetry  bool `gorm:"column:auto_retry;not null" json:"autoRetry"`

	CreatedBy string    `gorm:"column:created_by;type:varchar(100)" json:"createdBy,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

// EffectiveMaxTurns falls back to DefaultMaxTurns when unset.
func (j *Job) EffectiveMaxTurns(def int) int {
	if j.MaxTurns > 0 {
		return j.MaxTurns
	}
	if def > 0 {
		return def
	}
	return DefaultMaxTurns
}

func (j *Job) SystemPromptText() string {
	if j.SystemPrompt == nil {
		return ""
	}
	return *j.SystemPrompt
}

// Execution is the append-only record of one attempt.
type Execution struct {
	ID            string          `gorm:"column:id;primaryKey;type:varchar(64)" json:"id"`
	JobID         string          `gorm:"column:job_id;type:varchar(64);not null;index" json:"jobId"`
	StartedAt     time.Time       `gorm:"column:started_at;not null" json:"startedAt"`
	CompletedAt   time.Time       `gorm:"column:completed_at;not null" json:"completedAt"`
	Status        ExecutionStatus `gorm:"column:status;type:varchar(20);not null" json:"status"`
	Trigger       Trigger         `gorm:"column:trigger_type;type:varchar(20);not null" json:"trigger"`
	Response      datatypes.JSON  `gorm:"column:response" json:"response,omitempty"`
	ErrorMessage  *string         `gorm:"column:error_message;type:text" json:"errorMessage,omitempty"`
	ErrorType     *string         `gorm:"column:error_type;type:varchar(50)" json:"errorType,omitempty"`
	DurationMs    int64           `gorm:"column:duration_ms;not null" json:"durationMs"`
	APILatencyMs  int64           `gorm:"column:api_latency_ms;not null;default:0" json:"apiLatencyMs"`
	ToolsExecuted int             `gorm:"column:tools_executed;not null;default:0" json:"toolsExecuted"`
	CreatedAt     time.Time       `gorm:"column:created_at" json:"createdAt"`
}

// TaskPayload is the body every trigger delivers to the executor.
type TaskPayload struct {
	JobID   string  `json:"jobId"`
	Trigger Trigger `json:"trigger"`
}
