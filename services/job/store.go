package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"promptcron/pkg/cronexpr"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrInvalidJob   = errors.New("invalid job")
	ErrInvalidTable = errors.New("table name is required")
)

// ListParams describes filters applied when listing jobs.
type ListParams struct {
	EnabledOnly bool
	AfterID     string
	Limit       int
}

// Outcome carries the result of a finished attempt into the job row.
type Outcome struct {
	CompletedAt time.Time
	DurationMs  int64
	Error       string
	NextRunAt   *time.Time
	// Schedule is the expression NextRunAt was computed from. The next run is
	// only written while the row is still enabled on that schedule.
	Schedule string
}

// Store persists job definitions and their aggregate run state. Counter
// updates are expressed as column arithmetic so concurrent attempts for the
// same job never lose increments.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, params ListParams) ([]Job, error)
	Delete(ctx context.Context, id string) error
	MarkRunning(ctx context.Context, id string, at time.Time) error
	RecordSuccess(ctx context.Context, id string, outcome Outcome) error
	RecordFailure(ctx context.Context, id string, outcome Outcome) error
	// ClaimRetry consumes one unit of retry budget. It reports the retry
	// count before the increment and whether the job was eligible.
	ClaimRetry(ctx context.Context, id string) (previous int, claimed bool, err error)
	SetNextRun(ctx context.Context, id string, next *time.Time) error
}

type gormStore struct {
	db    *gorm.DB
	table string
	node  *snowflake.Node
	now   func() time.Time
}

// NewStore returns a gorm backed Store writing to table.
func NewStore(db *gorm.DB, table string, node *snowflake.Node) (Store, error) {
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("jobs: %w", ErrInvalidTable)
	}
	return &gormStore{db: db, table: table, node: node, now: time.Now}, nil
}

// MigrateJobs creates or updates the jobs table.
func MigrateJobs(db *gorm.DB, table string) error {
	return db.Table(table).AutoMigrate(&Job{})
}

func (s *gormStore) query(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

func (s *gormStore) Create(ctx context.Context, job *Job) error {
	if s == nil || s.db == nil {
		return gorm.ErrInvalidDB
	}
	if job == nil {
		return fmt.Errorf("%w: nil job", ErrInvalidJob)
	}
	if strings.TrimSpace(job.Name) == "" || strings.TrimSpace(job.Prompt) == "" {
		return fmt.Errorf("%w: name and prompt are required", ErrInvalidJob)
	}
	if job.MaxRetries < 0 {
		return fmt.Errorf("%w: maxRetries must not be negative", ErrInvalidJob)
	}
	if err := cronexpr.Validate(job.Schedule); err != nil {
		return err
	}

	if job.ID == "" {
		if s.node == nil {
			return fmt.Errorf("%w: id is required", ErrInvalidJob)
		}
		job.ID = "job_" + s.node.Generate().String()
	}
	if job.MaxTurns < 1 {
		job.MaxTurns = DefaultMaxTurns
	}

	now := s.now().UTC()
	job.CreatedAt, job.UpdatedAt = now, now
	return s.query(ctx).Create(job).Error
}

func (s *gormStore) Get(ctx context.Context, id string) (*Job, error) {
	if s == nil || s.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var job Job
	err := s.query(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *gormStore) List(ctx context.Context, params ListParams) ([]Job, error) {
	if s == nil || s.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	q := s.query(ctx)
	if params.EnabledOnly {
		q = q.Where("enabled = ?", true)
	}
	if params.AfterID != "" {
		q = q.Where("id > ?", params.AfterID)
	}
	if params.Limit > 0 {
		q = q.Limit(params.Limit)
	}

	var jobs []Job
	if err := q.Order("id ASC").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *gormStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return gorm.ErrInvalidDB
	}

	res := s.query(ctx).Where("id = ?", id).Delete(&Job{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}

func (s *gormStore) update(ctx context.Context, id string, values map[string]any) error {
	if s == nil || s.db == nil {
		return gorm.ErrInvalidDB
	}

	res := s.query(ctx).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}

func (s *gormStore) MarkRunning(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, id, map[string]any{
		"last_run_status": RunStatusRunning,
		"last_run_at":     at.UTC(),
		"updated_at":      s.now().UTC(),
	})
}

func (s *gormStore) RecordSuccess(ctx context.Context, id string, o Outcome) error {
	values := map[string]any{
		"last_run_status":   RunStatusSuccess,
		"last_run_at":       o.CompletedAt.UTC(),
		"last_run_duration": o.DurationMs,
		"last_run_error":    nil,
		"retry_count":       0,
		"total_runs":        gorm.Expr("COALESCE(total_runs, 0) + ?", 1),
		"success_count":     gorm.Expr("COALESCE(success_count, 0) + ?", 1),
		"updated_at":        o.CompletedAt.UTC(),
	}
	if o.NextRunAt != nil {
		values["next_run_at"] = gorm.Expr("CASE WHEN enabled = ? AND schedule = ? THEN ? ELSE next_run_at END",
			true, o.Schedule, o.NextRunAt.UTC())
	}
	return s.update(ctx, id, values)
}

func (s *gormStore) RecordFailure(ctx context.Context, id string, o Outcome) error {
	return s.update(ctx, id, map[string]any{
		"last_run_status":   RunStatusFailed,
		"last_run_at":       o.CompletedAt.UTC(),
		"last_run_duration": o.DurationMs,
		"last_run_error":    o.Error,
		"total_runs":        gorm.Expr("COALESCE(total_runs, 0) + ?", 1),
		"failure_count":     gorm.Expr("COALESCE(failure_count, 0) + ?", 1),
		"updated_at":        o.CompletedAt.UTC(),
	})
}

func (s *gormStore) ClaimRetry(ctx context.Context, id string) (int, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, gorm.ErrInvalidDB
	}

	var claimed []Job
	res := s.query(ctx).
		Model(&claimed).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "retry_count"}}}).
		Where("id = ? AND auto_retry = ? AND retry_count < max_retries", id, true).
		Updates(map[string]any{
			"retry_count": gorm.Expr("retry_count + ?", 1),
			"updated_at":  s.now().UTC(),
		})
	if res.Error != nil {
		return 0, false, res.Error
	}

	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return 0, false, err
		}
		return 0, false, nil
	}
	if len(claimed) == 1 {
		return claimed[0].RetryCount - 1, true, nil
	}

	// mysql has no RETURNING
	var current int
	if err := s.query(ctx).Select("retry_count").Where("id = ?", id).Scan(&current).Error; err != nil {
		return 0, true, err
	}
	return current - 1, true, nil
}

func (s *gormStore) SetNextRun(ctx context.Context, id string, next *time.Time) error {
	var value any
	if next != nil {
		value = next.UTC()
	}
	return s.update(ctx, id, map[string]any{
		"next_run_at": value,
		"updated_at":  s.now().UTC(),
	})
}
