package job

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrExecutionNotFound = errors.New("execution not found")
	ErrInvalidExecution  = errors.New("invalid execution")
)

const defaultHistoryLimit = 50

// ExecutionStore is the append-only log of attempts.
type ExecutionStore interface {
	Create(ctx context.Context, exec *Execution) error
	Get(ctx context.Context, id string) (*Execution, error)
	// ListByJob returns the newest attempts first.
	ListByJob(ctx context.Context, jobID string, limit int) ([]Execution, error)
}

type gormExecutionStore struct {
	db    *gorm.DB
	table string
}

func NewExecutionStore(db *gorm.DB, table string) (ExecutionStore, error) {
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("executions: %w", ErrInvalidTable)
	}
	return &gormExecutionStore{db: db, table: table}, nil
}

// MigrateExecutions creates or updates the executions table and its job_id index.
func MigrateExecutions(db *gorm.DB, table string) error {
	return db.Table(table).AutoMigrate(&Execution{})
}

func (s *gormExecutionStore) query(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

func validateExecution(e *Execution) error {
	switch {
	case e == nil:
		return fmt.Errorf("%w: nil execution", ErrInvalidExecution)
	case e.ID == "" || e.JobID == "":
		return fmt.Errorf("%w: id and jobId are required", ErrInvalidExecution)
	case e.CompletedAt.Before(e.StartedAt):
		return fmt.Errorf("%w: completedAt before startedAt", ErrInvalidExecution)
	}

	hasResponse := len(e.Response) > 0
	hasError := e.ErrorMessage != nil
	if hasResponse == hasError {
		return fmt.Errorf("%w: exactly one of response or errorMessage must be set", ErrInvalidExecution)
	}
	if (e.Status == ExecutionSuccess) != hasResponse {
		return fmt.Errorf("%w: status %s does not match payload", ErrInvalidExecution, e.Status)
	}
	return nil
}

func (s *gormExecutionStore) Create(ctx context.Context, exec *Execution) error {
	if s == nil || s.db == nil {
		return gorm.ErrInvalidDB
	}
	if err := validateExecution(exec); err != nil {
		return err
	}
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = exec.CompletedAt
	}
	return s.query(ctx).Create(exec).Error
}

func (s *gormExecutionStore) Get(ctx context.Context, id string) (*Execution, error) {
	if s == nil || s.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var exec Execution
	err := s.query(ctx).Where("id = ?", id).First(&exec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

func (s *gormExecutionStore) ListByJob(ctx context.Context, jobID string, limit int) ([]Execution, error) {
	if s == nil || s.db == nil {
		return nil, gorm.ErrInvalidDB
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var out []Execution
	err := s.query(ctx).
		Where("job_id = ?", jobID).
		Order("started_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
