package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"promptcron/pkg/cronexpr"
	"promptcron/pkg/task"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type triggerRecord struct {
	Name        string    `gorm:"column:name;primaryKey;type:varchar(191)"`
	Expression  string    `gorm:"column:expression;type:varchar(200);not null"`
	Enabled     bool      `gorm:"column:enabled;not null"`
	Description string    `gorm:"column:description;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (triggerRecord) TableName() string { return "triggers" }

type targetRecord struct {
	ID          uint           `gorm:"column:id;primaryKey;autoIncrement"`
	TriggerName string         `gorm:"column:trigger_name;type:varchar(191);not null;index"`
	TaskType    string         `gorm:"column:task_type;type:varchar(100);not null"`
	Queue       string         `gorm:"column:queue;type:varchar(100);not null"`
	Payload     datatypes.JSON `gorm:"column:payload"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
}

func (targetRecord) TableName() string { return "trigger_targets" }

// Migrate creates the tables backing recurring triggers.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&triggerRecord{}, &targetRecord{})
}

// AsynqFacility keeps recurring triggers in the database, where asynq's
// PeriodicTaskManager picks them up through GetConfigs, and enqueues one-shot
// triggers as scheduled asynq tasks.
type AsynqFacility struct {
	db       *gorm.DB
	enqueuer task.Enqueuer
	now      func() time.Time
}

func NewAsynqFacility(db *gorm.DB, enqueuer task.Enqueuer) *AsynqFacility {
	return &AsynqFacility{db: db, enqueuer: enqueuer, now: time.Now}
}

func (f *AsynqFacility) PutRecurring(ctx context.Context, t Recurring) error {
	now := f.now().UTC()
	rec := triggerRecord{
		Name:        t.Name,
		Expression:  t.Expression,
		Enabled:     t.Enabled,
		Description: t.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	return f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"expression", "enabled", "description", "updated_at"}),
		}).Create(&rec).Error
		if err != nil {
			return fmt.Errorf("put trigger %s: %w", t.Name, err)
		}

		if err := tx.Where("trigger_name = ?", t.Name).Delete(&targetRecord{}).Error; err != nil {
			return fmt.Errorf("replace targets of %s: %w", t.Name, err)
		}
		return tx.Create(&targetRecord{
			TriggerName: t.Name,
			TaskType:    t.Target.TaskType,
			Queue:       t.Target.Queue,
			Payload:     datatypes.JSON(t.Target.Payload),
			CreatedAt:   now,
		}).Error
	})
}

func (f *AsynqFacility) DeleteTargets(ctx context.Context, name string) error {
	res := f.db.WithContext(ctx).Where("trigger_name = ?", name).Delete(&targetRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrTriggerNotFound, name)
	}
	return nil
}

func (f *AsynqFacility) DeleteTrigger(ctx context.Context, name string) error {
	var attached int64
	if err := f.db.WithContext(ctx).Model(&targetRecord{}).Where("trigger_name = ?", name).Count(&attached).Error; err != nil {
		return err
	}
	if attached > 0 {
		return fmt.Errorf("%w: %s", ErrTargetsAttached, name)
	}

	res := f.db.WithContext(ctx).Where("name = ?", name).Delete(&triggerRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrTriggerNotFound, name)
	}
	return nil
}

func (f *AsynqFacility) PutOneShot(ctx context.Context, t OneShot) error {
	_, err := f.enqueuer.Enqueue(ctx,
		asynq.NewTask(t.Target.TaskType, t.Target.Payload),
		asynq.TaskID(t.Name),
		asynq.Queue(t.Target.Queue),
		asynq.ProcessAt(t.FireAt),
		asynq.MaxRetry(0),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("%w: %s", ErrTriggerExists, t.Name)
	}
	return err
}

// GetConfigs implements asynq.PeriodicTaskConfigProvider. Triggers whose
// expression has no recurring form are skipped and logged.
func (f *AsynqFacility) GetConfigs() ([]*asynq.PeriodicTaskConfig, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var triggers []triggerRecord
	if err := f.db.WithContext(ctx).Where("enabled = ?", true).Order("name ASC").Find(&triggers).Error; err != nil {
		return nil, err
	}
	if len(triggers) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(triggers))
	for _, t := range triggers {
		names = append(names, t.Name)
	}
	var targets []targetRecord
	if err := f.db.WithContext(ctx).Where("trigger_name IN ?", names).Find(&targets).Error; err != nil {
		return nil, err
	}
	byTrigger := make(map[string]targetRecord, len(targets))
	for _, t := range targets {
		byTrigger[t.TriggerName] = t
	}

	configs := make([]*asynq.PeriodicTaskConfig, 0, len(triggers))
	for _, t := range triggers {
		target, ok := byTrigger[t.Name]
		if !ok {
			continue
		}
		spec, err := cronexpr.FromExternalTriggerExpression(t.Expression)
		if err != nil {
			zap.L().Warn("[Trigger] skipping trigger with unsupported expression",
				zap.String("trigger_name", t.Name),
				zap.String("expression", t.Expression),
				zap.Error(err),
			)
			continue
		}
		configs = append(configs, &asynq.PeriodicTaskConfig{
			Cronspec: spec,
			Task:     asynq.NewTask(target.TaskType, target.Payload),
			Opts:     []asynq.Option{asynq.Queue(target.Queue), asynq.MaxRetry(0)},
		})
	}
	return configs, nil
}
