package trigger

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -destination=mock/mock_facility.go -package=mock promptcron/services/trigger Facility

var (
	ErrTriggerNotFound = errors.New("trigger not found")
	ErrTargetsAttached = errors.New("trigger still has targets")
	ErrTriggerExists   = errors.New("trigger already exists")
)

// Target is the invocation a trigger delivers when it fires.
type Target struct {
	TaskType string
	Queue    string
	Payload  []byte
}

type Recurring struct {
	Name        string
	Expression  string
	Enabled     bool
	Description string
	Target      Target
}

type OneShot struct {
	Name   string
	FireAt time.Time
	Target Target
}

// Facility is the external scheduling service that owns named triggers.
type Facility interface {
	// PutRecurring creates or replaces a recurring trigger with exactly one target.
	PutRecurring(ctx context.Context, trigger Recurring) error
	DeleteTargets(ctx context.Context, name string) error
	// DeleteTrigger fails with ErrTargetsAttached while targets remain.
	DeleteTrigger(ctx context.Context, name string) error
	PutOneShot(ctx context.Context, trigger OneShot) error
}
