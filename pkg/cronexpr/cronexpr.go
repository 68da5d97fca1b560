// Package cronexpr parses five-field cron schedules, computes their next
// activation and translates them to and from the dialect understood by the
// external trigger facility.
package cronexpr

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned for schedules that are not five valid cron fields.
var ErrInvalidSchedule = errors.New("invalid schedule")

// starBit marks a field that was given as "*" or "?". Mirrors the flag used
// internally by robfig/cron.
const starBit = 1 << 63

// searchDays bounds the day-by-day scan used when both day fields are restricted.
const searchDays = 366 * 8

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Schedule is a parsed five-field cron expression.
type Schedule struct {
	Expr   string
	Fields [5]string

	spec *cron.SpecSchedule
}

// Parse validates schedule and evaluates it in UTC.
func Parse(schedule string) (*Schedule, error) {
	return ParseInLocation(schedule, time.UTC)
}

// ParseInLocation validates schedule and evaluates it in loc.
func ParseInLocation(schedule string, loc *time.Location) (*Schedule, error) {
	fields := strings.Fields(schedule)
	if len(fields) != 5 {
		return nil, fmt.Errorf("%w: expected 5 fields, found %d in %q", ErrInvalidSchedule, len(fields), schedule)
	}

	expr := strings.Join(fields, " ")
	parsed, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}

	spec, ok := parsed.(*cron.SpecSchedule)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported expression %q", ErrInvalidSchedule, schedule)
	}
	if loc == nil {
		loc = time.UTC
	}
	spec.Location = loc

	s := &Schedule{Expr: expr, spec: spec}
	copy(s.Fields[:], fields)
	return s, nil
}

// Next returns the earliest minute boundary strictly after from that satisfies
// every field. When both day-of-month and day-of-week are restricted, a day
// must match both of them.
func (s *Schedule) Next(from time.Time) (time.Time, error) {
	next := s.spec.Next(from)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %q never fires", ErrInvalidSchedule, s.Expr)
	}
	if !s.bothDaysRestricted() {
		return next, nil
	}

	for i := 0; i < searchDays; i++ {
		if s.dayMatches(next) {
			return next, nil
		}
		// jump to the last second of the candidate day so the next probe starts at midnight
		y, m, d := next.Date()
		endOfDay := time.Date(y, m, d, 23, 59, 59, 0, next.Location())
		next = s.spec.Next(endOfDay)
		if next.IsZero() {
			break
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q never fires", ErrInvalidSchedule, s.Expr)
}

func (s *Schedule) bothDaysRestricted() bool {
	return s.spec.Dom&starBit == 0 && s.spec.Dow&starBit == 0
}

func (s *Schedule) dayMatches(t time.Time) bool {
	dom := s.spec.Dom&(1<<uint(t.Day())) > 0
	dow := s.spec.Dow&(1<<uint(t.Weekday())) > 0
	return dom && dow
}

// NextRun parses schedule and returns its next activation after from, in UTC.
func NextRun(schedule string, from time.Time) (time.Time, error) {
	s, err := Parse(schedule)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(from)
}

// Validate reports whether schedule is a usable five-field expression.
func Validate(schedule string) error {
	s, err := Parse(schedule)
	if err != nil {
		return err
	}
	_, err = s.Next(time.Now())
	return err
}
