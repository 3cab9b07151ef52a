package domain

import (
	"errors"
	"time"
)

var (
	ErrScheduleNotFound      = errors.New("schedule not found")
	ErrInvalidCronExpr       = errors.New("invalid cron expression")
	ErrInvalidInterval       = errors.New("interval_seconds must be a positive integer")
	ErrScheduleFieldMismatch = errors.New("exactly one of interval_seconds, cron_expression must match the schedule type")
	ErrConflictingWindow     = errors.New("at most one of duration_seconds, max_runs may be set")
	ErrScheduleAlreadyPaused = errors.New("schedule is already paused")
	ErrScheduleNotPaused     = errors.New("schedule is not paused")
	ErrScheduleCompleted     = errors.New("schedule is completed")
)

type ScheduleType string

const (
	ScheduleInterval ScheduleType = "interval"
	ScheduleCron     ScheduleType = "cron"
)

type ScheduleStatus string

const (
	ScheduleActive ScheduleStatus = "active"
	SchedulePaused ScheduleStatus = "paused"
	// ScheduleCompletedStatus is terminal: the window closed or max_runs was hit.
	ScheduleCompletedStatus ScheduleStatus = "completed"
)

// Schedule is a timing rule producing a sequence of firing instants against
// a Target. Exactly one of IntervalSeconds / CronExpression is set, matching
// Type. DurationSeconds and MaxRuns are mutually exclusive window bounds;
// both absent means the schedule runs indefinitely.
type Schedule struct {
	ID       string
	Name     string
	TargetID string

	Type            ScheduleType
	IntervalSeconds *int
	CronExpression  *string

	StartAt         time.Time
	DurationSeconds *int
	MaxRuns         *int

	Status    ScheduleStatus
	RunsCount int

	// NextRunAt is advisory; the authoritative firing time is recomputed
	// from the rule by the trigger.
	NextRunAt *time.Time
	LastRunAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// WindowEnd returns the end of the duration window, or zero time when the
// schedule has no duration bound.
func (s *Schedule) WindowEnd() time.Time {
	if s.DurationSeconds == nil {
		return time.Time{}
	}
	return s.StartAt.Add(time.Duration(*s.DurationSeconds) * time.Second)
}

// WindowClosed reports whether the schedule may not fire at instant t:
// either the duration window elapsed or the run budget is spent.
func (s *Schedule) WindowClosed(t time.Time) bool {
	if end := s.WindowEnd(); !end.IsZero() && !t.Before(end) {
		return true
	}
	if s.MaxRuns != nil && s.RunsCount >= *s.MaxRuns {
		return true
	}
	return false
}
