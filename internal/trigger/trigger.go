// Package trigger computes firing instants from schedule rules. It is pure:
// no timers, no state — (schedule, reference instant) in, next instant out.
package trigger

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tickhook/tickhook/internal/domain"
)

// Strict five-field form: minute hour day-of-month month day-of-week.
// Descriptors like @hourly are not accepted.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron validates a five-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	s, err := cronParser.Parse(expr)
	if err != nil {
		return nil, domain.ErrInvalidCronExpr
	}
	return s, nil
}

// Next returns the next firing instant strictly after the reference instant,
// or ok=false when the schedule's window has closed and it must not fire
// again. All math is done at one-second granularity in the instant's zone.
func Next(s *domain.Schedule, after time.Time) (time.Time, bool) {
	if s.MaxRuns != nil && s.RunsCount >= *s.MaxRuns {
		return time.Time{}, false
	}

	// All evaluation happens in the reference instant's zone — the caller
	// passes clock time in the configured zone, so cron fields resolve
	// against the right wall clock no matter what zone the row was scanned in.
	after = after.Truncate(time.Second)
	start := s.StartAt.In(after.Location()).Truncate(time.Second)

	var fireAt time.Time
	switch s.Type {
	case domain.ScheduleInterval:
		if s.IntervalSeconds == nil || *s.IntervalSeconds <= 0 {
			return time.Time{}, false
		}
		interval := time.Duration(*s.IntervalSeconds) * time.Second
		if after.Before(start) {
			fireAt = start
		} else {
			// Smallest start + k*interval strictly greater than after.
			k := int64(after.Sub(start)/interval) + 1
			fireAt = start.Add(time.Duration(k) * interval)
		}

	case domain.ScheduleCron:
		if s.CronExpression == nil {
			return time.Time{}, false
		}
		sched, err := ParseCron(*s.CronExpression)
		if err != nil {
			// Expression was validated on create; treat as unfireable.
			return time.Time{}, false
		}
		ref := after
		if start.After(ref) {
			ref = start
		}
		fireAt = sched.Next(ref)
		if fireAt.IsZero() {
			return time.Time{}, false
		}

	default:
		return time.Time{}, false
	}

	if end := s.WindowEnd(); !end.IsZero() && !fireAt.Before(end.Truncate(time.Second)) {
		return time.Time{}, false
	}
	return fireAt, true
}
