package scheduler

import (
	"context"
	"fmt"
	"time"
)

// OrphanedRunError is the final_error stamped on runs a previous process
// left mid-flight.
const OrphanedRunError = "orphaned by server restart"

// Recover reconciles durable state with the (empty) timer map. It runs
// before the API begins serving and before any timer is armed:
//
//  1. every pending/running run is conservatively failed — the previous
//     process may or may not have issued the HTTP call;
//  2. every active schedule is rearmed; schedules whose window closed while
//     the process was down transition to completed during rearm.
//
// A firing whose persisted next_run_at was missed by no more than the grace
// period fires immediately; older misses are not fired: the trigger computes
// the next instant after now, and a never-fired schedule's long-past start
// instant is dropped by the misfire gate.
//
// Recover is idempotent: a second pass finds no in-flight runs and rearms
// the same timers.
func (s *Scheduler) Recover(ctx context.Context) error {
	now := s.clk.Now()

	var failed int
	err := withRetry(ctx, 3, 250*time.Millisecond, func() error {
		var err error
		failed, err = s.runs.FailInFlight(ctx, OrphanedRunError, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("fail orphaned runs: %w", err)
	}
	if failed > 0 {
		s.logger.Warn("failed orphaned runs", "count", failed)
	}

	scheds, err := s.schedules.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active schedules: %w", err)
	}

	var rearmed, missed int
	for _, sched := range scheds {
		if next := sched.NextRunAt; next != nil && next.Before(now) && now.Sub(*next) <= s.grace {
			// Missed within grace: fire once, immediately, at the intended
			// instant. Several missed instants coalesce into this one fire.
			s.armAt(sched.ID, *next)
			missed++
			continue
		}
		s.armFromTrigger(sched)
		rearmed++
	}

	s.logger.Info("recovery complete",
		"orphaned_runs", failed, "rearmed", rearmed, "missed_within_grace", missed)
	return nil
}
