package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/tickhook/tickhook/internal/domain"
)

func TestRecover_FailsOrphanedRuns(t *testing.T) {
	f := newFixture(t, time.Minute)

	seed := func(status domain.RunStatus, key string) {
		if _, err := f.runs.Create(context.Background(), &domain.Run{
			ScheduleID:     "sch-x",
			TargetID:       "tgt-1",
			ScheduledAt:    f.clk.T.Add(-time.Minute),
			Status:         status,
			IdempotencyKey: key,
		}); err != nil {
			t.Fatalf("seed run: %v", err)
		}
	}
	seed(domain.RunRunning, "k1")
	seed(domain.RunPending, "k2")
	seed(domain.RunSucceeded, "k3")

	if err := f.sched.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	var failed, succeeded int
	for _, r := range f.runs.all() {
		switch r.Status {
		case domain.RunFailed:
			failed++
			if r.FinalError == nil || *r.FinalError != OrphanedRunError {
				t.Errorf("final_error = %v, want %q", r.FinalError, OrphanedRunError)
			}
			if r.CompletedAt == nil {
				t.Error("orphaned run missing completed_at")
			}
		case domain.RunSucceeded:
			succeeded++
		default:
			t.Errorf("run left in %s after recovery", r.Status)
		}
	}
	if failed != 2 || succeeded != 1 {
		t.Errorf("failed=%d succeeded=%d, want 2/1 — terminal rows untouched", failed, succeeded)
	}
}

func TestRecover_RearmsActiveSchedules(t *testing.T) {
	f := newFixture(t, time.Minute)

	active := f.addIntervalSchedule(3600, f.clk.T.Add(time.Hour))
	paused := f.addIntervalSchedule(3600, f.clk.T.Add(time.Hour))
	f.schedules.add(&domain.Schedule{
		ID: paused.ID, Name: paused.Name, TargetID: paused.TargetID,
		Type: paused.Type, IntervalSeconds: paused.IntervalSeconds,
		StartAt: paused.StartAt, Status: domain.SchedulePaused,
	})

	if err := f.sched.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	if f.sched.ArmedCount() != 1 {
		t.Errorf("armed timers = %d, want 1 (only the active schedule)", f.sched.ArmedCount())
	}
	_ = active
}

func TestRecover_CompletesSchedulesWithClosedWindows(t *testing.T) {
	f := newFixture(t, time.Minute)

	s := f.addIntervalSchedule(10, f.clk.T.Add(-2*time.Hour))
	s.MaxRuns = intp(3)
	s.RunsCount = 3

	if err := f.sched.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	if got := f.schedules.status(s.ID); got != domain.ScheduleCompletedStatus {
		t.Errorf("status = %s, want completed", got)
	}
	if f.sched.ArmedCount() != 0 {
		t.Errorf("armed timers = %d, want 0", f.sched.ArmedCount())
	}
}

func TestRecover_MissedWithinGraceFiresImmediately(t *testing.T) {
	f := newFixture(t, time.Minute)

	s := f.addIntervalSchedule(3600, f.clk.T.Add(-2*time.Hour))
	s.RunsCount = 1
	missed := f.clk.T.Add(-30 * time.Second)
	s.NextRunAt = &missed
	last := f.clk.T.Add(-time.Hour)
	s.LastRunAt = &last

	if err := f.sched.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return f.disp.count() == 1 })

	runs := f.runs.all()
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if !runs[0].ScheduledAt.Equal(missed) {
		t.Errorf("scheduled_at = %v, want the missed instant %v", runs[0].ScheduledAt, missed)
	}
}

// Property 7: a running run plus an active schedule — after recovery the run
// is failed and a fresh timer is armed for the next future firing.
func TestRecover_CrashedRunPlusActiveSchedule(t *testing.T) {
	f := newFixture(t, time.Minute)

	s := f.addIntervalSchedule(3600, f.clk.T.Add(time.Hour))
	if _, err := f.runs.Create(context.Background(), &domain.Run{
		ScheduleID:     s.ID,
		TargetID:       s.TargetID,
		ScheduledAt:    f.clk.T.Add(-time.Minute),
		Status:         domain.RunRunning,
		IdempotencyKey: domain.IdempotencyKey(s.ID, f.clk.T.Add(-time.Minute)),
	}); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	if err := f.sched.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	runs := f.runs.all()
	if len(runs) != 1 || runs[0].Status != domain.RunFailed {
		t.Fatalf("run status = %v, want failed", runs[0].Status)
	}
	if f.sched.ArmedCount() != 1 {
		t.Errorf("armed timers = %d, want 1", f.sched.ArmedCount())
	}
}

// Running recovery twice changes nothing on the second pass.
func TestRecover_Idempotent(t *testing.T) {
	f := newFixture(t, time.Minute)

	s := f.addIntervalSchedule(3600, f.clk.T.Add(time.Hour))
	if _, err := f.runs.Create(context.Background(), &domain.Run{
		ScheduleID:     s.ID,
		TargetID:       s.TargetID,
		ScheduledAt:    f.clk.T.Add(-time.Minute),
		Status:         domain.RunPending,
		IdempotencyKey: domain.IdempotencyKey(s.ID, f.clk.T.Add(-time.Minute)),
	}); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := f.sched.Recover(context.Background()); err != nil {
			t.Fatalf("recover pass %d: %v", i+1, err)
		}
	}

	runs := f.runs.all()
	if len(runs) != 1 || runs[0].Status != domain.RunFailed {
		t.Fatalf("after two passes: %d runs, status %v; want 1 failed", len(runs), runs[0].Status)
	}
	if f.sched.ArmedCount() != 1 {
		t.Errorf("armed timers = %d, want 1", f.sched.ArmedCount())
	}
}
