// Package scheduler owns the in-memory timer map. One armed single-shot
// timer exists per active schedule; firings create Run rows guarded by the
// idempotency key and hand them to the executor. Lifecycle events from the
// API (create/update/pause/resume/delete) arrive as mutex-guarded method
// calls. The store stays the single source of truth — timers are rebuilt
// from it on startup.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tickhook/tickhook/internal/clock"
	"github.com/tickhook/tickhook/internal/domain"
	"github.com/tickhook/tickhook/internal/metrics"
	"github.com/tickhook/tickhook/internal/repository"
	"github.com/tickhook/tickhook/internal/trigger"
)

// Dispatcher consumes fired runs; satisfied by *executor.Executor.
type Dispatcher interface {
	Dispatch(ctx context.Context, run *domain.Run, target *domain.Target)
}

type armedTimer struct {
	timer  *time.Timer
	fireAt time.Time
	gen    uint64
}

type Scheduler struct {
	schedules repository.ScheduleRepository
	runs      repository.RunRepository
	targets   repository.TargetRepository
	exec      Dispatcher
	clk       clock.Clock
	logger    *slog.Logger
	grace     time.Duration

	mu     sync.Mutex
	armed  map[string]*armedTimer
	epoch  map[string]uint64 // bumped on every disarm; guards stale rearms
	genSeq uint64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(
	schedules repository.ScheduleRepository,
	runs repository.RunRepository,
	targets repository.TargetRepository,
	exec Dispatcher,
	clk clock.Clock,
	logger *slog.Logger,
	grace time.Duration,
) *Scheduler {
	return &Scheduler{
		schedules: schedules,
		runs:      runs,
		targets:   targets,
		exec:      exec,
		clk:       clk,
		logger:    logger.With("component", "scheduler"),
		grace:     grace,
		armed:     make(map[string]*armedTimer),
		epoch:     make(map[string]uint64),
		done:      make(chan struct{}),
	}
}

// Start binds the scheduler to ctx. Firings stop when ctx is cancelled or
// when a persistent store failure halts the scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
}

// Done is closed when the scheduler has halted on a fatal store failure.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Stop disarms every timer. In-flight runs keep executing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.armed {
		t.timer.Stop()
		delete(s.armed, id)
		s.epoch[id]++
	}
	metrics.TimersArmed.Set(0)
	if s.cancel != nil {
		s.cancel()
	}
}

// OnScheduleCreated arms the schedule if it is active and its window is open.
func (s *Scheduler) OnScheduleCreated(sched *domain.Schedule) {
	if sched.Status != domain.ScheduleActive {
		return
	}
	s.armFromTrigger(sched)
}

// OnScheduleUpdated disarms and rearms under the new rule. An in-flight run
// finishes under the old settings.
func (s *Scheduler) OnScheduleUpdated(sched *domain.Schedule) {
	s.disarm(sched.ID)
	if sched.Status == domain.ScheduleActive {
		s.armFromTrigger(sched)
	}
}

// OnSchedulePaused disarms future firings; it does not cancel in-flight work.
func (s *Scheduler) OnSchedulePaused(id string) {
	s.disarm(id)
}

// OnScheduleResumed rearms from persisted state.
func (s *Scheduler) OnScheduleResumed(id string) {
	sched, err := s.loadSchedule(id)
	if err != nil {
		s.logger.Error("resume: load schedule", "schedule_id", id, "error", err)
		return
	}
	if sched.Status != domain.ScheduleActive {
		return
	}
	s.armFromTrigger(sched)
}

// OnScheduleDeleted drops the timer and any pending reference synchronously.
func (s *Scheduler) OnScheduleDeleted(id string) {
	s.disarm(id)
}

// OnTargetDeleted disarms every schedule referencing the target. Called
// before the cascading delete commits, so no firing can race the row away.
func (s *Scheduler) OnTargetDeleted(ctx context.Context, targetID string) {
	scheds, err := s.schedules.ListByTargetID(ctx, targetID)
	if err != nil {
		s.logger.Error("target delete: list schedules", "target_id", targetID, "error", err)
		return
	}
	for _, sched := range scheds {
		s.disarm(sched.ID)
	}
}

// ArmedCount reports how many timers are currently installed.
func (s *Scheduler) ArmedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.armed)
}

// armFromTrigger computes the next firing and installs a timer, or marks
// the schedule completed when its window has closed.
//
// A schedule that has never fired is still owed its start instant: the
// reference is nudged just before start_at so the trigger returns it. When
// start_at is already long past, the immediate firing falls to the misfire
// gate, which drops it and rearms on the original phase.
func (s *Scheduler) armFromTrigger(sched *domain.Schedule) {
	ref := s.clk.Now()
	if sched.RunsCount == 0 && sched.LastRunAt == nil && !ref.Before(sched.StartAt) {
		ref = sched.StartAt.Add(-time.Nanosecond)
	}
	fireAt, ok := trigger.Next(sched, ref)
	if !ok {
		s.complete(sched.ID)
		return
	}
	s.armAt(sched.ID, fireAt)
	if err := s.schedules.UpdateNextRun(s.baseCtx(), sched.ID, &fireAt); err != nil {
		s.logger.Error("update next_run_at", "schedule_id", sched.ID, "error", err)
	}
}

// armAt installs a single-shot timer firing at the given instant. A timer
// already armed for the schedule is replaced.
func (s *Scheduler) armAt(id string, fireAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.armed[id]; ok {
		old.timer.Stop()
	}
	s.genSeq++
	gen := s.genSeq

	delay := fireAt.Sub(s.clk.Now())
	if delay < 0 {
		delay = 0
	}
	s.armed[id] = &armedTimer{
		fireAt: fireAt,
		gen:    gen,
		timer: time.AfterFunc(delay, func() {
			s.fire(id, fireAt, gen)
		}),
	}
	metrics.TimersArmed.Set(float64(len(s.armed)))
	s.logger.Debug("armed", "schedule_id", id, "fire_at", fireAt)
}

func (s *Scheduler) disarm(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.armed[id]; ok {
		t.timer.Stop()
		delete(s.armed, id)
	}
	s.epoch[id]++
	metrics.TimersArmed.Set(float64(len(s.armed)))
}

// fire runs at timer expiry. Order matters: window gate, idempotent Run
// creation, single-inflight gate, rearm, then dispatch.
func (s *Scheduler) fire(id string, fireAt time.Time, gen uint64) {
	s.mu.Lock()
	t, ok := s.armed[id]
	if !ok || t.gen != gen {
		// Disarmed or rearmed while this callback was pending.
		s.mu.Unlock()
		return
	}
	delete(s.armed, id)
	metrics.TimersArmed.Set(float64(len(s.armed)))
	epoch := s.epoch[id]
	s.mu.Unlock()

	ctx := s.baseCtx()
	if ctx.Err() != nil {
		return
	}

	sched, err := s.loadSchedule(id)
	if err != nil {
		if !errors.Is(err, domain.ErrScheduleNotFound) {
			s.fatal("load schedule", err)
		}
		return
	}
	if sched.Status != domain.ScheduleActive {
		return
	}

	now := s.clk.Now()

	// Misfire: the process slept past the intended instant. Within grace the
	// firing (coalesced — there is only ever one timer) proceeds; past grace
	// it is dropped and the schedule rearms from now.
	if now.Sub(fireAt) > s.grace {
		s.logger.Warn("misfire past grace, dropping",
			"schedule_id", id, "intended", fireAt, "late_by", now.Sub(fireAt))
		metrics.FiringsTotal.WithLabelValues("misfire_drop").Inc()
		s.rearm(sched, epoch, now)
		return
	}

	// Window gate: recompute validity at fire time.
	if sched.WindowClosed(now) {
		metrics.FiringsTotal.WithLabelValues("window_closed").Inc()
		s.complete(id)
		return
	}

	// Idempotent Run creation. A key collision means the firing was already
	// handled — skip straight to rearm, nothing to enqueue.
	scheduledAt := fireAt.Truncate(time.Second)
	run, err := s.createRun(ctx, sched, scheduledAt)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateRun) {
			s.logger.Warn("duplicate firing absorbed",
				"schedule_id", id, "idempotency_key", domain.IdempotencyKey(id, scheduledAt))
			metrics.FiringsTotal.WithLabelValues("duplicate").Inc()
			s.rearm(sched, epoch, now)
			return
		}
		s.fatal("create run", err)
		return
	}

	// Single-inflight gate: at most one pending/running run per schedule.
	// The just-created row counts itself; anything beyond it means a prior
	// run is still working, so this one resolves immediately as skipped.
	inflight, err := s.runs.CountInFlight(ctx, id)
	if err != nil {
		s.fatal("count in-flight", err)
		return
	}
	dispatch := inflight <= 1
	if !dispatch {
		msg := "skipped: schedule already has a run in flight"
		if err := s.runs.Finish(ctx, run.ID, domain.RunFailed, &msg, 0, now); err != nil {
			s.logger.Error("finish skipped run", "run_id", run.ID, "error", err)
		}
		metrics.FiringsTotal.WithLabelValues("inflight_skip").Inc()
	} else {
		metrics.FiringsTotal.WithLabelValues("fired").Inc()
	}

	// Advance the tally and rearm before dispatching; the executor owns the
	// run from here.
	sched.RunsCount++
	next, hasNext := trigger.Next(sched, now)
	var nextPtr *time.Time
	if hasNext {
		nextPtr = &next
	}
	if err := s.schedules.RecordFire(ctx, id, now, nextPtr); err != nil {
		s.logger.Error("record fire", "schedule_id", id, "error", err)
	}
	if !hasNext {
		s.complete(id)
	} else {
		s.armIfCurrent(id, next, epoch)
	}

	if !dispatch {
		return
	}

	target, err := s.targets.GetByID(ctx, sched.TargetID)
	if err != nil {
		msg := "target no longer exists"
		if !errors.Is(err, domain.ErrTargetNotFound) {
			msg = "load target: " + err.Error()
		}
		if err := s.runs.Finish(ctx, run.ID, domain.RunFailed, &msg, 0, s.clk.Now()); err != nil {
			s.logger.Error("finish run without target", "run_id", run.ID, "error", err)
		}
		return
	}

	s.logger.Info("firing", "schedule_id", id, "run_id", run.ID, "scheduled_at", scheduledAt)
	// Detached from the scheduler's cancellation: Stop halts firings, but a
	// dispatched run still executes to its terminal state.
	s.exec.Dispatch(context.WithoutCancel(ctx), run, target)
}

// createRun inserts the Run row with a short bounded retry for transient
// store failures. A duplicate key is definitive and passed straight through.
func (s *Scheduler) createRun(ctx context.Context, sched *domain.Schedule, scheduledAt time.Time) (*domain.Run, error) {
	var run *domain.Run
	err := withRetry(ctx, 3, 250*time.Millisecond, func() error {
		var err error
		run, err = s.runs.Create(ctx, &domain.Run{
			ScheduleID:     sched.ID,
			TargetID:       sched.TargetID,
			ScheduledAt:    scheduledAt,
			Status:         domain.RunPending,
			IdempotencyKey: domain.IdempotencyKey(sched.ID, scheduledAt),
		})
		if errors.Is(err, domain.ErrDuplicateRun) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, domain.ErrDuplicateRun
	}
	return run, nil
}

// rearm computes the next firing from now and installs a timer unless the
// schedule was disarmed (paused/updated/deleted) while this firing ran.
func (s *Scheduler) rearm(sched *domain.Schedule, epoch uint64, now time.Time) {
	next, ok := trigger.Next(sched, now)
	if !ok {
		s.complete(sched.ID)
		return
	}
	s.armIfCurrent(sched.ID, next, epoch)
	if err := s.schedules.UpdateNextRun(s.baseCtx(), sched.ID, &next); err != nil {
		s.logger.Error("update next_run_at", "schedule_id", sched.ID, "error", err)
	}
}

func (s *Scheduler) armIfCurrent(id string, fireAt time.Time, epoch uint64) {
	s.mu.Lock()
	current := s.epoch[id] == epoch
	s.mu.Unlock()
	if !current {
		return
	}
	s.armAt(id, fireAt)
}

// complete marks the schedule's terminal state and drops its timer.
func (s *Scheduler) complete(id string) {
	s.disarm(id)
	ctx := s.baseCtx()
	if err := s.schedules.SetStatus(ctx, id, domain.ScheduleCompletedStatus); err != nil &&
		!errors.Is(err, domain.ErrScheduleCompleted) && !errors.Is(err, domain.ErrScheduleNotFound) {
		s.logger.Error("mark schedule completed", "schedule_id", id, "error", err)
		return
	}
	if err := s.schedules.UpdateNextRun(ctx, id, nil); err != nil {
		s.logger.Error("clear next_run_at", "schedule_id", id, "error", err)
	}
	s.logger.Info("schedule completed", "schedule_id", id)
}

// loadSchedule reads fresh state with a short bounded retry for transient
// store hiccups.
func (s *Scheduler) loadSchedule(id string) (*domain.Schedule, error) {
	ctx := s.baseCtx()
	var sched *domain.Schedule
	err := withRetry(ctx, 3, 250*time.Millisecond, func() error {
		var err error
		sched, err = s.schedules.GetByID(ctx, id)
		if errors.Is(err, domain.ErrScheduleNotFound) {
			return nil // definitive, not transient
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, domain.ErrScheduleNotFound
	}
	return sched, nil
}

// fatal halts the scheduler: the store rejected writes past the bounded
// retry, so firing on would only lose runs silently.
func (s *Scheduler) fatal(op string, err error) {
	s.logger.Error("store failure, halting scheduler", "op", op, "error", err)
	if s.cancel != nil {
		s.cancel()
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *Scheduler) baseCtx() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

// withRetry runs fn up to tries times with linear backoff between failures.
func withRetry(ctx context.Context, tries int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < tries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == tries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay * time.Duration(i+1)):
		}
	}
	return err
}
