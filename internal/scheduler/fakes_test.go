package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tickhook/tickhook/internal/domain"
	"github.com/tickhook/tickhook/internal/repository"
)

// In-memory fakes tailored to what the scheduler exercises. They enforce the
// same constraints the store does: idempotency-key uniqueness, terminal-state
// immutability, completed-is-terminal.

type fakeScheduleRepo struct {
	mu        sync.Mutex
	seq       int
	schedules map[string]*domain.Schedule
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{schedules: make(map[string]*domain.Schedule)}
}

func (f *fakeScheduleRepo) add(s *domain.Schedule) *domain.Schedule {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == "" {
		f.seq++
		s.ID = fmt.Sprintf("sch-%d", f.seq)
	}
	f.schedules[s.ID] = s
	return s
}

func (f *fakeScheduleRepo) Create(_ context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	return f.add(s), nil
}

func (f *fakeScheduleRepo) GetByID(_ context.Context, id string) (*domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok {
		return nil, domain.ErrScheduleNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeScheduleRepo) List(_ context.Context, _ repository.ListSchedulesInput) ([]*domain.Schedule, error) {
	return nil, nil
}

func (f *fakeScheduleRepo) Update(_ context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.schedules[s.ID] = &cp
	return s, nil
}

func (f *fakeScheduleRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.schedules[id]; !ok {
		return domain.ErrScheduleNotFound
	}
	delete(f.schedules, id)
	return nil
}

func (f *fakeScheduleRepo) SetStatus(_ context.Context, id string, status domain.ScheduleStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok {
		return domain.ErrScheduleNotFound
	}
	if s.Status == domain.ScheduleCompletedStatus {
		return domain.ErrScheduleCompleted
	}
	s.Status = status
	return nil
}

func (f *fakeScheduleRepo) RecordFire(_ context.Context, id string, lastRunAt time.Time, nextRunAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok {
		return domain.ErrScheduleNotFound
	}
	s.RunsCount++
	s.LastRunAt = &lastRunAt
	s.NextRunAt = nextRunAt
	return nil
}

func (f *fakeScheduleRepo) UpdateNextRun(_ context.Context, id string, nextRunAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.schedules[id]; ok {
		s.NextRunAt = nextRunAt
	}
	return nil
}

func (f *fakeScheduleRepo) ListActive(_ context.Context) ([]*domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Schedule
	for _, s := range f.schedules {
		if s.Status == domain.ScheduleActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeScheduleRepo) ListByTargetID(_ context.Context, targetID string) ([]*domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Schedule
	for _, s := range f.schedules {
		if s.TargetID == targetID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeScheduleRepo) status(id string) domain.ScheduleStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.schedules[id]; ok {
		return s.Status
	}
	return ""
}

func (f *fakeScheduleRepo) runsCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.schedules[id]; ok {
		return s.RunsCount
	}
	return 0
}

type fakeRunRepo struct {
	mu    sync.Mutex
	seq   int
	runs  map[string]*domain.Run
	byKey map[string]string
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[string]*domain.Run), byKey: make(map[string]string)}
}

func (f *fakeRunRepo) Create(_ context.Context, r *domain.Run) (*domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.byKey[r.IdempotencyKey]; dup {
		return nil, domain.ErrDuplicateRun
	}
	f.seq++
	cp := *r
	cp.ID = fmt.Sprintf("run-%d", f.seq)
	f.runs[cp.ID] = &cp
	f.byKey[cp.IdempotencyKey] = cp.ID
	out := cp
	return &out, nil
}

func (f *fakeRunRepo) GetByID(_ context.Context, id string) (*domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRunRepo) List(_ context.Context, _ repository.ListRunsInput) ([]*domain.Run, error) {
	return nil, nil
}

func (f *fakeRunRepo) MarkRunning(_ context.Context, id string, startedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.runs[id]; ok && r.Status == domain.RunPending {
		r.Status = domain.RunRunning
		r.StartedAt = &startedAt
	}
	return nil
}

func (f *fakeRunRepo) Finish(_ context.Context, id string, status domain.RunStatus, finalError *string, attempts int, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[id]
	if !ok || r.Status.Terminal() {
		return nil
	}
	r.Status = status
	r.FinalError = finalError
	r.AttemptCount = attempts
	r.CompletedAt = &completedAt
	return nil
}

func (f *fakeRunRepo) CountInFlight(_ context.Context, scheduleID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.runs {
		if r.ScheduleID == scheduleID && !r.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

func (f *fakeRunRepo) FailInFlight(_ context.Context, finalError string, completedAt time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.runs {
		if !r.Status.Terminal() {
			r.Status = domain.RunFailed
			r.FinalError = &finalError
			r.CompletedAt = &completedAt
			n++
		}
	}
	return n, nil
}

func (f *fakeRunRepo) all() []*domain.Run {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Run
	for _, r := range f.runs {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

type fakeTargetRepo struct {
	mu      sync.Mutex
	targets map[string]*domain.Target
}

func newFakeTargetRepo() *fakeTargetRepo {
	return &fakeTargetRepo{targets: make(map[string]*domain.Target)}
}

func (f *fakeTargetRepo) add(t *domain.Target) *domain.Target {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets[t.ID] = t
	return t
}

func (f *fakeTargetRepo) Create(_ context.Context, t *domain.Target) (*domain.Target, error) {
	return f.add(t), nil
}

func (f *fakeTargetRepo) GetByID(_ context.Context, id string) (*domain.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.targets[id]
	if !ok {
		return nil, domain.ErrTargetNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTargetRepo) List(_ context.Context, _ repository.ListTargetsInput) ([]*domain.Target, error) {
	return nil, nil
}

func (f *fakeTargetRepo) Update(_ context.Context, t *domain.Target) (*domain.Target, error) {
	return f.add(t), nil
}

func (f *fakeTargetRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.targets, id)
	return nil
}

// fakeDispatcher finishes every run it receives so single-inflight frees up.
type fakeDispatcher struct {
	mu       sync.Mutex
	runs     repository.RunRepository
	received []*domain.Run
	notify   chan struct{}
}

func newFakeDispatcher(runs repository.RunRepository) *fakeDispatcher {
	return &fakeDispatcher{runs: runs, notify: make(chan struct{}, 64)}
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, run *domain.Run, _ *domain.Target) {
	f.mu.Lock()
	f.received = append(f.received, run)
	f.mu.Unlock()
	_ = f.runs.Finish(ctx, run.ID, domain.RunSucceeded, nil, 1, run.ScheduledAt)
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}
