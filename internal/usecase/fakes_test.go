package usecase_test

import (
	"context"
	"fmt"
	"time"

	"github.com/tickhook/tickhook/internal/domain"
	"github.com/tickhook/tickhook/internal/repository"
)

// Minimal fakes for exercising validation and lifecycle wiring. No
// concurrency: usecases are driven synchronously in these tests.

type stubTargetRepo struct {
	targets map[string]*domain.Target
	deleted []string
	seq     int
}

func newStubTargetRepo() *stubTargetRepo {
	return &stubTargetRepo{targets: make(map[string]*domain.Target)}
}

func (f *stubTargetRepo) Create(_ context.Context, t *domain.Target) (*domain.Target, error) {
	f.seq++
	t.ID = fmt.Sprintf("tgt-%d", f.seq)
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	f.targets[t.ID] = t
	return t, nil
}

func (f *stubTargetRepo) GetByID(_ context.Context, id string) (*domain.Target, error) {
	t, ok := f.targets[id]
	if !ok {
		return nil, domain.ErrTargetNotFound
	}
	return t, nil
}

func (f *stubTargetRepo) List(_ context.Context, _ repository.ListTargetsInput) ([]*domain.Target, error) {
	return nil, nil
}

func (f *stubTargetRepo) Update(_ context.Context, t *domain.Target) (*domain.Target, error) {
	f.targets[t.ID] = t
	return t, nil
}

func (f *stubTargetRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.targets[id]; !ok {
		return domain.ErrTargetNotFound
	}
	delete(f.targets, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type stubScheduleRepo struct {
	schedules map[string]*domain.Schedule
	seq       int
}

func newStubScheduleRepo() *stubScheduleRepo {
	return &stubScheduleRepo{schedules: make(map[string]*domain.Schedule)}
}

func (f *stubScheduleRepo) Create(_ context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	f.seq++
	s.ID = fmt.Sprintf("sch-%d", f.seq)
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	f.schedules[s.ID] = s
	return s, nil
}

func (f *stubScheduleRepo) GetByID(_ context.Context, id string) (*domain.Schedule, error) {
	s, ok := f.schedules[id]
	if !ok {
		return nil, domain.ErrScheduleNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *stubScheduleRepo) List(_ context.Context, _ repository.ListSchedulesInput) ([]*domain.Schedule, error) {
	return nil, nil
}

func (f *stubScheduleRepo) Update(_ context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	if existing, ok := f.schedules[s.ID]; ok && existing.Status == domain.ScheduleCompletedStatus {
		return nil, domain.ErrScheduleCompleted
	}
	f.schedules[s.ID] = s
	return s, nil
}

func (f *stubScheduleRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.schedules[id]; !ok {
		return domain.ErrScheduleNotFound
	}
	delete(f.schedules, id)
	return nil
}

func (f *stubScheduleRepo) SetStatus(_ context.Context, id string, status domain.ScheduleStatus) error {
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

func (f *stubScheduleRepo) RecordFire(_ context.Context, _ string, _ time.Time, _ *time.Time) error {
	return nil
}

func (f *stubScheduleRepo) UpdateNextRun(_ context.Context, _ string, _ *time.Time) error {
	return nil
}

func (f *stubScheduleRepo) ListActive(_ context.Context) ([]*domain.Schedule, error) {
	return nil, nil
}

func (f *stubScheduleRepo) ListByTargetID(_ context.Context, _ string) ([]*domain.Schedule, error) {
	return nil, nil
}

type stubRunRepo struct{}

func (stubRunRepo) Create(_ context.Context, r *domain.Run) (*domain.Run, error) { return r, nil }
func (stubRunRepo) GetByID(_ context.Context, _ string) (*domain.Run, error) {
	return nil, domain.ErrRunNotFound
}
func (stubRunRepo) List(_ context.Context, _ repository.ListRunsInput) ([]*domain.Run, error) {
	return nil, nil
}
func (stubRunRepo) MarkRunning(_ context.Context, _ string, _ time.Time) error { return nil }
func (stubRunRepo) Finish(_ context.Context, _ string, _ domain.RunStatus, _ *string, _ int, _ time.Time) error {
	return nil
}
func (stubRunRepo) CountInFlight(_ context.Context, _ string) (int, error) { return 0, nil }
func (stubRunRepo) FailInFlight(_ context.Context, _ string, _ time.Time) (int, error) {
	return 0, nil
}

// recordingNotifier captures lifecycle events in order.
type recordingNotifier struct {
	events []string
	// onDelete, when set, runs as a schedule or target delete is delivered.
	onDelete func(id string)
}

func (n *recordingNotifier) OnScheduleCreated(s *domain.Schedule) {
	n.events = append(n.events, "created:"+s.ID)
}
func (n *recordingNotifier) OnScheduleUpdated(s *domain.Schedule) {
	n.events = append(n.events, "updated:"+s.ID)
}
func (n *recordingNotifier) OnSchedulePaused(id string) {
	n.events = append(n.events, "paused:"+id)
}
func (n *recordingNotifier) OnScheduleResumed(id string) {
	n.events = append(n.events, "resumed:"+id)
}
func (n *recordingNotifier) OnScheduleDeleted(id string) {
	if n.onDelete != nil {
		n.onDelete(id)
	}
	n.events = append(n.events, "deleted:"+id)
}
func (n *recordingNotifier) OnTargetDeleted(_ context.Context, id string) {
	if n.onDelete != nil {
		n.onDelete(id)
	}
	n.events = append(n.events, "target_deleted:"+id)
}
