package repository

import (
	"context"
	"time"

	"github.com/tickhook/tickhook/internal/domain"
)

type ListSchedulesInput struct {
	Status     domain.ScheduleStatus // empty = all statuses
	CursorTime *time.Time
	CursorID   string
	Limit      int
}

type ScheduleRepository interface {
	Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error)
	GetByID(ctx context.Context, id string) (*domain.Schedule, error)
	List(ctx context.Context, input ListSchedulesInput) ([]*domain.Schedule, error)
	Update(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error)
	Delete(ctx context.Context, id string) error

	// SetStatus transitions the schedule's lifecycle state. completed is
	// terminal: rows already in completed are never moved out of it.
	SetStatus(ctx context.Context, id string, status domain.ScheduleStatus) error

	// RecordFire bumps runs_count and stamps last_run_at/next_run_at after a
	// Run row was created for a firing. nextRunAt is nil when no further
	// firing is expected.
	RecordFire(ctx context.Context, id string, lastRunAt time.Time, nextRunAt *time.Time) error

	// UpdateNextRun refreshes the advisory next_run_at without firing.
	UpdateNextRun(ctx context.Context, id string, nextRunAt *time.Time) error

	// ListActive returns every schedule in status=active; used by startup
	// recovery to rearm timers.
	ListActive(ctx context.Context) ([]*domain.Schedule, error)

	// ListByTargetID returns all schedules referencing the target, any
	// status; used to disarm timers ahead of a target cascade delete.
	ListByTargetID(ctx context.Context, targetID string) ([]*domain.Schedule, error)
}
