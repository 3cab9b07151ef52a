package repository

import (
	"context"
	"time"

	"github.com/tickhook/tickhook/internal/domain"
)

type ListRunsInput struct {
	ScheduleID string           // empty = all schedules
	Status     domain.RunStatus // empty = all statuses
	CursorTime *time.Time       // cursor on (scheduled_at DESC, id DESC)
	CursorID   string
	Limit      int
}

type RunRepository interface {
	// Create inserts the Run row. A Run exists for a firing iff this insert
	// succeeded; an idempotency-key collision returns domain.ErrDuplicateRun
	// and the firing is treated as already handled.
	Create(ctx context.Context, r *domain.Run) (*domain.Run, error)

	GetByID(ctx context.Context, id string) (*domain.Run, error)
	List(ctx context.Context, input ListRunsInput) ([]*domain.Run, error)

	// MarkRunning moves a pending run to running. No-op on any other state.
	MarkRunning(ctx context.Context, id string, startedAt time.Time) error

	// Finish writes the terminal state. Guarded so succeeded/failed rows are
	// immutable: only non-terminal rows are updated.
	Finish(ctx context.Context, id string, status domain.RunStatus, finalError *string, attemptCount int, completedAt time.Time) error

	// CountInFlight returns how many runs of the schedule are pending or
	// running; the scheduler enforces a ceiling of one.
	CountInFlight(ctx context.Context, scheduleID string) (int, error)

	// FailInFlight marks every pending/running run failed with the given
	// message; used once at startup to resolve crash-in-flight ambiguity.
	FailInFlight(ctx context.Context, finalError string, completedAt time.Time) (int, error)
}
