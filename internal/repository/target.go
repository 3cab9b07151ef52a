package repository

import (
	"context"
	"time"

	"github.com/tickhook/tickhook/internal/domain"
)

type ListTargetsInput struct {
	CursorTime *time.Time // cursor on (created_at DESC, id DESC); nil = first page
	CursorID   string
	Limit      int
}

// Usecases depend on interfaces, not the concrete postgres implementation,
// so tests can substitute in-memory fakes.
type TargetRepository interface {
	Create(ctx context.Context, t *domain.Target) (*domain.Target, error)
	GetByID(ctx context.Context, id string) (*domain.Target, error)
	List(ctx context.Context, input ListTargetsInput) ([]*domain.Target, error)
	Update(ctx context.Context, t *domain.Target) (*domain.Target, error)

	// Delete removes the target; the schedules referencing it and their
	// runs/attempts go with it via FK cascade. Callers must disarm the
	// affected schedules before invoking this.
	Delete(ctx context.Context, id string) error
}
