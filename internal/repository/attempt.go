package repository

import (
	"context"

	"github.com/tickhook/tickhook/internal/domain"
)

type AttemptRepository interface {
	// Create appends a finished attempt record. Attempts are append-only;
	// there is no update path.
	Create(ctx context.Context, a *domain.Attempt) (*domain.Attempt, error)

	// ListByRunID returns all attempts for a run, ordered by attempt_number ASC.
	ListByRunID(ctx context.Context, runID string) ([]*domain.Attempt, error)
}
