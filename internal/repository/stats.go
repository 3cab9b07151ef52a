package repository

import (
	"context"
	"time"

	"github.com/tickhook/tickhook/internal/domain"
)

type StatsRepository interface {
	// Global aggregates counts and rates as of now.
	Global(ctx context.Context, now time.Time) (*domain.Stats, error)
}
