package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tickhook/tickhook/internal/domain"
)

type StatsRepository struct {
	pool *pgxpool.Pool
}

func NewStatsRepository(pool *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{pool: pool}
}

func (r *StatsRepository) Global(ctx context.Context, now time.Time) (*domain.Stats, error) {
	dayAgo := now.Add(-24 * time.Hour)
	var s domain.Stats

	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM targets),
			(SELECT COUNT(*) FROM schedules WHERE status = 'active'),
			(SELECT COUNT(*) FROM schedules WHERE status = 'paused'),
			(SELECT COUNT(*) FROM schedules WHERE status = 'completed'),
			(SELECT COUNT(*) FROM runs),
			(SELECT COUNT(*) FROM runs WHERE scheduled_at >= $1),
			(SELECT COUNT(*) FROM runs WHERE scheduled_at >= $1 AND status = 'succeeded'),
			(SELECT COUNT(*) FROM runs WHERE scheduled_at >= $1 AND status = 'failed'),
			(SELECT COALESCE(AVG(duration_ms), 0) FROM attempts WHERE started_at >= $1)`,
		dayAgo,
	).Scan(
		&s.Targets, &s.ActiveSchedules, &s.PausedSchedules, &s.CompletedSchedules,
		&s.TotalRuns, &s.RunsLast24h, &s.SucceededLast24h, &s.FailedLast24h,
		&s.AvgAttemptMS,
	)
	if err != nil {
		return nil, fmt.Errorf("global stats: %w", err)
	}

	if terminal := s.SucceededLast24h + s.FailedLast24h; terminal > 0 {
		s.SuccessRate = float64(s.SucceededLast24h) / float64(terminal)
	}
	return &s, nil
}
