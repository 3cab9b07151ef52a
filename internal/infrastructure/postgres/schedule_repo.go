package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tickhook/tickhook/internal/domain"
	"github.com/tickhook/tickhook/internal/repository"
)

type ScheduleRepository struct {
	pool *pgxpool.Pool
}

func NewScheduleRepository(pool *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

const scheduleColumns = `id, name, target_id, schedule_type, interval_seconds,
	cron_expression, start_at, duration_seconds, max_runs, status, runs_count,
	next_run_at, last_run_at, created_at, updated_at`

func (r *ScheduleRepository) Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	query := `
		INSERT INTO schedules (
			name, target_id, schedule_type, interval_seconds, cron_expression,
			start_at, duration_seconds, max_runs, status, next_run_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + scheduleColumns

	row := r.pool.QueryRow(ctx, query,
		s.Name, s.TargetID, s.Type, s.IntervalSeconds, s.CronExpression,
		s.StartAt, s.DurationSeconds, s.MaxRuns, s.Status, s.NextRunAt,
	)
	return scanSchedule(row)
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*domain.Schedule, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)
	return scanSchedule(row)
}

func (r *ScheduleRepository) List(ctx context.Context, input repository.ListSchedulesInput) ([]*domain.Schedule, error) {
	var args []any
	var where []string

	if input.Status != "" {
		args = append(args, input.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if input.CursorTime != nil {
		args = append(args, *input.CursorTime, input.CursorID)
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, input.Limit)

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM schedules
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`, scheduleColumns, clause, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

func (r *ScheduleRepository) Update(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	query := `
		UPDATE schedules
		SET name = $2, schedule_type = $3, interval_seconds = $4,
		    cron_expression = $5, start_at = $6, duration_seconds = $7,
		    max_runs = $8, next_run_at = $9, updated_at = NOW()
		WHERE id = $1 AND status != 'completed'
		RETURNING ` + scheduleColumns

	row := r.pool.QueryRow(ctx, query,
		s.ID, s.Name, s.Type, s.IntervalSeconds, s.CronExpression,
		s.StartAt, s.DurationSeconds, s.MaxRuns, s.NextRunAt,
	)
	updated, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, domain.ErrScheduleNotFound) {
			// Distinguish a missing row from a terminal one.
			if _, getErr := r.GetByID(ctx, s.ID); getErr == nil {
				return nil, domain.ErrScheduleCompleted
			}
		}
		return nil, err
	}
	return updated, nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

// SetStatus moves the schedule between lifecycle states. Rows already in
// completed are terminal and never leave it.
func (r *ScheduleRepository) SetStatus(ctx context.Context, id string, status domain.ScheduleStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE schedules SET status = $2, updated_at = NOW()
		 WHERE id = $1 AND status != 'completed'`,
		id, status)
	if err != nil {
		return fmt.Errorf("set schedule status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrScheduleCompleted
	}
	return nil
}

func (r *ScheduleRepository) RecordFire(ctx context.Context, id string, lastRunAt time.Time, nextRunAt *time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE schedules
		 SET runs_count = runs_count + 1, last_run_at = $2, next_run_at = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, lastRunAt, nextRunAt)
	if err != nil {
		return fmt.Errorf("record fire: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) UpdateNextRun(ctx context.Context, id string, nextRunAt *time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE schedules SET next_run_at = $2, updated_at = NOW() WHERE id = $1`,
		id, nextRunAt)
	if err != nil {
		return fmt.Errorf("update next run: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) ListActive(ctx context.Context) ([]*domain.Schedule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE status = 'active' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active schedules: %w", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

func (r *ScheduleRepository) ListByTargetID(ctx context.Context, targetID string) ([]*domain.Schedule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE target_id = $1`, targetID)
	if err != nil {
		return nil, fmt.Errorf("list schedules by target: %w", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

func collectSchedules(rows pgx.Rows) ([]*domain.Schedule, error) {
	var schedules []*domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	var s domain.Schedule
	err := row.Scan(
		&s.ID, &s.Name, &s.TargetID, &s.Type, &s.IntervalSeconds,
		&s.CronExpression, &s.StartAt, &s.DurationSeconds, &s.MaxRuns,
		&s.Status, &s.RunsCount, &s.NextRunAt, &s.LastRunAt,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	return &s, nil
}
