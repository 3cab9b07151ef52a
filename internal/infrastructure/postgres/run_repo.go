package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tickhook/tickhook/internal/domain"
	"github.com/tickhook/tickhook/internal/repository"
)

type RunRepository struct {
	pool *pgxpool.Pool
}

func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

const runColumns = `id, schedule_id, target_id, scheduled_at, started_at,
	completed_at, status, idempotency_key, attempt_count, final_error, created_at`

func (r *RunRepository) Create(ctx context.Context, run *domain.Run) (*domain.Run, error) {
	query := `
		INSERT INTO runs (schedule_id, target_id, scheduled_at, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + runColumns

	row := r.pool.QueryRow(ctx, query,
		run.ScheduleID, run.TargetID, run.ScheduledAt, run.Status, run.IdempotencyKey,
	)

	created, err := scanRun(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDuplicateRun
		}
		return nil, err
	}
	return created, nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	return scanRun(row)
}

func (r *RunRepository) List(ctx context.Context, input repository.ListRunsInput) ([]*domain.Run, error) {
	var args []any
	var where []string

	if input.ScheduleID != "" {
		args = append(args, input.ScheduleID)
		where = append(where, fmt.Sprintf("schedule_id = $%d", len(args)))
	}
	if input.Status != "" {
		args = append(args, input.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if input.CursorTime != nil {
		args = append(args, *input.CursorTime, input.CursorID)
		where = append(where, fmt.Sprintf("(scheduled_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, input.Limit)

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM runs
		%s
		ORDER BY scheduled_at DESC, id DESC
		LIMIT $%d`, runColumns, clause, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *RunRepository) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE runs SET status = 'running', started_at = $2
		 WHERE id = $1 AND status = 'pending'`,
		id, startedAt)
	if err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	return nil
}

// Finish writes the terminal state. The status guard makes succeeded/failed
// rows immutable: a second Finish is a no-op.
func (r *RunRepository) Finish(ctx context.Context, id string, status domain.RunStatus, finalError *string, attemptCount int, completedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE runs
		 SET status = $2, final_error = $3, attempt_count = $4, completed_at = $5
		 WHERE id = $1 AND status IN ('pending', 'running')`,
		id, status, finalError, attemptCount, completedAt)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func (r *RunRepository) CountInFlight(ctx context.Context, scheduleID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM runs
		 WHERE schedule_id = $1 AND status IN ('pending', 'running')`,
		scheduleID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count in-flight runs: %w", err)
	}
	return n, nil
}

func (r *RunRepository) FailInFlight(ctx context.Context, finalError string, completedAt time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE runs
		 SET status = 'failed', final_error = $1, completed_at = $2
		 WHERE status IN ('pending', 'running')`,
		finalError, completedAt)
	if err != nil {
		return 0, fmt.Errorf("fail in-flight runs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	err := row.Scan(
		&run.ID, &run.ScheduleID, &run.TargetID, &run.ScheduledAt, &run.StartedAt,
		&run.CompletedAt, &run.Status, &run.IdempotencyKey, &run.AttemptCount,
		&run.FinalError, &run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return &run, nil
}
