package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tickhook/tickhook/internal/domain"
)

type AttemptRepository struct {
	pool *pgxpool.Pool
}

func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, run_id, attempt_number, request_url, request_method,
	request_headers, request_body, response_status, response_headers,
	response_body, error_class, error_message, duration_ms, started_at, completed_at`

func (r *AttemptRepository) Create(ctx context.Context, a *domain.Attempt) (*domain.Attempt, error) {
	query := `
		INSERT INTO attempts (
			run_id, attempt_number, request_url, request_method, request_headers,
			request_body, response_status, response_headers, response_body,
			error_class, error_message, duration_ms, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + attemptColumns

	row := r.pool.QueryRow(ctx, query,
		a.RunID, a.AttemptNumber, a.RequestURL, a.RequestMethod, a.RequestHeaders,
		a.RequestBody, a.ResponseStatus, a.ResponseHeaders, a.ResponseBody,
		a.ErrorClass, a.ErrorMessage, a.DurationMS, a.StartedAt, a.CompletedAt,
	)
	return scanAttempt(row)
}

func (r *AttemptRepository) ListByRunID(ctx context.Context, runID string) ([]*domain.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE run_id = $1 ORDER BY attempt_number ASC`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func scanAttempt(row rowScanner) (*domain.Attempt, error) {
	var a domain.Attempt
	err := row.Scan(
		&a.ID, &a.RunID, &a.AttemptNumber, &a.RequestURL, &a.RequestMethod,
		&a.RequestHeaders, &a.RequestBody, &a.ResponseStatus, &a.ResponseHeaders,
		&a.ResponseBody, &a.ErrorClass, &a.ErrorMessage, &a.DurationMS,
		&a.StartedAt, &a.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan attempt: %w", err)
	}
	return &a, nil
}
