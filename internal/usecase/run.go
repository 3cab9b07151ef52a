package usecase

import (
	"context"
	"fmt"

	"github.com/tickhook/tickhook/internal/clock"
	"github.com/tickhook/tickhook/internal/domain"
	"github.com/tickhook/tickhook/internal/repository"
)

// RunUsecase is read-only: runs and attempts are written exclusively by the
// scheduler and executor.
type RunUsecase struct {
	runs     repository.RunRepository
	attempts repository.AttemptRepository
	stats    repository.StatsRepository
	clk      clock.Clock
}

func NewRunUsecase(
	runs repository.RunRepository,
	attempts repository.AttemptRepository,
	stats repository.StatsRepository,
	clk clock.Clock,
) *RunUsecase {
	return &RunUsecase{runs: runs, attempts: attempts, stats: stats, clk: clk}
}

type ListRunsInput struct {
	ScheduleID string
	Status     domain.RunStatus
	Cursor     string
	Limit      int
}

type ListRunsResult struct {
	Runs       []*domain.Run
	NextCursor *string
}

func (u *RunUsecase) List(ctx context.Context, input ListRunsInput) (ListRunsResult, error) {
	limit := clampLimit(input.Limit)

	repoInput := repository.ListRunsInput{
		ScheduleID: input.ScheduleID,
		Status:     input.Status,
		Limit:      limit + 1,
	}
	if input.Cursor != "" {
		t, id, err := decodeCursor(input.Cursor)
		if err != nil {
			return ListRunsResult{}, err
		}
		repoInput.CursorTime = t
		repoInput.CursorID = id
	}

	runs, err := u.runs.List(ctx, repoInput)
	if err != nil {
		return ListRunsResult{}, fmt.Errorf("list runs: %w", err)
	}
	return paginateRuns(runs, limit), nil
}

func paginateRuns(runs []*domain.Run, limit int) ListRunsResult {
	var next *string
	if len(runs) == limit+1 {
		last := runs[limit]
		c := encodeCursor(last.ScheduledAt, last.ID)
		next = &c
		runs = runs[:limit]
	}
	return ListRunsResult{Runs: runs, NextCursor: next}
}

func (u *RunUsecase) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	run, err := u.runs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (u *RunUsecase) ListAttempts(ctx context.Context, runID string) ([]*domain.Attempt, error) {
	if _, err := u.runs.GetByID(ctx, runID); err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	attempts, err := u.attempts.ListByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}

func (u *RunUsecase) Stats(ctx context.Context) (*domain.Stats, error) {
	s, err := u.stats.Global(ctx, u.clk.Now())
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return s, nil
}
