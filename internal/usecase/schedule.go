package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/tickhook/tickhook/internal/clock"
	"github.com/tickhook/tickhook/internal/domain"
	"github.com/tickhook/tickhook/internal/repository"
	"github.com/tickhook/tickhook/internal/trigger"
)

type ScheduleUsecase struct {
	repo     repository.ScheduleRepository
	targets  repository.TargetRepository
	runs     repository.RunRepository
	notifier Notifier
	clk      clock.Clock
}

func NewScheduleUsecase(
	repo repository.ScheduleRepository,
	targets repository.TargetRepository,
	runs repository.RunRepository,
	notifier Notifier,
	clk clock.Clock,
) *ScheduleUsecase {
	return &ScheduleUsecase{
		repo:     repo,
		targets:  targets,
		runs:     runs,
		notifier: notifier,
		clk:      clk,
	}
}

type CreateScheduleInput struct {
	Name            string
	TargetID        string
	Type            domain.ScheduleType
	IntervalSeconds *int
	CronExpression  *string
	StartAt         *time.Time
	DurationSeconds *int
	MaxRuns         *int
}

// validateRule enforces the type/field pairing and the window exclusivity.
func validateRule(s *domain.Schedule) error {
	switch s.Type {
	case domain.ScheduleInterval:
		if s.IntervalSeconds == nil || s.CronExpression != nil {
			return domain.ErrScheduleFieldMismatch
		}
		if *s.IntervalSeconds <= 0 {
			return domain.ErrInvalidInterval
		}
	case domain.ScheduleCron:
		if s.CronExpression == nil || s.IntervalSeconds != nil {
			return domain.ErrScheduleFieldMismatch
		}
		if _, err := trigger.ParseCron(*s.CronExpression); err != nil {
			return domain.ErrInvalidCronExpr
		}
	default:
		return domain.ErrScheduleFieldMismatch
	}

	if s.DurationSeconds != nil && s.MaxRuns != nil {
		return domain.ErrConflictingWindow
	}
	if s.DurationSeconds != nil && *s.DurationSeconds <= 0 {
		return fmt.Errorf("%w: duration_seconds must be positive", domain.ErrConflictingWindow)
	}
	if s.MaxRuns != nil && *s.MaxRuns <= 0 {
		return fmt.Errorf("%w: max_runs must be positive", domain.ErrConflictingWindow)
	}
	return nil
}

func (u *ScheduleUsecase) Create(ctx context.Context, input CreateScheduleInput) (*domain.Schedule, error) {
	if _, err := u.targets.GetByID(ctx, input.TargetID); err != nil {
		return nil, fmt.Errorf("get target: %w", err)
	}

	startAt := u.clk.Now().Truncate(time.Second)
	if input.StartAt != nil {
		startAt = input.StartAt.Truncate(time.Second)
	}

	s := &domain.Schedule{
		Name:            input.Name,
		TargetID:        input.TargetID,
		Type:            input.Type,
		IntervalSeconds: input.IntervalSeconds,
		CronExpression:  input.CronExpression,
		StartAt:         startAt,
		DurationSeconds: input.DurationSeconds,
		MaxRuns:         input.MaxRuns,
		Status:          domain.ScheduleActive,
	}
	if err := validateRule(s); err != nil {
		return nil, err
	}

	// Advisory only; the scheduler recomputes authoritatively when arming.
	// A fresh schedule is owed its start instant, so compute from just
	// before it.
	if next, ok := trigger.Next(s, startAt.Add(-time.Nanosecond)); ok {
		s.NextRunAt = &next
	}

	created, err := u.repo.Create(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	u.notifier.OnScheduleCreated(created)
	return created, nil
}

func (u *ScheduleUsecase) GetByID(ctx context.Context, id string) (*domain.Schedule, error) {
	s, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return s, nil
}

type ListSchedulesInput struct {
	Status domain.ScheduleStatus
	Cursor string
	Limit  int
}

type ListSchedulesResult struct {
	Schedules  []*domain.Schedule
	NextCursor *string
}

func (u *ScheduleUsecase) List(ctx context.Context, input ListSchedulesInput) (ListSchedulesResult, error) {
	limit := clampLimit(input.Limit)

	repoInput := repository.ListSchedulesInput{Status: input.Status, Limit: limit + 1}
	if input.Cursor != "" {
		t, id, err := decodeCursor(input.Cursor)
		if err != nil {
			return ListSchedulesResult{}, err
		}
		repoInput.CursorTime = t
		repoInput.CursorID = id
	}

	schedules, err := u.repo.List(ctx, repoInput)
	if err != nil {
		return ListSchedulesResult{}, fmt.Errorf("list schedules: %w", err)
	}

	var next *string
	if len(schedules) == limit+1 {
		last := schedules[limit]
		c := encodeCursor(last.CreatedAt, last.ID)
		next = &c
		schedules = schedules[:limit]
	}
	return ListSchedulesResult{Schedules: schedules, NextCursor: next}, nil
}

type UpdateScheduleInput struct {
	Name            *string
	Type            *domain.ScheduleType
	IntervalSeconds *int
	CronExpression  *string
	StartAt         *time.Time
	DurationSeconds *int
	MaxRuns         *int
}

// Update applies new settings. An in-flight run completes under the old
// settings; the rearm after this call uses the new ones.
func (u *ScheduleUsecase) Update(ctx context.Context, id string, input UpdateScheduleInput) (*domain.Schedule, error) {
	existing, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	if existing.Status == domain.ScheduleCompletedStatus {
		return nil, domain.ErrScheduleCompleted
	}

	if input.Name != nil {
		existing.Name = *input.Name
	}
	if input.Type != nil {
		existing.Type = *input.Type
		// Switching type replaces the rule wholesale.
		existing.IntervalSeconds = nil
		existing.CronExpression = nil
	}
	if input.IntervalSeconds != nil {
		existing.IntervalSeconds = input.IntervalSeconds
	}
	if input.CronExpression != nil {
		existing.CronExpression = input.CronExpression
	}
	if input.StartAt != nil {
		t := input.StartAt.Truncate(time.Second)
		existing.StartAt = t
	}
	if input.DurationSeconds != nil {
		existing.DurationSeconds = input.DurationSeconds
	}
	if input.MaxRuns != nil {
		existing.MaxRuns = input.MaxRuns
	}

	if err := validateRule(existing); err != nil {
		return nil, err
	}

	if next, ok := trigger.Next(existing, u.clk.Now()); ok {
		existing.NextRunAt = &next
	} else {
		existing.NextRunAt = nil
	}

	updated, err := u.repo.Update(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}

	u.notifier.OnScheduleUpdated(updated)
	return updated, nil
}

func (u *ScheduleUsecase) Pause(ctx context.Context, id string) error {
	s, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get schedule: %w", err)
	}
	switch s.Status {
	case domain.SchedulePaused:
		return domain.ErrScheduleAlreadyPaused
	case domain.ScheduleCompletedStatus:
		return domain.ErrScheduleCompleted
	}

	if err := u.repo.SetStatus(ctx, id, domain.SchedulePaused); err != nil {
		return fmt.Errorf("pause schedule: %w", err)
	}
	u.notifier.OnSchedulePaused(id)
	return nil
}

// Resume reactivates a paused schedule, unless its window closed while it
// was paused — then it transitions straight to completed.
func (u *ScheduleUsecase) Resume(ctx context.Context, id string) error {
	s, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get schedule: %w", err)
	}
	switch s.Status {
	case domain.ScheduleActive:
		return domain.ErrScheduleNotPaused
	case domain.ScheduleCompletedStatus:
		return domain.ErrScheduleCompleted
	}

	if s.WindowClosed(u.clk.Now()) {
		if err := u.repo.SetStatus(ctx, id, domain.ScheduleCompletedStatus); err != nil {
			return fmt.Errorf("complete schedule: %w", err)
		}
		return domain.ErrScheduleCompleted
	}

	if err := u.repo.SetStatus(ctx, id, domain.ScheduleActive); err != nil {
		return fmt.Errorf("resume schedule: %w", err)
	}
	u.notifier.OnScheduleResumed(id)
	return nil
}

func (u *ScheduleUsecase) Delete(ctx context.Context, id string) error {
	// Disarm before the rows disappear; an already-dispatched run finishes
	// and its record survives only until the cascade removes it.
	u.notifier.OnScheduleDeleted(id)

	if err := u.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

type ListScheduleRunsInput struct {
	ScheduleID string
	Status     domain.RunStatus
	Cursor     string
	Limit      int
}

func (u *ScheduleUsecase) ListRuns(ctx context.Context, input ListScheduleRunsInput) (ListRunsResult, error) {
	if _, err := u.repo.GetByID(ctx, input.ScheduleID); err != nil {
		return ListRunsResult{}, fmt.Errorf("get schedule: %w", err)
	}

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
		return ListRunsResult{}, fmt.Errorf("list schedule runs: %w", err)
	}
	return paginateRuns(runs, limit), nil
}
