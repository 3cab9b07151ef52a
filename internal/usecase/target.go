package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/tickhook/tickhook/internal/domain"
	"github.com/tickhook/tickhook/internal/repository"
)

// Notifier delivers schedule lifecycle events to the scheduler so timers
// track store mutations. Satisfied by *scheduler.Scheduler.
type Notifier interface {
	OnScheduleCreated(s *domain.Schedule)
	OnScheduleUpdated(s *domain.Schedule)
	OnSchedulePaused(id string)
	OnScheduleResumed(id string)
	OnScheduleDeleted(id string)
	OnTargetDeleted(ctx context.Context, targetID string)
}

type TargetUsecase struct {
	repo     repository.TargetRepository
	notifier Notifier

	defaultTimeout int
	maxTimeout     int
}

func NewTargetUsecase(repo repository.TargetRepository, notifier Notifier, defaultTimeout, maxTimeout int) *TargetUsecase {
	return &TargetUsecase{
		repo:           repo,
		notifier:       notifier,
		defaultTimeout: defaultTimeout,
		maxTimeout:     maxTimeout,
	}
}

type CreateTargetInput struct {
	Name           string
	URL            string
	Method         string
	Headers        map[string]string
	BodyTemplate   *string
	TimeoutSeconds int
}

func (u *TargetUsecase) validate(input *CreateTargetInput) error {
	if err := domain.ValidateURL(input.URL); err != nil {
		return err
	}

	if input.Method == "" {
		input.Method = "GET"
	}
	input.Method = strings.ToUpper(input.Method)
	if !domain.AllowedMethods[input.Method] {
		return domain.ErrInvalidHTTPMethod
	}

	if input.TimeoutSeconds == 0 {
		input.TimeoutSeconds = u.defaultTimeout
	}
	if input.TimeoutSeconds < 1 || input.TimeoutSeconds > u.maxTimeout {
		return fmt.Errorf("%w: must be between 1 and %d", domain.ErrTimeoutOutOfRange, u.maxTimeout)
	}

	if input.Headers == nil {
		input.Headers = make(map[string]string)
	}
	return nil
}

func (u *TargetUsecase) Create(ctx context.Context, input CreateTargetInput) (*domain.Target, error) {
	if err := u.validate(&input); err != nil {
		return nil, err
	}

	created, err := u.repo.Create(ctx, &domain.Target{
		Name:           input.Name,
		URL:            input.URL,
		Method:         input.Method,
		Headers:        input.Headers,
		BodyTemplate:   input.BodyTemplate,
		TimeoutSeconds: input.TimeoutSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("create target: %w", err)
	}
	return created, nil
}

func (u *TargetUsecase) GetByID(ctx context.Context, id string) (*domain.Target, error) {
	t, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get target: %w", err)
	}
	return t, nil
}

type ListTargetsInput struct {
	Cursor string
	Limit  int
}

type ListTargetsResult struct {
	Targets    []*domain.Target
	NextCursor *string
}

func (u *TargetUsecase) List(ctx context.Context, input ListTargetsInput) (ListTargetsResult, error) {
	limit := clampLimit(input.Limit)

	repoInput := repository.ListTargetsInput{Limit: limit + 1}
	if input.Cursor != "" {
		t, id, err := decodeCursor(input.Cursor)
		if err != nil {
			return ListTargetsResult{}, err
		}
		repoInput.CursorTime = t
		repoInput.CursorID = id
	}

	targets, err := u.repo.List(ctx, repoInput)
	if err != nil {
		return ListTargetsResult{}, fmt.Errorf("list targets: %w", err)
	}

	var next *string
	if len(targets) == limit+1 {
		last := targets[limit]
		c := encodeCursor(last.CreatedAt, last.ID)
		next = &c
		targets = targets[:limit]
	}
	return ListTargetsResult{Targets: targets, NextCursor: next}, nil
}

type UpdateTargetInput struct {
	Name           *string
	URL            *string
	Method         *string
	Headers        map[string]string
	BodyTemplate   *string
	TimeoutSeconds *int
}

func (u *TargetUsecase) Update(ctx context.Context, id string, input UpdateTargetInput) (*domain.Target, error) {
	existing, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get target: %w", err)
	}

	if input.Name != nil {
		existing.Name = *input.Name
	}
	if input.URL != nil {
		existing.URL = *input.URL
	}
	if input.Method != nil {
		existing.Method = *input.Method
	}
	if input.Headers != nil {
		existing.Headers = input.Headers
	}
	if input.BodyTemplate != nil {
		existing.BodyTemplate = input.BodyTemplate
	}
	if input.TimeoutSeconds != nil {
		existing.TimeoutSeconds = *input.TimeoutSeconds
	}

	check := CreateTargetInput{
		Name:           existing.Name,
		URL:            existing.URL,
		Method:         existing.Method,
		Headers:        existing.Headers,
		BodyTemplate:   existing.BodyTemplate,
		TimeoutSeconds: existing.TimeoutSeconds,
	}
	if err := u.validate(&check); err != nil {
		return nil, err
	}
	existing.Method = check.Method
	existing.TimeoutSeconds = check.TimeoutSeconds
	existing.Headers = check.Headers

	updated, err := u.repo.Update(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("update target: %w", err)
	}
	return updated, nil
}

// Delete disarms every schedule referencing the target before the cascading
// delete removes the rows; no firing can occur for a schedule whose target
// is gone.
func (u *TargetUsecase) Delete(ctx context.Context, id string) error {
	if _, err := u.repo.GetByID(ctx, id); err != nil {
		return fmt.Errorf("get target: %w", err)
	}

	u.notifier.OnTargetDeleted(ctx, id)

	if err := u.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	return nil
}
