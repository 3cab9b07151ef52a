package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tickhook/tickhook/internal/domain"
	"github.com/tickhook/tickhook/internal/usecase"
)

type ScheduleHandler struct {
	uc     *usecase.ScheduleUsecase
	logger *slog.Logger
}

func NewScheduleHandler(uc *usecase.ScheduleUsecase, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{uc: uc, logger: logger.With("component", "schedule_handler")}
}

type createScheduleRequest struct {
	Name            string     `json:"name"             binding:"required,max=256"`
	TargetID        string     `json:"target_id"        binding:"required,uuid"`
	ScheduleType    string     `json:"schedule_type"    binding:"required,oneof=interval cron"`
	IntervalSeconds *int       `json:"interval_seconds" binding:"omitempty,min=1"`
	CronExpression  *string    `json:"cron_expression"  binding:"omitempty,max=100"`
	StartAt         *time.Time `json:"start_at"`
	DurationSeconds *int       `json:"duration_seconds" binding:"omitempty,min=1"`
	MaxRuns         *int       `json:"max_runs"         binding:"omitempty,min=1"`
}

type updateScheduleRequest struct {
	Name            *string    `json:"name"             binding:"omitempty,max=256"`
	ScheduleType    *string    `json:"schedule_type"    binding:"omitempty,oneof=interval cron"`
	IntervalSeconds *int       `json:"interval_seconds" binding:"omitempty,min=1"`
	CronExpression  *string    `json:"cron_expression"  binding:"omitempty,max=100"`
	StartAt         *time.Time `json:"start_at"`
	DurationSeconds *int       `json:"duration_seconds" binding:"omitempty,min=1"`
	MaxRuns         *int       `json:"max_runs"         binding:"omitempty,min=1"`
}

type scheduleResponse struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	TargetID        string     `json:"target_id"`
	ScheduleType    string     `json:"schedule_type"`
	IntervalSeconds *int       `json:"interval_seconds,omitempty"`
	CronExpression  *string    `json:"cron_expression,omitempty"`
	StartAt         time.Time  `json:"start_at"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	MaxRuns         *int       `json:"max_runs,omitempty"`
	Status          string     `json:"status"`
	RunsCount       int        `json:"runs_count"`
	NextRunAt       *time.Time `json:"next_run_at,omitempty"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toScheduleResponse(s *domain.Schedule) scheduleResponse {
	return scheduleResponse{
		ID:              s.ID,
		Name:            s.Name,
		TargetID:        s.TargetID,
		ScheduleType:    string(s.Type),
		IntervalSeconds: s.IntervalSeconds,
		CronExpression:  s.CronExpression,
		StartAt:         s.StartAt,
		DurationSeconds: s.DurationSeconds,
		MaxRuns:         s.MaxRuns,
		Status:          string(s.Status),
		RunsCount:       s.RunsCount,
		NextRunAt:       s.NextRunAt,
		LastRunAt:       s.LastRunAt,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func isScheduleValidationErr(err error) bool {
	return errors.Is(err, domain.ErrScheduleFieldMismatch) ||
		errors.Is(err, domain.ErrInvalidInterval) ||
		errors.Is(err, domain.ErrInvalidCronExpr) ||
		errors.Is(err, domain.ErrConflictingWindow)
}

func (h *ScheduleHandler) Create(ctx *gin.Context) {
	var req createScheduleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.uc.Create(ctx.Request.Context(), usecase.CreateScheduleInput{
		Name:            req.Name,
		TargetID:        req.TargetID,
		Type:            domain.ScheduleType(req.ScheduleType),
		IntervalSeconds: req.IntervalSeconds,
		CronExpression:  req.CronExpression,
		StartAt:         req.StartAt,
		DurationSeconds: req.DurationSeconds,
		MaxRuns:         req.MaxRuns,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTargetNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": errTargetNotFound})
		case isScheduleValidationErr(err):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("create schedule", "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.JSON(http.StatusCreated, toScheduleResponse(s))
}

func (h *ScheduleHandler) List(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))

	result, err := h.uc.List(ctx.Request.Context(), usecase.ListSchedulesInput{
		Status: domain.ScheduleStatus(ctx.Query("status")),
		Cursor: ctx.Query("cursor"),
		Limit:  limit,
	})
	if err != nil {
		if errors.Is(err, usecase.ErrBadCursor) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("list schedules", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	items := make([]scheduleResponse, len(result.Schedules))
	for i, s := range result.Schedules {
		items[i] = toScheduleResponse(s)
	}
	ctx.JSON(http.StatusOK, gin.H{
		"schedules":   items,
		"next_cursor": result.NextCursor,
	})
}

func (h *ScheduleHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	s, err := h.uc.GetByID(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrScheduleNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
			return
		}
		h.logger.Error("get schedule", "schedule_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, toScheduleResponse(s))
}

func (h *ScheduleHandler) Update(ctx *gin.Context) {
	id := ctx.Param("id")

	var req updateScheduleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var schedType *domain.ScheduleType
	if req.ScheduleType != nil {
		t := domain.ScheduleType(*req.ScheduleType)
		schedType = &t
	}

	s, err := h.uc.Update(ctx.Request.Context(), id, usecase.UpdateScheduleInput{
		Name:            req.Name,
		Type:            schedType,
		IntervalSeconds: req.IntervalSeconds,
		CronExpression:  req.CronExpression,
		StartAt:         req.StartAt,
		DurationSeconds: req.DurationSeconds,
		MaxRuns:         req.MaxRuns,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrScheduleNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
		case errors.Is(err, domain.ErrScheduleCompleted):
			ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case isScheduleValidationErr(err):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("update schedule", "schedule_id", id, "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.JSON(http.StatusOK, toScheduleResponse(s))
}

func (h *ScheduleHandler) Pause(ctx *gin.Context) {
	id := ctx.Param("id")

	err := h.uc.Pause(ctx.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrScheduleNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
		case errors.Is(err, domain.ErrScheduleAlreadyPaused), errors.Is(err, domain.ErrScheduleCompleted):
			ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("pause schedule", "schedule_id", id, "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *ScheduleHandler) Resume(ctx *gin.Context) {
	id := ctx.Param("id")

	err := h.uc.Resume(ctx.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrScheduleNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
		case errors.Is(err, domain.ErrScheduleNotPaused), errors.Is(err, domain.ErrScheduleCompleted):
			ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("resume schedule", "schedule_id", id, "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *ScheduleHandler) Delete(ctx *gin.Context) {
	id := ctx.Param("id")

	if err := h.uc.Delete(ctx.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrScheduleNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
			return
		}
		h.logger.Error("delete schedule", "schedule_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *ScheduleHandler) ListRuns(ctx *gin.Context) {
	id := ctx.Param("id")
	limit, _ := strconv.Atoi(ctx.Query("limit"))

	result, err := h.uc.ListRuns(ctx.Request.Context(), usecase.ListScheduleRunsInput{
		ScheduleID: id,
		Status:     domain.RunStatus(ctx.Query("status")),
		Cursor:     ctx.Query("cursor"),
		Limit:      limit,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrScheduleNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
		case errors.Is(err, usecase.ErrBadCursor):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("list schedule runs", "schedule_id", id, "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.JSON(http.StatusOK, runsPage(result))
}
