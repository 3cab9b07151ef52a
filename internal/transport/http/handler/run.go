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

type RunHandler struct {
	uc     *usecase.RunUsecase
	logger *slog.Logger
}

func NewRunHandler(uc *usecase.RunUsecase, logger *slog.Logger) *RunHandler {
	return &RunHandler{uc: uc, logger: logger.With("component", "run_handler")}
}

type runResponse struct {
	ID             string     `json:"id"`
	ScheduleID     string     `json:"schedule_id"`
	TargetID       string     `json:"target_id"`
	ScheduledAt    time.Time  `json:"scheduled_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Status         string     `json:"status"`
	IdempotencyKey string     `json:"idempotency_key"`
	AttemptCount   int        `json:"attempt_count"`
	FinalError     *string    `json:"final_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toRunResponse(r *domain.Run) runResponse {
	return runResponse{
		ID:             r.ID,
		ScheduleID:     r.ScheduleID,
		TargetID:       r.TargetID,
		ScheduledAt:    r.ScheduledAt,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
		Status:         string(r.Status),
		IdempotencyKey: r.IdempotencyKey,
		AttemptCount:   r.AttemptCount,
		FinalError:     r.FinalError,
		CreatedAt:      r.CreatedAt,
	}
}

func runsPage(result usecase.ListRunsResult) gin.H {
	items := make([]runResponse, len(result.Runs))
	for i, r := range result.Runs {
		items[i] = toRunResponse(r)
	}
	return gin.H{
		"runs":        items,
		"next_cursor": result.NextCursor,
	}
}

type attemptResponse struct {
	ID              string            `json:"id"`
	RunID           string            `json:"run_id"`
	AttemptNumber   int               `json:"attempt_number"`
	RequestURL      string            `json:"request_url"`
	RequestMethod   string            `json:"request_method"`
	RequestHeaders  map[string]string `json:"request_headers"`
	RequestBody     *string           `json:"request_body,omitempty"`
	ResponseStatus  *int              `json:"response_status,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    *string           `json:"response_body,omitempty"`
	ErrorClass      string            `json:"error_class"`
	ErrorMessage    *string           `json:"error_message,omitempty"`
	DurationMS      int64             `json:"duration_ms"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     time.Time         `json:"completed_at"`
}

func toAttemptResponse(a *domain.Attempt) attemptResponse {
	return attemptResponse{
		ID:              a.ID,
		RunID:           a.RunID,
		AttemptNumber:   a.AttemptNumber,
		RequestURL:      a.RequestURL,
		RequestMethod:   a.RequestMethod,
		RequestHeaders:  a.RequestHeaders,
		RequestBody:     a.RequestBody,
		ResponseStatus:  a.ResponseStatus,
		ResponseHeaders: a.ResponseHeaders,
		ResponseBody:    a.ResponseBody,
		ErrorClass:      string(a.ErrorClass),
		ErrorMessage:    a.ErrorMessage,
		DurationMS:      a.DurationMS,
		StartedAt:       a.StartedAt,
		CompletedAt:     a.CompletedAt,
	}
}

func (h *RunHandler) List(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))

	result, err := h.uc.List(ctx.Request.Context(), usecase.ListRunsInput{
		ScheduleID: ctx.Query("schedule_id"),
		Status:     domain.RunStatus(ctx.Query("status")),
		Cursor:     ctx.Query("cursor"),
		Limit:      limit,
	})
	if err != nil {
		if errors.Is(err, usecase.ErrBadCursor) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("list runs", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, runsPage(result))
}

func (h *RunHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	run, err := h.uc.GetByID(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errRunNotFound})
			return
		}
		h.logger.Error("get run", "run_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, toRunResponse(run))
}

func (h *RunHandler) ListAttempts(ctx *gin.Context) {
	id := ctx.Param("id")

	attempts, err := h.uc.ListAttempts(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errRunNotFound})
			return
		}
		h.logger.Error("list attempts", "run_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	items := make([]attemptResponse, len(attempts))
	for i, a := range attempts {
		items[i] = toAttemptResponse(a)
	}
	ctx.JSON(http.StatusOK, gin.H{"attempts": items})
}

func (h *RunHandler) Stats(ctx *gin.Context) {
	stats, err := h.uc.Stats(ctx.Request.Context())
	if err != nil {
		h.logger.Error("stats", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"targets":             stats.Targets,
		"active_schedules":    stats.ActiveSchedules,
		"paused_schedules":    stats.PausedSchedules,
		"completed_schedules": stats.CompletedSchedules,
		"total_runs":          stats.TotalRuns,
		"runs_last_24h":       stats.RunsLast24h,
		"succeeded_last_24h":  stats.SucceededLast24h,
		"failed_last_24h":     stats.FailedLast24h,
		"success_rate":        stats.SuccessRate,
		"avg_attempt_ms":      stats.AvgAttemptMS,
	})
}
