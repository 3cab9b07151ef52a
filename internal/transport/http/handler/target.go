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

type TargetHandler struct {
	uc     *usecase.TargetUsecase
	logger *slog.Logger
}

func NewTargetHandler(uc *usecase.TargetUsecase, logger *slog.Logger) *TargetHandler {
	return &TargetHandler{uc: uc, logger: logger.With("component", "target_handler")}
}

type createTargetRequest struct {
	Name           string            `json:"name"            binding:"required,max=256"`
	URL            string            `json:"url"             binding:"required,max=2048"`
	Method         string            `json:"method"          binding:"omitempty,oneof=GET POST PUT PATCH DELETE HEAD"`
	Headers        map[string]string `json:"headers"`
	BodyTemplate   *string           `json:"body_template"`
	TimeoutSeconds int               `json:"timeout_seconds" binding:"omitempty,min=1"`
}

type updateTargetRequest struct {
	Name           *string           `json:"name"            binding:"omitempty,max=256"`
	URL            *string           `json:"url"             binding:"omitempty,max=2048"`
	Method         *string           `json:"method"          binding:"omitempty,oneof=GET POST PUT PATCH DELETE HEAD"`
	Headers        map[string]string `json:"headers"`
	BodyTemplate   *string           `json:"body_template"`
	TimeoutSeconds *int              `json:"timeout_seconds" binding:"omitempty,min=1"`
}

type targetResponse struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	URL            string            `json:"url"`
	Method         string            `json:"method"`
	Headers        map[string]string `json:"headers"`
	BodyTemplate   *string           `json:"body_template,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func toTargetResponse(t *domain.Target) targetResponse {
	return targetResponse{
		ID:             t.ID,
		Name:           t.Name,
		URL:            t.URL,
		Method:         t.Method,
		Headers:        t.Headers,
		BodyTemplate:   t.BodyTemplate,
		TimeoutSeconds: t.TimeoutSeconds,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func isTargetValidationErr(err error) bool {
	return errors.Is(err, domain.ErrInvalidTargetURL) ||
		errors.Is(err, domain.ErrInvalidHTTPMethod) ||
		errors.Is(err, domain.ErrTimeoutOutOfRange)
}

func (h *TargetHandler) Create(ctx *gin.Context) {
	var req createTargetRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.uc.Create(ctx.Request.Context(), usecase.CreateTargetInput{
		Name:           req.Name,
		URL:            req.URL,
		Method:         req.Method,
		Headers:        req.Headers,
		BodyTemplate:   req.BodyTemplate,
		TimeoutSeconds: req.TimeoutSeconds,
	})
	if err != nil {
		if isTargetValidationErr(err) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("create target", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusCreated, toTargetResponse(t))
}

func (h *TargetHandler) List(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))

	result, err := h.uc.List(ctx.Request.Context(), usecase.ListTargetsInput{
		Cursor: ctx.Query("cursor"),
		Limit:  limit,
	})
	if err != nil {
		if errors.Is(err, usecase.ErrBadCursor) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("list targets", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	items := make([]targetResponse, len(result.Targets))
	for i, t := range result.Targets {
		items[i] = toTargetResponse(t)
	}
	ctx.JSON(http.StatusOK, gin.H{
		"targets":     items,
		"next_cursor": result.NextCursor,
	})
}

func (h *TargetHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	t, err := h.uc.GetByID(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrTargetNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errTargetNotFound})
			return
		}
		h.logger.Error("get target", "target_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, toTargetResponse(t))
}

func (h *TargetHandler) Update(ctx *gin.Context) {
	id := ctx.Param("id")

	var req updateTargetRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.uc.Update(ctx.Request.Context(), id, usecase.UpdateTargetInput{
		Name:           req.Name,
		URL:            req.URL,
		Method:         req.Method,
		Headers:        req.Headers,
		BodyTemplate:   req.BodyTemplate,
		TimeoutSeconds: req.TimeoutSeconds,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTargetNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": errTargetNotFound})
		case isTargetValidationErr(err):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("update target", "target_id", id, "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.JSON(http.StatusOK, toTargetResponse(t))
}

func (h *TargetHandler) Delete(ctx *gin.Context) {
	id := ctx.Param("id")

	if err := h.uc.Delete(ctx.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrTargetNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errTargetNotFound})
			return
		}
		h.logger.Error("delete target", "target_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.Status(http.StatusNoContent)
}
