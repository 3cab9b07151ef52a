package httptransport

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/tickhook/tickhook/internal/transport/http/handler"
	"github.com/tickhook/tickhook/internal/transport/http/middleware"
)

func NewRouter(
	logger *slog.Logger,
	targetHandler *handler.TargetHandler,
	scheduleHandler *handler.ScheduleHandler,
	runHandler *handler.RunHandler,
	jwtKey []byte,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	api := r.Group("/")
	if len(jwtKey) > 0 {
		api.Use(middleware.Auth(jwtKey))
	}

	targets := api.Group("/targets")
	targets.POST("", targetHandler.Create)
	targets.GET("", targetHandler.List)
	targets.GET("/:id", targetHandler.GetByID)
	targets.PATCH("/:id", targetHandler.Update)
	targets.DELETE("/:id", targetHandler.Delete)

	schedules := api.Group("/schedules")
	schedules.POST("", scheduleHandler.Create)
	schedules.GET("", scheduleHandler.List)
	schedules.GET("/:id", scheduleHandler.GetByID)
	schedules.PATCH("/:id", scheduleHandler.Update)
	schedules.POST("/:id/pause", scheduleHandler.Pause)
	schedules.POST("/:id/resume", scheduleHandler.Resume)
	schedules.DELETE("/:id", scheduleHandler.Delete)
	schedules.GET("/:id/runs", scheduleHandler.ListRuns)

	runs := api.Group("/runs")
	runs.GET("", runHandler.List)
	runs.GET("/:id", runHandler.GetByID)
	runs.GET("/:id/attempts", runHandler.ListAttempts)

	api.GET("/stats", runHandler.Stats)

	return r
}
