package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tickhook/tickhook/config"
	"github.com/tickhook/tickhook/internal/clock"
	"github.com/tickhook/tickhook/internal/executor"
	"github.com/tickhook/tickhook/internal/health"
	"github.com/tickhook/tickhook/internal/infrastructure/postgres"
	ctxlog "github.com/tickhook/tickhook/internal/log"
	"github.com/tickhook/tickhook/internal/metrics"
	"github.com/tickhook/tickhook/internal/scheduler"
	httptransport "github.com/tickhook/tickhook/internal/transport/http"
	"github.com/tickhook/tickhook/internal/transport/http/handler"
	"github.com/tickhook/tickhook/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	clk, err := clock.New(cfg.Timezone)
	if err != nil {
		stop()
		log.Fatalf("clock: %v", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	targetRepo := postgres.NewTargetRepository(pool)
	scheduleRepo := postgres.NewScheduleRepository(pool)
	runRepo := postgres.NewRunRepository(pool)
	attemptRepo := postgres.NewAttemptRepository(pool)
	statsRepo := postgres.NewStatsRepository(pool)

	exec := executor.New(
		runRepo,
		attemptRepo,
		clk,
		logger,
		cfg.MaxRetries,
		cfg.RetryDelay(),
		cfg.MaxConcurrentJobs,
	)

	sched := scheduler.New(
		scheduleRepo,
		runRepo,
		targetRepo,
		exec,
		clk,
		logger,
		cfg.MisfireGrace(),
	)
	sched.Start(ctx)

	// Reconcile durable state before any timer is armed or request served.
	if err := sched.Recover(ctx); err != nil {
		stop()
		log.Fatalf("recovery: %v", err)
	}

	targetUsecase := usecase.NewTargetUsecase(targetRepo, sched, cfg.DefaultTimeoutSeconds, cfg.MaxTimeoutSeconds)
	scheduleUsecase := usecase.NewScheduleUsecase(scheduleRepo, targetRepo, runRepo, sched, clk)
	runUsecase := usecase.NewRunUsecase(runRepo, attemptRepo, statsRepo, clk)

	targetHandler := handler.NewTargetHandler(targetUsecase, logger)
	scheduleHandler := handler.NewScheduleHandler(scheduleUsecase, logger)
	runHandler := handler.NewRunHandler(runUsecase, logger)

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httptransport.NewRouter(logger, targetHandler, scheduleHandler, runHandler, []byte(cfg.JWTSecret)),
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
	case <-sched.Done():
		logger.Error("scheduler halted, shutting down")
	}
	stop()
	logger.Info("shutting down...")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	// Let dispatched runs reach a terminal state before the pool closes.
	exec.Wait()
	logger.Info("shutdown complete")
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
