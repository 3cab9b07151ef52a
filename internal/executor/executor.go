// Package executor performs the outbound HTTP work for fired runs: bounded
// retries with exponential backoff, error classification, response capture
// with truncation, and the append-only attempt trail. It never reports
// failure to its caller — every terminal condition ends up as persisted
// Run/Attempt state.
package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tickhook/tickhook/internal/clock"
	"github.com/tickhook/tickhook/internal/domain"
	"github.com/tickhook/tickhook/internal/metrics"
	"github.com/tickhook/tickhook/internal/repository"
)

// MaxResponseBody caps how much of a response body is persisted per attempt.
const MaxResponseBody = 100 << 10 // 100 KiB

const truncationSuffix = "…[truncated]"

type Executor struct {
	runs     repository.RunRepository
	attempts repository.AttemptRepository
	clk      clock.Clock
	logger   *slog.Logger
	client   *http.Client

	maxRetries int
	baseDelay  time.Duration

	sem chan struct{}
	wg  sync.WaitGroup
}

func New(
	runs repository.RunRepository,
	attempts repository.AttemptRepository,
	clk clock.Clock,
	logger *slog.Logger,
	maxRetries int,
	baseDelay time.Duration,
	concurrency int,
) *Executor {
	return &Executor{
		runs:       runs,
		attempts:   attempts,
		clk:        clk,
		logger:     logger.With("component", "executor"),
		client:     &http.Client{}, // no global timeout, each target sets its own
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		sem:        make(chan struct{}, concurrency),
	}
}

// Dispatch hands a run to the worker pool. Blocks while all workers are
// busy, which backpressures the scheduler at MAX_CONCURRENT_JOBS.
func (e *Executor) Dispatch(ctx context.Context, run *domain.Run, target *domain.Target) {
	e.sem <- struct{}{}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() { <-e.sem }()
		metrics.RunsInFlight.Inc()
		defer metrics.RunsInFlight.Dec()
		e.Execute(ctx, run, target)
	}()
}

// Wait blocks until every dispatched run has reached a terminal state.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Execute drives one run to a terminal status: up to maxRetries+1 attempts,
// exponential backoff between retriable failures, attempt trail appended as
// it goes.
func (e *Executor) Execute(ctx context.Context, run *domain.Run, target *domain.Target) {
	startedAt := e.clk.Now()
	if err := e.runs.MarkRunning(ctx, run.ID, startedAt); err != nil {
		e.logger.Error("mark run running", "run_id", run.ID, "error", err)
	}

	totalTries := e.maxRetries + 1
	var last *domain.Attempt

	for attemptNumber := 1; attemptNumber <= totalTries; attemptNumber++ {
		attempt := e.attempt(ctx, run, target, attemptNumber)
		last = attempt

		if _, err := e.attempts.Create(ctx, attempt); err != nil {
			e.logger.Error("append attempt", "run_id", run.ID, "attempt", attemptNumber, "error", err)
		}
		metrics.AttemptDuration.WithLabelValues(string(attempt.ErrorClass)).
			Observe(float64(attempt.DurationMS) / 1000)

		if attempt.ErrorClass == domain.ErrorNone {
			e.finish(ctx, run, domain.RunSucceeded, nil, attemptNumber)
			e.logger.Info("run succeeded",
				"run_id", run.ID, "schedule_id", run.ScheduleID,
				"attempts", attemptNumber, "status", derefInt(attempt.ResponseStatus))
			return
		}

		if !attempt.ErrorClass.Retriable() || attemptNumber == totalTries {
			break
		}

		// base · 2^(n-1); deliberately not cancellable — the sleep counts
		// toward worker occupancy.
		delay := e.baseDelay << (attemptNumber - 1)
		e.logger.Warn("attempt failed, backing off",
			"run_id", run.ID, "attempt", attemptNumber,
			"class", attempt.ErrorClass, "retry_in", delay)
		time.Sleep(delay)
	}

	var finalError *string
	if last != nil && last.ErrorMessage != nil {
		finalError = last.ErrorMessage
	} else if last != nil {
		msg := string(last.ErrorClass)
		finalError = &msg
	}
	e.finish(ctx, run, domain.RunFailed, finalError, last.AttemptNumber)
	e.logger.Warn("run failed",
		"run_id", run.ID, "schedule_id", run.ScheduleID,
		"attempts", last.AttemptNumber, "class", last.ErrorClass)
}

func (e *Executor) finish(ctx context.Context, run *domain.Run, status domain.RunStatus, finalError *string, attempts int) {
	if err := e.runs.Finish(ctx, run.ID, status, finalError, attempts, e.clk.Now()); err != nil {
		e.logger.Error("finish run", "run_id", run.ID, "error", err)
	}
	outcome := "succeeded"
	if status == domain.RunFailed {
		outcome = "failed"
	}
	metrics.RunsCompletedTotal.WithLabelValues(outcome).Inc()
}

// attempt performs a single HTTP try and returns the finished record.
func (e *Executor) attempt(ctx context.Context, run *domain.Run, target *domain.Target, attemptNumber int) *domain.Attempt {
	body := materializeBody(target.BodyTemplate, e.clk.Now())

	headers := target.Headers
	if headers == nil {
		headers = map[string]string{}
	}

	a := &domain.Attempt{
		RunID:          run.ID,
		AttemptNumber:  attemptNumber,
		RequestURL:     target.URL,
		RequestMethod:  target.Method,
		RequestHeaders: headers,
		RequestBody:    body,
		StartedAt:      e.clk.Now(),
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(target.TimeoutSeconds)*time.Second)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		bodyReader = strings.NewReader(*body)
	}

	req, err := http.NewRequestWithContext(reqCtx, target.Method, target.URL, bodyReader)
	if err != nil {
		a.CompletedAt = e.clk.Now()
		a.ErrorClass = domain.ErrorUnknown
		msg := fmt.Sprintf("build request: %v", err)
		a.ErrorMessage = &msg
		return a
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := e.clk.Now()
	resp, err := e.client.Do(req)
	a.CompletedAt = e.clk.Now()
	a.DurationMS = a.CompletedAt.Sub(start).Milliseconds()

	if err != nil {
		class, msg := Classify(err)
		a.ErrorClass = class
		a.ErrorMessage = &msg
		return a
	}
	defer func() { _ = resp.Body.Close() }()

	a.ResponseStatus = &resp.StatusCode
	a.ResponseHeaders = flattenHeaders(resp.Header)
	respBody := readBody(resp.Body)
	a.ResponseBody = &respBody

	a.ErrorClass = ClassifyStatus(resp.StatusCode)
	if a.ErrorClass != domain.ErrorNone {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		a.ErrorMessage = &msg
	}
	return a
}

// materializeBody renders the target's body template. The only supported
// variable is {{timestamp}}, replaced with the current instant in RFC 3339.
func materializeBody(template *string, now time.Time) *string {
	if template == nil {
		return nil
	}
	body := strings.ReplaceAll(*template, "{{timestamp}}", now.Format(time.RFC3339))
	return &body
}

// readBody drains up to the storage cap plus one byte; the extra byte tells
// truncation from an exact-size body. The remainder is discarded so the
// connection can be reused.
func readBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, MaxResponseBody+1))
	if err != nil {
		return fmt.Sprintf("[read error: %v]", err)
	}
	_, _ = io.Copy(io.Discard, r)
	if len(data) > MaxResponseBody {
		return string(data[:MaxResponseBody]) + truncationSuffix
	}
	return string(data)
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
