// seed inserts demo targets and schedules into the local dev database.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tickhook/tickhook/internal/infrastructure/postgres"
)

type targetSpec struct {
	name    string
	url     string
	method  string
	timeout int
	body    *string
}

type scheduleSpec struct {
	name       string
	targetName string
	schedType  string
	interval   *int
	cronExpr   *string
	duration   *int
	maxRuns    *int
}

func intp(v int) *int       { return &v }
func strp(v string) *string { return &v }

var targets = []targetSpec{
	// Happy path
	{"httpbin-post", "https://httpbin.org/post", "POST", 30, strp(`{"fired_at":"{{timestamp}}"}`)},
	{"httpbin-get", "https://httpbin.org/get", "GET", 30, nil},

	// Failures: 5xx retries, 4xx fails fast
	{"httpbin-503", "https://httpbin.org/status/503", "POST", 30, nil},
	{"httpbin-404", "https://httpbin.org/status/404", "GET", 30, nil},

	// Times out: httpbin delays longer than the target allows
	{"httpbin-slow", "https://httpbin.org/delay/10", "GET", 3, nil},
}

var schedules = []scheduleSpec{
	{"post-every-15s-for-1m", "httpbin-post", "interval", intp(15), nil, intp(60), nil},
	{"get-every-10s-5-runs", "httpbin-get", "interval", intp(10), nil, nil, intp(5)},
	{"cron-every-5m", "httpbin-get", "cron", nil, strp("*/5 * * * *"), nil, nil},
	{"retry-storm", "httpbin-503", "interval", intp(30), nil, nil, intp(3)},
	{"fail-fast", "httpbin-404", "interval", intp(30), nil, nil, intp(2)},
	{"timeout-demo", "httpbin-slow", "interval", intp(45), nil, nil, intp(2)},
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	targetIDs := make(map[string]string, len(targets))
	var createdTargets, createdSchedules int

	for _, spec := range targets {
		var id string
		// Re-runs reuse the existing row instead of piling up duplicates.
		err := pool.QueryRow(ctx,
			`SELECT id FROM targets WHERE name = $1 LIMIT 1`, spec.name).Scan(&id)
		if err != nil {
			err = pool.QueryRow(ctx, `
				INSERT INTO targets (name, url, method, headers, body_template, timeout_seconds)
				VALUES ($1, $2, $3, '{}', $4, $5)
				RETURNING id`,
				spec.name, spec.url, spec.method, spec.body, spec.timeout,
			).Scan(&id)
			if err != nil {
				log.Fatalf("insert target %s: %v", spec.name, err)
			}
			createdTargets++
		}
		targetIDs[spec.name] = id
	}

	startAt := time.Now().Add(time.Minute)

	for _, spec := range schedules {
		var exists bool
		if err := pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schedules WHERE name = $1)`, spec.name).Scan(&exists); err != nil {
			log.Fatalf("check schedule %s: %v", spec.name, err)
		}
		if exists {
			continue
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO schedules (
				name, target_id, schedule_type, interval_seconds, cron_expression,
				start_at, duration_seconds, max_runs, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'active')`,
			spec.name, targetIDs[spec.targetName], spec.schedType,
			spec.interval, spec.cronExpr, startAt, spec.duration, spec.maxRuns,
		)
		if err != nil {
			log.Fatalf("insert schedule %s: %v", spec.name, err)
		}
		createdSchedules++
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Targets created:   %d  (%d reused)\n", createdTargets, len(targets)-createdTargets)
	fmt.Printf("  Schedules created: %d  (%d already existing)\n", createdSchedules, len(schedules)-createdSchedules)
	fmt.Printf("  Start at:          %s  (~1 minute from now)\n", startAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("Restart the server (or wait for it to pick nothing up — schedules")
	fmt.Println("seeded directly in SQL are armed on the next recovery pass), then:")
	fmt.Println()
	fmt.Println("  curl -s localhost:8080/schedules | jq")
	fmt.Println("  curl -s 'localhost:8080/runs?limit=20' | jq")
}
