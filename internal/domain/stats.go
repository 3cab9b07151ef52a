package domain

// Stats is the aggregate snapshot served by GET /stats.
type Stats struct {
	Targets            int
	ActiveSchedules    int
	PausedSchedules    int
	CompletedSchedules int
	TotalRuns          int
	RunsLast24h        int
	SucceededLast24h   int
	FailedLast24h      int

	// SuccessRate is succeeded/(succeeded+failed) over the last 24h;
	// zero when no run reached a terminal state in that window.
	SuccessRate  float64
	AvgAttemptMS float64
}
