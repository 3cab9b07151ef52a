package trigger_test

import (
	"testing"
	"time"

	"github.com/tickhook/tickhook/internal/domain"
	"github.com/tickhook/tickhook/internal/trigger"
)

var kolkata = mustLoad("Asia/Kolkata")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func intp(v int) *int       { return &v }
func strp(v string) *string { return &v }

func at(h, m, s int) time.Time {
	return time.Date(2026, time.March, 9, h, m, s, 0, kolkata)
}

func intervalSchedule(start time.Time, seconds int) *domain.Schedule {
	return &domain.Schedule{
		ID:              "sch-1",
		Type:            domain.ScheduleInterval,
		IntervalSeconds: intp(seconds),
		StartAt:         start,
		Status:          domain.ScheduleActive,
	}
}

func TestNext_IntervalBeforeStart_ReturnsStart(t *testing.T) {
	s := intervalSchedule(at(12, 0, 0), 10)

	got, ok := trigger.Next(s, at(11, 59, 30))
	if !ok {
		t.Fatal("expected a firing instant")
	}
	if !got.Equal(at(12, 0, 0)) {
		t.Errorf("next = %v, want %v", got, at(12, 0, 0))
	}
}

func TestNext_IntervalAtStart_IsStrictlyGreater(t *testing.T) {
	s := intervalSchedule(at(12, 0, 0), 10)

	got, ok := trigger.Next(s, at(12, 0, 0))
	if !ok {
		t.Fatal("expected a firing instant")
	}
	if !got.Equal(at(12, 0, 10)) {
		t.Errorf("next = %v, want %v", got, at(12, 0, 10))
	}
}

func TestNext_IntervalAfterStart_StrictlyGreater(t *testing.T) {
	s := intervalSchedule(at(12, 0, 0), 10)

	cases := []struct {
		after time.Time
		want  time.Time
	}{
		{at(12, 0, 1), at(12, 0, 10)},
		{at(12, 0, 10), at(12, 0, 20)}, // exact multiple advances
		{at(12, 0, 19), at(12, 0, 20)},
		{at(12, 5, 0), at(12, 5, 10)},
	}
	for _, tc := range cases {
		got, ok := trigger.Next(s, tc.after)
		if !ok {
			t.Fatalf("after %v: expected a firing instant", tc.after)
		}
		if !got.Equal(tc.want) {
			t.Errorf("after %v: next = %v, want %v", tc.after, got, tc.want)
		}
	}
}

func TestNext_IntervalSubSecondReference_FloorsToSecond(t *testing.T) {
	s := intervalSchedule(at(12, 0, 0), 10)

	// References inside the same second resolve identically: a few hundred
	// microseconds past 12:00:09 still yields 12:00:10, not 12:00:20.
	after := at(12, 0, 9).Add(500 * time.Microsecond)
	got, ok := trigger.Next(s, after)
	if !ok {
		t.Fatal("expected a firing instant")
	}
	if !got.Equal(at(12, 0, 10)) {
		t.Errorf("next = %v, want %v", got, at(12, 0, 10))
	}
}

func TestNext_DurationWindowCloses(t *testing.T) {
	s := intervalSchedule(at(12, 0, 0), 10)
	s.DurationSeconds = intp(35)

	got, ok := trigger.Next(s, at(12, 0, 25))
	if !ok || !got.Equal(at(12, 0, 30)) {
		t.Fatalf("next = %v ok=%v, want 12:00:30 inside the window", got, ok)
	}

	// The following instant (12:00:40) falls past start+35s.
	if _, ok := trigger.Next(s, at(12, 0, 30)); ok {
		t.Error("expected no firing past the duration window")
	}
}

func TestNext_MaxRunsExhausted(t *testing.T) {
	s := intervalSchedule(at(12, 0, 0), 10)
	s.MaxRuns = intp(2)

	s.RunsCount = 1
	if _, ok := trigger.Next(s, at(12, 0, 10)); !ok {
		t.Fatal("one run left, expected a firing instant")
	}

	s.RunsCount = 2
	if _, ok := trigger.Next(s, at(12, 0, 10)); ok {
		t.Error("run budget spent, expected no firing")
	}
}

func TestNext_CronEveryFiveMinutes(t *testing.T) {
	s := &domain.Schedule{
		ID:             "sch-2",
		Type:           domain.ScheduleCron,
		CronExpression: strp("*/5 * * * *"),
		StartAt:        at(12, 0, 0),
		Status:         domain.ScheduleActive,
	}

	got, ok := trigger.Next(s, at(12, 0, 0))
	if !ok {
		t.Fatal("expected a firing instant")
	}
	// Strictly greater than the reference: 12:00:00 itself matches the
	// expression but must not be returned.
	if !got.Equal(at(12, 5, 0)) {
		t.Errorf("next = %v, want %v", got, at(12, 5, 0))
	}

	got, ok = trigger.Next(s, at(12, 5, 0))
	if !ok || !got.Equal(at(12, 10, 0)) {
		t.Errorf("next = %v ok=%v, want 12:10:00", got, ok)
	}
}

func TestNext_CronBeforeStart_UsesStartAsReference(t *testing.T) {
	s := &domain.Schedule{
		ID:             "sch-3",
		Type:           domain.ScheduleCron,
		CronExpression: strp("0 * * * *"),
		StartAt:        at(15, 30, 0),
		Status:         domain.ScheduleActive,
	}

	got, ok := trigger.Next(s, at(9, 0, 0))
	if !ok {
		t.Fatal("expected a firing instant")
	}
	if !got.Equal(at(16, 0, 0)) {
		t.Errorf("next = %v, want %v", got, at(16, 0, 0))
	}
}

func TestNext_CronMaxRunsWindow(t *testing.T) {
	s := &domain.Schedule{
		ID:             "sch-4",
		Type:           domain.ScheduleCron,
		CronExpression: strp("*/5 * * * *"),
		StartAt:        at(12, 0, 0),
		MaxRuns:        intp(2),
		RunsCount:      2,
		Status:         domain.ScheduleActive,
	}

	if _, ok := trigger.Next(s, at(12, 10, 0)); ok {
		t.Error("expected no firing once max_runs is reached")
	}
}

func TestParseCron_RejectsBadExpressions(t *testing.T) {
	bad := []string{"", "* * *", "61 * * * *", "@hourly", "* * * * * *"}
	for _, expr := range bad {
		if _, err := trigger.ParseCron(expr); err == nil {
			t.Errorf("ParseCron(%q): expected error", expr)
		}
	}
	if _, err := trigger.ParseCron("*/5 * * * *"); err != nil {
		t.Errorf("ParseCron(valid): %v", err)
	}
}
