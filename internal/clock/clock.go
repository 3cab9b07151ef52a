// Package clock is the single source of "now". Every component that reads,
// writes or schedules against wall-clock time goes through a Clock bound to
// the configured zone; nothing else calls the OS clock directly. Tests
// substitute a fixed clock for deterministic scheduling math.
package clock

import (
	"fmt"
	"time"
)

type Clock interface {
	Now() time.Time
	Location() *time.Location
}

type zoneClock struct {
	loc *time.Location
}

// New returns a Clock pinned to the named IANA zone.
func New(timezone string) (Clock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", timezone, err)
	}
	return &zoneClock{loc: loc}, nil
}

func (c *zoneClock) Now() time.Time           { return time.Now().In(c.loc) }
func (c *zoneClock) Location() *time.Location { return c.loc }

// Fixed is a Clock frozen at a point in time. Advance it explicitly in tests.
type Fixed struct {
	T time.Time
}

func (f *Fixed) Now() time.Time           { return f.T }
func (f *Fixed) Location() *time.Location { return f.T.Location() }

// Advance moves the fixed clock forward by d.
func (f *Fixed) Advance(d time.Duration) { f.T = f.T.Add(d) }
