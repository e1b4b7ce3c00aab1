package calendar

import "time"

// Clock is the single source of "now" for the engine.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns At. Used by tests and scenario loaders.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

// Today returns the current calendar day in loc.
func Today(c Clock, loc *time.Location) Date {
	return DateOf(c.Now(), loc)
}
