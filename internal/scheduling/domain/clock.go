package domain

import "time"

// Clock supplies the current UTC date. The scheduler's first planning day
// is always tomorrow relative to Clock.Now(); injected so tests can pin a
// fixed date instead of depending on wall-clock time.
type Clock interface {
	// Now returns the current instant in UTC.
	Now() time.Time
}

// UTCClock is the production Clock, backed by time.Now().
type UTCClock struct{}

// Now returns time.Now() normalized to UTC.
func (UTCClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock is a Clock that always reports the same instant, for
// deterministic tests.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return c.At
}

// Tomorrow returns the first planning date (date-only, UTC midnight) for
// the given clock.
func Tomorrow(clock Clock) time.Time {
	now := clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, 1)
}
