package domain

import "time"

// AvailableBlock is a contiguous hour-range on a single concrete date for
// one user, derived by the Availability Builder from a user's weekly
// calendar pattern and leaves. Immutable once built; the whole set is
// destroyed and rebuilt whenever the horizon is regenerated.
type AvailableBlock struct {
	UserID        int
	StartDatetime time.Time
	EndDatetime   time.Time
	Weekday       int
}

// DurationHours returns the block's length in whole hours.
func (b AvailableBlock) DurationHours() int {
	return int(b.EndDatetime.Sub(b.StartDatetime).Hours())
}

// Date returns the block's calendar date (UTC midnight).
func (b AvailableBlock) Date() time.Time {
	y, m, d := b.StartDatetime.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StartHour returns the hour-of-day the block begins at.
func (b AvailableBlock) StartHour() int {
	return b.StartDatetime.Hour()
}

// EndHour returns the hour-of-day the block ends at (exclusive).
func (b AvailableBlock) EndHour() int {
	return b.EndDatetime.Hour()
}
