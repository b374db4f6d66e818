package domain

import "time"

// Leave is an inclusive, date-only absence period attached to a task; it
// blocks every AvailableBlock of the task's user whose date falls inside
// [DateFrom, DateTo]. Leaves are resolved per-user: a user is absent on a
// date if any of that user's tasks carries a Leave covering it (see
// SPEC_FULL.md §11 for why this is per-user rather than per-task).
type Leave struct {
	TaskID   int
	DateFrom time.Time
	DateTo   time.Time
}

// Validate checks DateFrom <= DateTo and that both are date-only (UTC
// midnight) values.
func (l Leave) Validate() error {
	if l.DateTo.Before(l.DateFrom) {
		return newInputError("date_to", "must not be before date_from")
	}
	for _, d := range []time.Time{l.DateFrom, l.DateTo} {
		if !d.Equal(time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)) {
			return newInputError("date_from/date_to", "must be date-only (UTC midnight)")
		}
	}
	return nil
}

// Covers reports whether date falls within [DateFrom, DateTo], inclusive.
func (l Leave) Covers(date time.Time) bool {
	return !date.Before(l.DateFrom) && !date.After(l.DateTo)
}
