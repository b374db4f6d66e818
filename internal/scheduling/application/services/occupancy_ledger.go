// Package services implements the scheduling algorithms: availability
// derivation, the greedy constructive scheduler, the CP interval
// scheduler, the hybrid router, and post-solve validation.
package services

import (
	"time"

	"github.com/orbita-labs/taskscheduler/internal/scheduling/domain"
)

// OccupancyLedger is the sole mutable shared state within one scheduling
// job (spec §5): a per-user mapping from date to the set of hours already
// committed. It is mutated only from the single scheduling goroutine that
// owns a job, so no locking is required.
type OccupancyLedger struct {
	occupied map[int]map[int64]map[int]struct{} // userID -> dateUnix -> hour set
}

// NewOccupancyLedger returns an empty ledger.
func NewOccupancyLedger() *OccupancyLedger {
	return &OccupancyLedger{occupied: make(map[int]map[int64]map[int]struct{})}
}

func dateKey(date time.Time) int64 {
	return date.UTC().Truncate(24 * time.Hour).Unix()
}

// IsFree reports whether (user, date, hour) has no committed slot yet.
func (l *OccupancyLedger) IsFree(userID int, date time.Time, hour int) bool {
	byDate, ok := l.occupied[userID]
	if !ok {
		return true
	}
	hours, ok := byDate[dateKey(date)]
	if !ok {
		return true
	}
	_, occupied := hours[hour]
	return !occupied
}

// Commit inserts all of the given slots into the ledger, all-or-nothing.
// Calling Commit with a slot that is already occupied is a programmer
// error: the scheduler must filter free hours before selecting them. Per
// spec §4.3/§4.4.4 this situation panics with an InvariantViolation
// rather than silently overwriting state.
func (l *OccupancyLedger) Commit(slots []domain.ScheduledSlot) {
	for _, slot := range slots {
		if !l.IsFree(slot.UserID, slot.Date, slot.Hour) {
			domain.PanicInvariant("occupancy_ledger", "commit called with an already-occupied slot")
		}
	}
	for _, slot := range slots {
		byDate, ok := l.occupied[slot.UserID]
		if !ok {
			byDate = make(map[int64]map[int]struct{})
			l.occupied[slot.UserID] = byDate
		}
		key := dateKey(slot.Date)
		hours, ok := byDate[key]
		if !ok {
			hours = make(map[int]struct{})
			byDate[key] = hours
		}
		hours[slot.Hour] = struct{}{}
	}
}

// Reset clears all committed slots, used when the horizon is regenerated.
func (l *OccupancyLedger) Reset() {
	l.occupied = make(map[int]map[int64]map[int]struct{})
}
