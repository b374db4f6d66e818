package services

import "github.com/orbita-labs/taskscheduler/internal/scheduling/domain"

// validationKey identifies a single (user, date, hour) cell.
type validationKey struct {
	userID int
	date   int64
	hour   int
}

// ValidateOverlaps scans every committed slot in the solution, grouped by
// user and (date, hour); any collision is the InternalInvariantViolation
// from spec §4.4.6/§7 — the OccupancyLedger's all-or-nothing commit
// should have made this unreachable, so finding one here means a bug
// elsewhere in the scheduler, not a recoverable domain outcome. It is
// never silently masked: detecting one panics, to be recovered and
// surfaced as an error at the Schedule boundary.
func ValidateOverlaps(solution *domain.Solution) {
	seen := make(map[validationKey]struct{})
	for _, slots := range solution.Tasks {
		for _, slot := range slots {
			key := validationKey{userID: slot.UserID, date: dateKey(slot.Date), hour: slot.Hour}
			if _, exists := seen[key]; exists {
				domain.PanicInvariant("validator", "duplicate (user,date,hour) assignment detected across committed slots")
			}
			seen[key] = struct{}{}
		}
	}
	solution.OverlapsDetected = 0
}
