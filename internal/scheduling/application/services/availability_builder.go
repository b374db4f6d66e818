package services

import (
	"sort"
	"time"

	"github.com/orbita-labs/taskscheduler/internal/scheduling/domain"
	"github.com/teambition/rrule-go"
)

// weekdayOrder maps spec's 0=Monday..6=Sunday onto rrule-go's weekday
// constants, which use the same Monday-first ordering.
var weekdayOrder = [7]rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// AvailabilityBuilder derives, for each user, the AvailableBlocks implied
// by intersecting that user's weekly calendar pattern with the horizon
// and removing days covered by a leave (spec §4.2).
type AvailabilityBuilder struct{}

// NewAvailabilityBuilder returns a stateless AvailabilityBuilder.
func NewAvailabilityBuilder() *AvailabilityBuilder {
	return &AvailabilityBuilder{}
}

// Build returns, per user, the sorted AvailableBlocks for the horizon
// [d0, d0+days), and an initialized ledger with an empty hour-set for
// every user/date pair in that horizon.
func (b *AvailabilityBuilder) Build(
	tasks []domain.Task,
	slots []domain.CalendarSlot,
	leaves []domain.Leave,
	d0 time.Time,
	days int,
) (map[int][]domain.AvailableBlock, *OccupancyLedger) {
	userOf := make(map[int]int, len(tasks)) // taskID -> userID
	for _, t := range tasks {
		userOf[t.ID] = t.UserID
	}

	slotsByUser := b.calendarSlotsByUser(tasks, slots, userOf)
	leavesByUser := b.leavesByUser(leaves, userOf)

	horizonEnd := d0.AddDate(0, 0, days-1)

	blocksByUser := make(map[int][]domain.AvailableBlock)
	ledger := NewOccupancyLedger()

	for userID, userSlots := range slotsByUser {
		blocks := b.blocksForUser(userID, userSlots, d0, horizonEnd)
		blocks = b.removeLeaveDays(blocks, leavesByUser[userID])
		sort.Slice(blocks, func(i, j int) bool {
			return blocks[i].StartDatetime.Before(blocks[j].StartDatetime)
		})
		blocksByUser[userID] = blocks
		b.initLedgerDates(ledger, userID, d0, days)
	}

	return blocksByUser, ledger
}

func (b *AvailabilityBuilder) calendarSlotsByUser(
	tasks []domain.Task, slots []domain.CalendarSlot, userOf map[int]int,
) map[int][]domain.CalendarSlot {
	byUser := make(map[int][]domain.CalendarSlot)
	for _, s := range slots {
		userID, ok := userOf[s.TaskID]
		if !ok {
			continue
		}
		byUser[userID] = append(byUser[userID], s)
	}
	for userID, userSlots := range byUser {
		byUser[userID] = domain.DedupeCalendarSlots(userSlots)
	}
	return byUser
}

func (b *AvailabilityBuilder) leavesByUser(leaves []domain.Leave, userOf map[int]int) map[int][]domain.Leave {
	byUser := make(map[int][]domain.Leave)
	for _, l := range leaves {
		userID, ok := userOf[l.TaskID]
		if !ok {
			continue
		}
		byUser[userID] = append(byUser[userID], l)
	}
	return byUser
}

// blocksForUser expands each weekly (dayofweek, hour_from, hour_to)
// triple into concrete per-date AvailableBlocks across the horizon, using
// an RFC-5545 WEEKLY rrule for the date expansion instead of a hand-rolled
// weekday loop.
func (b *AvailabilityBuilder) blocksForUser(
	userID int, slots []domain.CalendarSlot, d0, horizonEnd time.Time,
) []domain.AvailableBlock {
	var blocks []domain.AvailableBlock

	for _, slot := range slots {
		if slot.HourTo-slot.HourFrom <= 0 {
			continue
		}

		rule, err := rrule.NewRRule(rrule.ROption{
			Freq:      rrule.WEEKLY,
			Byweekday: []rrule.Weekday{weekdayOrder[slot.DayOfWeek]},
			Dtstart:   d0,
			Until:     horizonEnd,
		})
		if err != nil {
			continue
		}

		for _, occurrence := range rule.All() {
			start := time.Date(occurrence.Year(), occurrence.Month(), occurrence.Day(), slot.HourFrom, 0, 0, 0, time.UTC)
			end := time.Date(occurrence.Year(), occurrence.Month(), occurrence.Day(), slot.HourTo, 0, 0, 0, time.UTC)
			blocks = append(blocks, domain.AvailableBlock{
				UserID:        userID,
				StartDatetime: start,
				EndDatetime:   end,
				Weekday:       slot.DayOfWeek,
			})
		}
	}

	return blocks
}

// removeLeaveDays drops every block whose date is covered by any leave;
// a block is dropped whole, never partially trimmed (spec §4.2).
func (b *AvailabilityBuilder) removeLeaveDays(blocks []domain.AvailableBlock, leaves []domain.Leave) []domain.AvailableBlock {
	if len(leaves) == 0 {
		return blocks
	}
	out := blocks[:0:0]
	for _, block := range blocks {
		covered := false
		for _, leave := range leaves {
			if leave.Covers(block.Date()) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, block)
		}
	}
	return out
}

func (b *AvailabilityBuilder) initLedgerDates(ledger *OccupancyLedger, userID int, d0 time.Time, days int) {
	if ledger.occupied[userID] == nil {
		ledger.occupied[userID] = make(map[int64]map[int]struct{})
	}
	for i := 0; i < days; i++ {
		d := d0.AddDate(0, 0, i)
		key := dateKey(d)
		if _, ok := ledger.occupied[userID][key]; !ok {
			ledger.occupied[userID][key] = make(map[int]struct{})
		}
	}
}
