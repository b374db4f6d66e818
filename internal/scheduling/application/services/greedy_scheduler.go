package services

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/orbita-labs/taskscheduler/internal/scheduling/domain"
	"github.com/orbita-labs/taskscheduler/pkg/config"
)

const (
	minHoursPerWeek           = 40.0
	horizonBufferFactor       = 1.5
	successRateTarget         = 0.8
	flexibleGapThresholdHours = 8
	multiWeekThresholdHours   = 16
	maxConsecutiveGapHours    = 2
	maxHoursPerWeekInDistribution = 8
	maxHorizonExtensionAttempts   = 5
)

// GreedyScheduler is the fast constructive scheduler (spec §4.4): it
// orders tasks deterministically, then for each task tries a cascade of
// placement strategies against that user's available hours, committing
// the first strategy that succeeds.
type GreedyScheduler struct {
	availability *AvailabilityBuilder
}

// NewGreedyScheduler returns a GreedyScheduler.
func NewGreedyScheduler() *GreedyScheduler {
	return &GreedyScheduler{availability: NewAvailabilityBuilder()}
}

// Schedule runs the full greedy pass, including the horizon-extension
// retry loop (spec §4.4.5) and post-solve overlap validation (§4.4.6).
func (g *GreedyScheduler) Schedule(
	tasks []domain.Task,
	calendarSlots []domain.CalendarSlot,
	leaves []domain.Leave,
	d0 time.Time,
	cfg config.SchedulerConfig,
) *domain.Solution {
	horizonDays := computeInitialHorizon(tasks, cfg.InitialHorizonDays, cfg.MaxHorizonDays)

	var solution *domain.Solution
	extensions := 0

	for {
		blocksByUser, ledger := g.availability.Build(tasks, calendarSlots, leaves, d0, horizonDays)
		solution = g.runOnePass(tasks, blocksByUser, ledger)
		solution.HorizonDays = horizonDays
		solution.AlgorithmUsed = domain.AlgorithmGreedy
		solution.Finalize()

		if solution.SuccessRate >= successRateTarget {
			break
		}
		if horizonDays >= cfg.MaxHorizonDays || extensions >= maxHorizonExtensionAttempts {
			break
		}

		extensions++
		horizonDays = int(math.Min(float64(horizonDays*2), float64(cfg.MaxHorizonDays)))
	}

	solution.HorizonExtensions = extensions
	switch {
	case solution.TasksScheduled == 0:
		solution.Status = domain.StatusFailed
	case solution.TasksScheduled < solution.TasksTotal:
		solution.Status = domain.StatusPartial
	default:
		solution.Status = domain.StatusFeasible
	}

	ValidateOverlaps(solution)
	return solution
}

// runOnePass schedules every task, in the §4.4.1 sort order, against a
// freshly built availability/ledger pair.
func (g *GreedyScheduler) runOnePass(
	tasks []domain.Task,
	blocksByUser map[int][]domain.AvailableBlock,
	ledger *OccupancyLedger,
) *domain.Solution {
	solution := domain.NewSolution(len(tasks))

	ordered := make([]domain.Task, len(tasks))
	copy(ordered, tasks)
	sortTasksGreedy(ordered)

	for _, task := range ordered {
		hoursNeeded := task.HoursNeeded()
		if hoursNeeded == 0 {
			solution.Tasks[task.ID] = nil
			solution.TaskOutcomes[task.ID] = domain.TaskOutcome{Scheduled: true}
			continue
		}

		blocks := blocksByUser[task.UserID]
		slots, ok := placeTask(task, hoursNeeded, blocks, ledger)
		if !ok {
			solution.TaskOutcomes[task.ID] = domain.TaskOutcome{
				Scheduled:       false,
				Reason:          "resource_shortage",
				AvailableBlocks: len(blocks),
				FreeHours:       float64(totalFreeHours(blocks, ledger)),
			}
			continue
		}

		ledger.Commit(slots)
		solution.Tasks[task.ID] = slots
		solution.TaskOutcomes[task.ID] = domain.TaskOutcome{Scheduled: true}
	}

	return solution
}

// sortTasksGreedy applies the six-key composite ordering from spec
// §4.4.1, highest-precedence key first.
func sortTasksGreedy(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]

		if a.PriorityScore != b.PriorityScore {
			return a.PriorityScore > b.PriorityScore
		}
		if a.HierarchyLevel != b.HierarchyLevel {
			return a.HierarchyLevel < b.HierarchyLevel
		}
		if a.IsLeafTask != b.IsLeafTask {
			return a.IsLeafTask
		}
		if a.RemainingHours != b.RemainingHours {
			return a.RemainingHours > b.RemainingHours
		}
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.ID < b.ID
	})
}

// computeInitialHorizon applies spec §4.4.2: per user, weeks_needed =
// ceil(total_hours/40), days_needed = weeks*7, days_with_buffer =
// floor(days_needed*1.5); the horizon is the max of the caller's D0 and
// every user's days_with_buffer, capped at maxHorizonDays.
func computeInitialHorizon(tasks []domain.Task, d0Days, maxHorizonDays int) int {
	hoursByUser := make(map[int]float64)
	for _, t := range tasks {
		hoursByUser[t.UserID] += t.RemainingHours
	}

	horizon := d0Days
	for _, hours := range hoursByUser {
		weeksNeeded := math.Ceil(hours / minHoursPerWeek)
		daysNeeded := weeksNeeded * 7
		daysWithBuffer := math.Floor(daysNeeded * horizonBufferFactor)
		if int(daysWithBuffer) > horizon {
			horizon = int(daysWithBuffer)
		}
	}

	if horizon > maxHorizonDays {
		horizon = maxHorizonDays
	}
	return horizon
}

// placeTask tries the four placement strategies from spec §4.4.3 in
// order, returning the first that succeeds.
func placeTask(task domain.Task, hoursNeeded int, blocks []domain.AvailableBlock, ledger *OccupancyLedger) ([]domain.ScheduledSlot, bool) {
	if slots, ok := placeSingleDayConsecutive(task, hoursNeeded, blocks, ledger); ok {
		return slots, true
	}
	if slots, ok := placeMultiDayConsecutive(task, hoursNeeded, blocks, ledger); ok {
		return slots, true
	}
	if hoursNeeded > flexibleGapThresholdHours {
		if slots, ok := placeFlexibleWithGaps(task, hoursNeeded, blocks, ledger); ok {
			return slots, true
		}
	}
	if hoursNeeded > multiWeekThresholdHours {
		if slots, ok := placeMultiWeekDistribution(task, hoursNeeded, blocks, ledger); ok {
			return slots, true
		}
	}
	return nil, false
}

// freeHoursInBlock returns the free (not yet committed) hours of a block,
// in ascending order.
func freeHoursInBlock(userID int, block domain.AvailableBlock, ledger *OccupancyLedger) []int {
	var hours []int
	for h := block.StartHour(); h < block.EndHour(); h++ {
		if ledger.IsFree(userID, block.Date(), h) {
			hours = append(hours, h)
		}
	}
	return hours
}

func toSlots(task domain.Task, date time.Time, hours []int) []domain.ScheduledSlot {
	slots := make([]domain.ScheduledSlot, len(hours))
	for i, h := range hours {
		slots[i] = domain.ScheduledSlot{TaskID: task.ID, UserID: task.UserID, Date: date, Hour: h}
	}
	return slots
}

// placeSingleDayConsecutive is strategy 1: within each block (ascending
// start time) find the longest run of consecutive free hours; take it if
// it covers the task.
func placeSingleDayConsecutive(task domain.Task, hoursNeeded int, blocks []domain.AvailableBlock, ledger *OccupancyLedger) ([]domain.ScheduledSlot, bool) {
	for _, block := range blocks {
		if block.DurationHours() < hoursNeeded {
			continue
		}
		free := freeHoursInBlock(task.UserID, block, ledger)
		run := longestConsecutiveRun(free)
		if len(run) >= hoursNeeded {
			return toSlots(task, block.Date(), run[:hoursNeeded]), true
		}
	}
	return nil, false
}

// longestConsecutiveRun returns the longest run of consecutive integers
// within a sorted slice.
func longestConsecutiveRun(hours []int) []int {
	var best, current []int
	for i, h := range hours {
		if i == 0 || h != hours[i-1]+1 {
			current = []int{h}
		} else {
			current = append(current, h)
		}
		if len(current) > len(best) {
			best = current
		}
	}
	return best
}

// placeMultiDayConsecutive is strategy 2: walk blocks in chronological
// order, greedily appending free hours (ascending within each block)
// until hoursNeeded are collected; no gap limit across blocks or days.
func placeMultiDayConsecutive(task domain.Task, hoursNeeded int, blocks []domain.AvailableBlock, ledger *OccupancyLedger) ([]domain.ScheduledSlot, bool) {
	var slots []domain.ScheduledSlot
	for _, block := range blocks {
		for _, h := range freeHoursInBlock(task.UserID, block, ledger) {
			slots = append(slots, domain.ScheduledSlot{TaskID: task.ID, UserID: task.UserID, Date: block.Date(), Hour: h})
			if len(slots) == hoursNeeded {
				return slots, true
			}
		}
	}
	return nil, false
}

// placeFlexibleWithGaps is strategy 3 (h>8): per day, try the best
// consecutive run first; if that day alone can't finish the task, stitch
// free hours across that day's blocks allowing a gap of up to
// maxConsecutiveGapHours between consecutively chosen hours, then
// continue to the next day.
func placeFlexibleWithGaps(task domain.Task, hoursNeeded int, blocks []domain.AvailableBlock, ledger *OccupancyLedger) ([]domain.ScheduledSlot, bool) {
	byDay := groupBlocksByDate(blocks)

	var slots []domain.ScheduledSlot
	for _, day := range byDay {
		free := freeHoursForDay(task.UserID, day.blocks, ledger)
		if len(free) == 0 {
			continue
		}

		remaining := hoursNeeded - len(slots)
		if run := longestConsecutiveRun(free); len(run) >= remaining {
			for _, h := range run[:remaining] {
				slots = append(slots, domain.ScheduledSlot{TaskID: task.ID, UserID: task.UserID, Date: day.date, Hour: h})
			}
			return slots, true
		}

		picked := stitchWithGapLimit(free, maxConsecutiveGapHours)
		for _, h := range picked {
			slots = append(slots, domain.ScheduledSlot{TaskID: task.ID, UserID: task.UserID, Date: day.date, Hour: h})
			if len(slots) == hoursNeeded {
				return slots, true
			}
		}
	}
	return nil, false
}

// stitchWithGapLimit greedily selects from a sorted list of free hours,
// accepting any next hour whose gap from the last picked hour is <=
// maxGap.
func stitchWithGapLimit(free []int, maxGap int) []int {
	if len(free) == 0 {
		return nil
	}
	picked := []int{free[0]}
	for _, h := range free[1:] {
		if h-picked[len(picked)-1] <= maxGap+1 {
			picked = append(picked, h)
		}
	}
	return picked
}

// placeMultiWeekDistribution is strategy 4 (h>16): group free hours by
// ISO calendar week, taking up to 8 hours per week in chronological order
// until hoursNeeded are collected.
func placeMultiWeekDistribution(task domain.Task, hoursNeeded int, blocks []domain.AvailableBlock, ledger *OccupancyLedger) ([]domain.ScheduledSlot, bool) {
	byDay := groupBlocksByDate(blocks)

	weekHoursUsed := make(map[string]int)
	var slots []domain.ScheduledSlot

	for _, day := range byDay {
		year, week := day.date.ISOWeek()
		weekKey := isoWeekKey(year, week)
		if weekHoursUsed[weekKey] >= maxHoursPerWeekInDistribution {
			continue
		}

		free := freeHoursForDay(task.UserID, day.blocks, ledger)
		for _, h := range free {
			if weekHoursUsed[weekKey] >= maxHoursPerWeekInDistribution {
				break
			}
			slots = append(slots, domain.ScheduledSlot{TaskID: task.ID, UserID: task.UserID, Date: day.date, Hour: h})
			weekHoursUsed[weekKey]++
			if len(slots) == hoursNeeded {
				return slots, true
			}
		}
	}
	return nil, false
}

func isoWeekKey(year, week int) string {
	return fmt.Sprintf("%d-W%02d", year, week)
}

type dayBlocks struct {
	date   time.Time
	blocks []domain.AvailableBlock
}

// groupBlocksByDate groups blocks (already sorted ascending by start
// time) by calendar date, preserving chronological order.
func groupBlocksByDate(blocks []domain.AvailableBlock) []dayBlocks {
	var days []dayBlocks
	index := make(map[int64]int)

	for _, block := range blocks {
		key := dateKey(block.Date())
		if i, ok := index[key]; ok {
			days[i].blocks = append(days[i].blocks, block)
			continue
		}
		index[key] = len(days)
		days = append(days, dayBlocks{date: block.Date(), blocks: []domain.AvailableBlock{block}})
	}
	return days
}

// freeHoursForDay returns the sorted, deduplicated free hours across all
// of a day's blocks.
func freeHoursForDay(userID int, blocks []domain.AvailableBlock, ledger *OccupancyLedger) []int {
	seen := make(map[int]struct{})
	var hours []int
	for _, block := range blocks {
		for _, h := range freeHoursInBlock(userID, block, ledger) {
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			hours = append(hours, h)
		}
	}
	sort.Ints(hours)
	return hours
}

func totalFreeHours(blocks []domain.AvailableBlock, ledger *OccupancyLedger) int {
	total := 0
	for _, block := range blocks {
		total += len(freeHoursInBlock(block.UserID, block, ledger))
	}
	return total
}
