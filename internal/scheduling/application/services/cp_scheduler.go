package services

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/orbita-labs/taskscheduler/internal/scheduling/domain"
	"github.com/orbita-labs/taskscheduler/pkg/config"
	"github.com/teambition/rrule-go"
	"golang.org/x/sync/errgroup"
)

const (
	fragmentationPenalty  = 0.1
	cpHorizonMinExtension = 7
	cpMaxHorizonAttempts  = 12
)

// ContiguousSlot is a maximal merged weekly working-hours interval for one
// task, expanded to a concrete date within the horizon (spec §4.5.1).
type ContiguousSlot struct {
	TaskID   int
	UserID   int
	Date     time.Time
	HourFrom int
	HourTo   int
}

// DurationHours returns the slot's length in whole hours.
func (s ContiguousSlot) DurationHours() int { return s.HourTo - s.HourFrom }

// mergedSlotKey identifies the underlying (user, datetime range) a
// ContiguousSlot occupies, independent of which task enumerated it — the
// unit the non-overlap constraint is enforced on (spec §4.5.3).
type mergedSlotKey struct {
	userID   int
	date     int64
	hourFrom int
	hourTo   int
}

func (s ContiguousSlot) mergedKey() mergedSlotKey {
	return mergedSlotKey{userID: s.UserID, date: dateKey(s.Date), hourFrom: s.HourFrom, hourTo: s.HourTo}
}

// cpAssignment is one (task, slot) pair chosen by a solve attempt, with
// the number of hours of that slot the task consumes.
type cpAssignment struct {
	slot     ContiguousSlot
	duration int
}

// CPScheduler is the constraint-style scheduler (spec §4.5): it enumerates
// contiguous slots per task, then searches for an assignment of
// task/slot/duration triples that covers every task's required hours
// without two tasks sharing a merged slot, minimizing the priority-weighted
// earliness + fragmentation objective.
//
// There is no CP-SAT (or other ILP/CP) solver binding available to this
// module (see DESIGN.md), so the search itself is a hand-written
// randomized-restart local search: each of cfg.NumSearchWorkers goroutines
// independently builds a candidate assignment, and the best-scoring
// feasible one wins — the idiomatic-Go stand-in for OR-tools'
// num_search_workers parameter (spec §5).
type CPScheduler struct{}

// NewCPScheduler returns a CPScheduler.
func NewCPScheduler() *CPScheduler {
	return &CPScheduler{}
}

// Schedule runs the CP interval scheduler against tasks, honoring the
// horizon-extension retry loop from spec §4.5.5. occupied, when non-nil,
// is an already-committed ledger (e.g. from a prior greedy pass) whose
// hours are excluded from every enumerated slot before the search runs —
// this is what lets residual CP fill-in (spec §4.1) avoid re-claiming
// hours the greedy pass already placed.
func (c *CPScheduler) Schedule(
	ctx context.Context,
	tasks []domain.Task,
	calendarSlots []domain.CalendarSlot,
	leaves []domain.Leave,
	d0 time.Time,
	cfg config.SchedulerConfig,
	occupied *OccupancyLedger,
) *domain.Solution {
	horizonDays := cfg.InitialHorizonDays
	extensions := 0

	var best *solveAttempt
	for {
		slots := enumerateContiguousSlots(tasks, calendarSlots, leaves, d0, horizonDays)
		slots = filterSlotsAgainstLedger(slots, occupied)
		best = c.solveOnce(ctx, tasks, slots, d0, cfg)

		if best.feasible || horizonDays >= cfg.MaxHorizonDays || extensions >= cpMaxHorizonAttempts {
			break
		}

		extensions++
		extended := int(math.Ceil(float64(horizonDays) * cfg.HorizonExtensionFactor))
		if extended < horizonDays+cpHorizonMinExtension {
			extended = horizonDays + cpHorizonMinExtension
		}
		if extended > cfg.MaxHorizonDays {
			extended = cfg.MaxHorizonDays
		}
		horizonDays = extended
	}

	solution := best.toSolution(tasks)
	solution.HorizonDays = horizonDays
	solution.HorizonExtensions = extensions
	solution.AlgorithmUsed = domain.AlgorithmOrtools
	solution.Finalize()

	if best.feasible {
		for _, task := range tasks {
			if len(solution.Tasks[task.ID]) != task.HoursNeeded() {
				domain.PanicInvariant("cp_scheduler", "assigned duration sum does not match the task's required hours")
			}
		}
		solution.Status = domain.StatusFeasible
	} else if solution.TasksScheduled > 0 {
		solution.Status = domain.StatusPartial
	} else {
		solution.Status = domain.StatusFailed
	}

	ValidateOverlaps(solution)
	return solution
}

// solveAttempt is the outcome of one horizon iteration: the best
// assignment any worker found, plus the solver statistics spec §6
// requires for the CP path.
type solveAttempt struct {
	assignments map[int][]cpAssignment // taskID -> chosen (slot,duration) pairs
	objective   float64
	feasible    bool
	numBranches int
	numConflicts int
	numBooleans int
	numConstraints int
}

// solveOnce runs cfg.NumSearchWorkers independent randomized-restart
// passes concurrently, bounded by cfg.OrtoolsTimeLimit, and keeps the
// best-scoring feasible result (spec §4.5.5, §5).
func (c *CPScheduler) solveOnce(
	ctx context.Context,
	tasks []domain.Task,
	slots []ContiguousSlot,
	d0 time.Time,
	cfg config.SchedulerConfig,
) *solveAttempt {
	deadline, cancel := context.WithTimeout(ctx, cfg.OrtoolsTimeLimit)
	defer cancel()

	results := make([]*solveAttempt, cfg.NumSearchWorkers)
	group, gctx := errgroup.WithContext(deadline)
	group.SetLimit(cfg.NumSearchWorkers)

	for w := 0; w < cfg.NumSearchWorkers; w++ {
		workerIndex := w
		group.Go(func() error {
			results[workerIndex] = runOneSearchPass(gctx, tasks, slots, d0, cfg.Seed+int64(workerIndex))
			return nil
		})
	}
	_ = group.Wait() // worker passes never return an error; ctx cancellation just stops early

	best := &solveAttempt{feasible: false, objective: math.Inf(1)}
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.feasible && (!best.feasible || r.objective < best.objective) {
			best = r
			continue
		}
		if !r.feasible && !best.feasible && (best.assignments == nil || r.numBranches > best.numBranches) {
			// among infeasible attempts, keep the one that covered the most
			best = r
		}
	}

	numConstraints := 0
	taskCount := make(map[int]struct{})
	for _, s := range slots {
		taskCount[s.TaskID] = struct{}{}
	}
	numConstraints = len(taskCount) + countMergedSlots(slots)
	best.numConstraints = numConstraints
	best.numBooleans = len(slots)
	return best
}

func countMergedSlots(slots []ContiguousSlot) int {
	seen := make(map[mergedSlotKey]struct{})
	for _, s := range slots {
		seen[s.mergedKey()] = struct{}{}
	}
	return len(seen)
}

// runOneSearchPass builds one candidate assignment: tasks are visited in
// a randomized order (seeded for determinism across otherwise-identical
// runs), and for each task its slots are tried in ascending
// priority-weighted-earliness order, claiming whatever merged slots are
// still unclaimed until the task's hours are covered or no slot remains.
func runOneSearchPass(ctx context.Context, tasks []domain.Task, slots []ContiguousSlot, d0 time.Time, seed int64) *solveAttempt {
	rng := rand.New(rand.NewSource(seed))

	slotsByTask := make(map[int][]ContiguousSlot)
	for _, s := range slots {
		slotsByTask[s.TaskID] = append(slotsByTask[s.TaskID], s)
	}

	order := make([]domain.Task, len(tasks))
	copy(order, tasks)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	claimed := make(map[mergedSlotKey]int) // mergedKey -> taskID that claimed it
	assignments := make(map[int][]cpAssignment)
	objective := 0.0
	fullyCovered := 0

	for _, task := range order {
		select {
		case <-ctx.Done():
			return &solveAttempt{assignments: assignments, objective: objective, feasible: false, numBranches: fullyCovered}
		default:
		}

		needed := task.HoursNeeded()
		if needed == 0 {
			fullyCovered++
			continue
		}

		candidates := append([]ContiguousSlot(nil), slotsByTask[task.ID]...)
		priorityWeight := cpPriorityWeight(task)
		sort.Slice(candidates, func(i, j int) bool {
			return daysFromStart(d0, candidates[i].Date) < daysFromStart(d0, candidates[j].Date)
		})

		remaining := needed
		for _, slot := range candidates {
			if remaining <= 0 {
				break
			}
			key := slot.mergedKey()
			if _, taken := claimed[key]; taken {
				continue
			}
			duration := slot.DurationHours()
			if duration > remaining {
				duration = remaining
			}
			claimed[key] = task.ID
			assignments[task.ID] = append(assignments[task.ID], cpAssignment{slot: slot, duration: duration})
			remaining -= duration
			objective += priorityWeight*float64(daysFromStart(d0, slot.Date)) + fragmentationPenalty
		}

		if remaining == 0 {
			fullyCovered++
		}
	}

	return &solveAttempt{
		assignments: assignments,
		objective:   objective,
		feasible:    fullyCovered == len(tasks),
		numBranches: fullyCovered,
	}
}

// cpPriorityWeight is the CP objective's earliness weight,
// 100/(priority_score+1): a lower priority_score gets a higher weight, the
// inverse of the greedy ordering (see SPEC_FULL.md §11).
func cpPriorityWeight(task domain.Task) float64 {
	return 100.0 / (task.PriorityScore + 1.0)
}

func daysFromStart(d0, date time.Time) int {
	return int(date.Sub(d0).Hours() / 24)
}

// toSolution extracts ScheduledSlot entries from the chosen assignments
// (spec §4.5.6): each assignment's duration hours fill in left-to-right
// starting at the slot's start hour.
func (a *solveAttempt) toSolution(tasks []domain.Task) *domain.Solution {
	solution := domain.NewSolution(len(tasks))

	for _, task := range tasks {
		taskAssignments := a.assignments[task.ID]
		var slots []domain.ScheduledSlot
		for _, assign := range taskAssignments {
			for h := 0; h < assign.duration; h++ {
				slots = append(slots, domain.ScheduledSlot{
					TaskID: task.ID,
					UserID: assign.slot.UserID,
					Date:   assign.slot.Date,
					Hour:   assign.slot.HourFrom + h,
				})
			}
		}
		solution.Tasks[task.ID] = slots

		scheduled := task.HoursNeeded() == 0 || len(slots) >= task.HoursNeeded()
		outcome := domain.TaskOutcome{Scheduled: scheduled}
		if !scheduled {
			outcome.Reason = "resource_shortage"
			outcome.AvailableBlocks = len(taskAssignments)
		}
		solution.TaskOutcomes[task.ID] = outcome
	}

	objective := a.objective
	numBranches := a.numBranches
	numConflicts := a.numConflicts
	numBooleans := a.numBooleans
	numConstraints := a.numConstraints
	solution.ObjectiveValue = &objective
	solution.NumBranches = &numBranches
	solution.NumConflicts = &numConflicts
	solution.NumBooleans = &numBooleans
	solution.NumConstraints = &numConstraints

	return solution
}

// enumerateContiguousSlots implements spec §4.5.1: group each task's
// calendar rows by day-of-week, sort by hour_from, merge adjacent
// intervals, then expand every merged interval across the horizon's
// matching weekdays, dropping any date covered by the task's user's leave.
func enumerateContiguousSlots(tasks []domain.Task, calendarSlots []domain.CalendarSlot, leaves []domain.Leave, d0 time.Time, horizonDays int) []ContiguousSlot {
	userOf := make(map[int]int, len(tasks))
	for _, t := range tasks {
		userOf[t.ID] = t.UserID
	}

	leavesByUser := make(map[int][]domain.Leave)
	for _, l := range leaves {
		userID, ok := userOf[l.TaskID]
		if !ok {
			continue
		}
		leavesByUser[userID] = append(leavesByUser[userID], l)
	}

	byTaskAndDay := make(map[int]map[int][]domain.CalendarSlot)
	for _, s := range calendarSlots {
		if byTaskAndDay[s.TaskID] == nil {
			byTaskAndDay[s.TaskID] = make(map[int][]domain.CalendarSlot)
		}
		byTaskAndDay[s.TaskID][s.DayOfWeek] = append(byTaskAndDay[s.TaskID][s.DayOfWeek], s)
	}

	horizonEnd := d0.AddDate(0, 0, horizonDays-1)

	var slots []ContiguousSlot
	for taskID, byDay := range byTaskAndDay {
		userID := userOf[taskID]
		userLeaves := leavesByUser[userID]

		for weekday, rows := range byDay {
			merged := mergeAdjacentIntervals(rows)
			for _, interval := range merged {
				rule, err := rrule.NewRRule(rrule.ROption{
					Freq:      rrule.WEEKLY,
					Byweekday: []rrule.Weekday{weekdayOrder[weekday]},
					Dtstart:   d0,
					Until:     horizonEnd,
				})
				if err != nil {
					continue
				}

				for _, occurrence := range rule.All() {
					date := time.Date(occurrence.Year(), occurrence.Month(), occurrence.Day(), 0, 0, 0, 0, time.UTC)
					if leaveCovers(userLeaves, date) {
						continue
					}
					slots = append(slots, ContiguousSlot{
						TaskID:   taskID,
						UserID:   userID,
						Date:     date,
						HourFrom: interval.hourFrom,
						HourTo:   interval.hourTo,
					})
				}
			}
		}
	}

	return slots
}

type hourInterval struct {
	hourFrom, hourTo int
}

// mergeAdjacentIntervals sorts by hour_from and merges runs where the next
// interval's hour_from equals the current interval's hour_to (spec
// §4.5.1).
func mergeAdjacentIntervals(rows []domain.CalendarSlot) []hourInterval {
	sorted := make([]domain.CalendarSlot, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].HourFrom < sorted[j].HourFrom })

	var merged []hourInterval
	for _, row := range sorted {
		if len(merged) > 0 && merged[len(merged)-1].hourTo == row.HourFrom {
			merged[len(merged)-1].hourTo = row.HourTo
			continue
		}
		merged = append(merged, hourInterval{hourFrom: row.HourFrom, hourTo: row.HourTo})
	}
	return merged
}

func leaveCovers(leaves []domain.Leave, date time.Time) bool {
	for _, l := range leaves {
		if l.Covers(date) {
			return true
		}
	}
	return false
}

// filterSlotsAgainstLedger truncates each slot down to its maximal
// free-hour sub-runs per an already-committed ledger, splitting one slot
// into several shorter ones where a committed hour falls in its middle
// and dropping it entirely where no hour remains free. A nil ledger is a
// no-op.
func filterSlotsAgainstLedger(slots []ContiguousSlot, ledger *OccupancyLedger) []ContiguousSlot {
	if ledger == nil {
		return slots
	}

	var out []ContiguousSlot
	for _, s := range slots {
		runStart := -1
		flush := func(end int) {
			if runStart >= 0 {
				out = append(out, ContiguousSlot{TaskID: s.TaskID, UserID: s.UserID, Date: s.Date, HourFrom: runStart, HourTo: end})
				runStart = -1
			}
		}
		for h := s.HourFrom; h < s.HourTo; h++ {
			if ledger.IsFree(s.UserID, s.Date, h) {
				if runStart < 0 {
					runStart = h
				}
				continue
			}
			flush(h)
		}
		flush(s.HourTo)
	}
	return out
}

// occupancyFromSolution builds a ledger pre-populated with every slot a
// prior solve already committed, used to seed a residual CP pass so it
// never re-claims an hour the greedy pass already placed.
func occupancyFromSolution(solution *domain.Solution) *OccupancyLedger {
	ledger := NewOccupancyLedger()
	for _, slots := range solution.Tasks {
		if len(slots) > 0 {
			ledger.Commit(slots)
		}
	}
	return ledger
}
