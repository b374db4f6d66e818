package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/orbita-labs/taskscheduler/internal/scheduling/domain"
	"github.com/orbita-labs/taskscheduler/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// mustTask builds a valid Task, failing the test on invalid input.
func mustTask(t *testing.T, id, userID int, remainingHours, priorityScore float64) domain.Task {
	t.Helper()
	task, err := domain.NewTask(id, "task", userID, remainingHours, priorityScore)
	require.NoError(t, err)
	return task
}

// weekdayCalendar returns a Monday-Friday, 9-17 calendar slot for a task.
func weekdayCalendar(taskID int) []domain.CalendarSlot {
	var slots []domain.CalendarSlot
	for day := 0; day <= 4; day++ {
		slots = append(slots, domain.CalendarSlot{TaskID: taskID, DayOfWeek: day, HourFrom: 9, HourTo: 17})
	}
	return slots
}

func TestSortTasksGreedy_SixKeyOrder(t *testing.T) {
	leaf := mustTask(t, 10, 1, 5, 1)
	leaf.IsLeafTask = true
	parent := mustTask(t, 11, 1, 5, 1)
	parent.IsLeafTask = false

	tasks := []domain.Task{
		mustTask(t, 3, 2, 4, 5),  // lowest priority
		mustTask(t, 1, 1, 4, 10), // highest priority, lowest id
		mustTask(t, 2, 1, 8, 10), // highest priority, more hours
	}
	sortTasksGreedy(tasks)

	assert.Equal(t, 10.0, tasks[0].PriorityScore)
	assert.Equal(t, 8.0, tasks[0].RemainingHours) // among equal priority, more hours first
	assert.Equal(t, 3, tasks[2].ID)               // lowest priority last
}

func TestSortTasksGreedy_HierarchyAndLeafBreakTies(t *testing.T) {
	parent := mustTask(t, 1, 1, 10, 5)
	parent.HierarchyLevel = 0
	parent.IsLeafTask = false

	child := mustTask(t, 2, 1, 10, 5)
	child.HierarchyLevel = 1
	child.IsLeafTask = true

	leafSameLevel := mustTask(t, 3, 1, 10, 5)
	leafSameLevel.HierarchyLevel = 0
	leafSameLevel.IsLeafTask = true

	tasks := []domain.Task{parent, child, leafSameLevel}
	sortTasksGreedy(tasks)

	// hierarchy_level ascending outranks is_leaf_task, so level-0 tasks sort
	// first; among those, leaf wins over non-leaf on the is_leaf_task key.
	assert.Equal(t, 0, tasks[0].HierarchyLevel)
	assert.True(t, tasks[0].IsLeafTask)
	assert.Equal(t, 1, tasks[2].HierarchyLevel)
}

func TestSortTasksGreedy_Deterministic(t *testing.T) {
	build := func() []domain.Task {
		return []domain.Task{
			mustTask(t, 5, 3, 4, 2),
			mustTask(t, 2, 1, 4, 2),
			mustTask(t, 1, 1, 4, 2),
			mustTask(t, 4, 2, 4, 2),
		}
	}

	first := build()
	sortTasksGreedy(first)
	second := build()
	sortTasksGreedy(second)

	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
	// all ties broken down to user_id then id ascending
	assert.Equal(t, []int{1, 1, 2, 3}, []int{first[0].UserID, first[1].UserID, first[2].UserID, first[3].UserID})
}

func TestComputeInitialHorizon_UsesWorstCaseUser(t *testing.T) {
	tasks := []domain.Task{
		mustTask(t, 1, 1, 40, 1),  // 1 week -> 7 days -> *1.5 = 10
		mustTask(t, 2, 2, 400, 1), // 10 weeks -> 70 days -> *1.5 = 105
	}
	horizon := computeInitialHorizon(tasks, 28, 3650)
	assert.Equal(t, 105, horizon)
}

func TestComputeInitialHorizon_NeverBelowCallerFloor(t *testing.T) {
	tasks := []domain.Task{mustTask(t, 1, 1, 1, 1)}
	horizon := computeInitialHorizon(tasks, 28, 3650)
	assert.Equal(t, 28, horizon)
}

func TestComputeInitialHorizon_CapsAtMaxHorizon(t *testing.T) {
	tasks := []domain.Task{mustTask(t, 1, 1, 100000, 1)}
	horizon := computeInitialHorizon(tasks, 28, 365)
	assert.Equal(t, 365, horizon)
}

func TestGreedyScheduler_SingleDayConsecutivePlacement(t *testing.T) {
	task := mustTask(t, 1, 100, 4, 10)
	tasks := []domain.Task{task}
	slots := weekdayCalendar(task.ID)
	d0 := d(2026, 8, 3) // Monday

	sched := NewGreedyScheduler()
	cfg := config.DefaultSchedulerConfig()
	solution := sched.Schedule(tasks, slots, nil, d0, cfg)

	require.Equal(t, 1, solution.TasksScheduled)
	committed := solution.Tasks[task.ID]
	require.Len(t, committed, 4)
	for _, s := range committed {
		assert.True(t, s.Date.Equal(d0))
	}
	assert.Equal(t, []int{9, 10, 11, 12}, []int{committed[0].Hour, committed[1].Hour, committed[2].Hour, committed[3].Hour})
}

func TestGreedyScheduler_NoDoubleBooking(t *testing.T) {
	taskA := mustTask(t, 1, 100, 8, 10)
	taskB := mustTask(t, 2, 100, 8, 9)
	tasks := []domain.Task{taskA, taskB}
	slots := append(weekdayCalendar(taskA.ID), weekdayCalendar(taskB.ID)...)
	d0 := d(2026, 8, 3)

	sched := NewGreedyScheduler()
	cfg := config.DefaultSchedulerConfig()
	solution := sched.Schedule(tasks, slots, nil, d0, cfg)

	seen := make(map[string]bool)
	for _, slotList := range solution.Tasks {
		for _, s := range slotList {
			key := fmt.Sprintf("%s:%d", s.Date.Format("2006-01-02"), s.Hour)
			assert.False(t, seen[key], "slot double-booked: %s", key)
			seen[key] = true
		}
	}
	assert.Equal(t, 0, solution.OverlapsDetected)
}

func TestGreedyScheduler_RespectsLeave(t *testing.T) {
	task := mustTask(t, 1, 100, 4, 10)
	tasks := []domain.Task{task}
	slots := weekdayCalendar(task.ID)
	d0 := d(2026, 8, 3) // Monday
	leaves := []domain.Leave{{TaskID: task.ID, DateFrom: d0, DateTo: d0}}

	sched := NewGreedyScheduler()
	cfg := config.DefaultSchedulerConfig()
	solution := sched.Schedule(tasks, slots, leaves, d0, cfg)

	committed := solution.Tasks[task.ID]
	require.NotEmpty(t, committed)
	for _, s := range committed {
		assert.False(t, s.Date.Equal(d0), "task placed on a day the user is on leave")
	}
}

func TestGreedyScheduler_OnlySchedulesFutureBlocks(t *testing.T) {
	task := mustTask(t, 1, 100, 4, 10)
	tasks := []domain.Task{task}
	slots := weekdayCalendar(task.ID)
	d0 := d(2026, 8, 3)

	sched := NewGreedyScheduler()
	cfg := config.DefaultSchedulerConfig()
	solution := sched.Schedule(tasks, slots, nil, d0, cfg)

	for _, s := range solution.Tasks[task.ID] {
		assert.False(t, s.Date.Before(d0))
	}
}

func TestGreedyScheduler_ZeroHourTaskScheduledTrivially(t *testing.T) {
	task := mustTask(t, 1, 100, 0, 10)
	tasks := []domain.Task{task}
	d0 := d(2026, 8, 3)

	sched := NewGreedyScheduler()
	cfg := config.DefaultSchedulerConfig()
	solution := sched.Schedule(tasks, nil, nil, d0, cfg)

	outcome, ok := solution.TaskOutcomes[task.ID]
	require.True(t, ok)
	assert.True(t, outcome.Scheduled)
	assert.Empty(t, solution.Tasks[task.ID])
}

func TestGreedyScheduler_ResourceShortageRecordsDiagnostics(t *testing.T) {
	task := mustTask(t, 1, 100, 999, 10) // far more hours than any small horizon affords
	tasks := []domain.Task{task}
	d0 := d(2026, 8, 3)

	sched := NewGreedyScheduler()
	cfg := config.DefaultSchedulerConfig()
	cfg.MaxHorizonDays = 14 // no calendar slots at all -> guaranteed shortage
	solution := sched.Schedule(tasks, nil, nil, d0, cfg)

	outcome, ok := solution.TaskOutcomes[task.ID]
	require.True(t, ok)
	assert.False(t, outcome.Scheduled)
	assert.Equal(t, "resource_shortage", outcome.Reason)
}

func TestGreedyScheduler_MultiDayConsecutiveWhenSingleDayInsufficient(t *testing.T) {
	task := mustTask(t, 1, 100, 10, 10) // 10h needed, 8h/day available
	tasks := []domain.Task{task}
	slots := weekdayCalendar(task.ID)
	d0 := d(2026, 8, 3)

	sched := NewGreedyScheduler()
	cfg := config.DefaultSchedulerConfig()
	solution := sched.Schedule(tasks, slots, nil, d0, cfg)

	committed := solution.Tasks[task.ID]
	require.Len(t, committed, 10)
	days := make(map[string]struct{})
	for _, s := range committed {
		days[s.Date.Format("2006-01-02")] = struct{}{}
	}
	assert.GreaterOrEqual(t, len(days), 2)
}

func TestPlaceMultiWeekDistribution_CapsEightHoursPerWeek(t *testing.T) {
	task := mustTask(t, 1, 100, 24, 10) // 24h, well above the multi-week threshold
	blocks := make([]domain.AvailableBlock, 0, 21)
	start := d(2026, 8, 3)
	for i := 0; i < 21; i++ {
		date := start.AddDate(0, 0, i)
		if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			continue
		}
		blocks = append(blocks, domain.AvailableBlock{
			UserID:        task.UserID,
			StartDatetime: time.Date(date.Year(), date.Month(), date.Day(), 9, 0, 0, 0, time.UTC),
			EndDatetime:   time.Date(date.Year(), date.Month(), date.Day(), 17, 0, 0, 0, time.UTC),
		})
	}
	ledger := NewOccupancyLedger()

	slots, ok := placeMultiWeekDistribution(task, 24, blocks, ledger)
	require.True(t, ok)

	weekHours := make(map[string]int)
	for _, s := range slots {
		year, week := s.Date.ISOWeek()
		weekHours[isoWeekKey(year, week)]++
	}
	for week, hours := range weekHours {
		assert.LessOrEqual(t, hours, maxHoursPerWeekInDistribution, "week %s exceeded cap", week)
	}
}
