package commands_test

import (
	"context"
	"testing"
	"time"

	"github.com/orbita-labs/taskscheduler/internal/scheduling/application/commands"
	"github.com/orbita-labs/taskscheduler/internal/scheduling/domain"
	"github.com/orbita-labs/taskscheduler/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedDeps() commands.Deps {
	return commands.Deps{Clock: domain.FixedClock{At: time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)}}
}

func weekdayCalendar(taskID int) []domain.CalendarSlot {
	var slots []domain.CalendarSlot
	for day := 0; day <= 4; day++ {
		slots = append(slots, domain.CalendarSlot{TaskID: taskID, DayOfWeek: day, HourFrom: 9, HourTo: 17})
	}
	return slots
}

func mustTask(t *testing.T, id, userID int, remainingHours, priorityScore float64) domain.Task {
	t.Helper()
	task, err := domain.NewTask(id, "task", userID, remainingHours, priorityScore)
	require.NoError(t, err)
	return task
}

// S1: two small tasks, different users, below router thresholds -> CP path.
func TestSchedule_S1_TrivialCPCase(t *testing.T) {
	task1 := mustTask(t, 1, 101, 2, 5)
	task2 := mustTask(t, 2, 102, 3, 5)
	tasks := []domain.Task{task1, task2}
	slots := append(weekdayCalendar(task1.ID), weekdayCalendar(task2.ID)...)

	solution, err := commands.Schedule(context.Background(), tasks, slots, nil, config.DefaultSchedulerConfig(), fixedDeps())
	require.NoError(t, err)

	assert.Equal(t, domain.AlgorithmOrtools, solution.AlgorithmUsed)
	assert.Contains(t, []domain.Status{domain.StatusOptimal, domain.StatusFeasible}, solution.Status)
	assert.Len(t, solution.Tasks[task1.ID], 2)
	assert.Len(t, solution.Tasks[task2.ID], 3)
	assert.Equal(t, 0, solution.OverlapsDetected)
}

// S2: 100 tasks across 10 users forces the greedy path and should clear
// the 0.8 success-rate bar within the default retry budget.
func TestSchedule_S2_GreedyPathMeetsSuccessBar(t *testing.T) {
	var tasks []domain.Task
	var slots []domain.CalendarSlot
	for i := 1; i <= 100; i++ {
		userID := (i % 10) + 1
		hours := 0.5 + float64(i%80)
		priority := float64(10 + (i % 90))
		task := mustTask(t, i, userID, hours, priority)
		tasks = append(tasks, task)
		slots = append(slots, weekdayCalendar(task.ID)...)
	}

	solution, err := commands.Schedule(context.Background(), tasks, slots, nil, config.DefaultSchedulerConfig(), fixedDeps())
	require.NoError(t, err)

	assert.Equal(t, domain.AlgorithmGreedy, solution.AlgorithmUsed)
	assert.GreaterOrEqual(t, solution.SuccessRate, 0.8)
	assert.LessOrEqual(t, solution.HorizonExtensions, 5)
	assert.Equal(t, 0, solution.OverlapsDetected)
}

// S4: a leave covering the whole first horizon week pushes the task's
// slots into a later week entirely.
func TestSchedule_S4_LeaveRemovesFirstWeek(t *testing.T) {
	task := mustTask(t, 1, 101, 8, 5)
	tasks := []domain.Task{task}
	slots := weekdayCalendar(task.ID)

	d0 := domain.Tomorrow(domain.FixedClock{At: time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)})
	weekEnd := d0.AddDate(0, 0, 6)
	leaves := []domain.Leave{{TaskID: task.ID, DateFrom: d0, DateTo: weekEnd}}

	solution, err := commands.Schedule(context.Background(), tasks, slots, leaves, config.DefaultSchedulerConfig(), fixedDeps())
	require.NoError(t, err)

	for _, s := range solution.Tasks[task.ID] {
		assert.True(t, s.Date.After(weekEnd), "slot %v falls within the leave week", s.Date)
	}
	assert.Len(t, solution.Tasks[task.ID], 8)
}

// S5: a 60-hour task with an 8h/day calendar spreads across multiple
// contiguous days.
func TestSchedule_S5_LongTaskSpreadsAcrossDays(t *testing.T) {
	task := mustTask(t, 1, 101, 60, 5)
	tasks := []domain.Task{task}
	slots := weekdayCalendar(task.ID)

	solution, err := commands.Schedule(context.Background(), tasks, slots, nil, config.DefaultSchedulerConfig(), fixedDeps())
	require.NoError(t, err)

	committed := solution.Tasks[task.ID]
	require.Len(t, committed, 60)

	hoursPerDay := make(map[string]int)
	for _, s := range committed {
		hoursPerDay[s.Date.Format("2006-01-02")]++
	}
	for _, hours := range hoursPerDay {
		assert.LessOrEqual(t, hours, 8)
	}
	assert.GreaterOrEqual(t, len(hoursPerDay), 8) // 60h / 8h-per-day >= 8 distinct days
}

// S6: a single 200-hour task against a deliberately small initial horizon
// must end with a horizon longer than the initial 7 days and, if it still
// can't fit, report horizon extensions and return PARTIAL or FAILED rather
// than silently dropping hours.
func TestSchedule_S6_InfeasibleUnderInitialHorizonExtends(t *testing.T) {
	task := mustTask(t, 1, 101, 200, 5)
	tasks := []domain.Task{task}
	slots := weekdayCalendar(task.ID)

	cfg := config.DefaultSchedulerConfig()
	cfg.InitialHorizonDays = 7
	cfg.MaxHorizonDays = 60

	solution, err := commands.Schedule(context.Background(), tasks, slots, nil, cfg, fixedDeps())
	require.NoError(t, err)

	assert.Greater(t, solution.HorizonDays, cfg.InitialHorizonDays)
	if solution.TasksScheduled < solution.TasksTotal {
		assert.Greater(t, solution.HorizonExtensions, 0)
		assert.Contains(t, []domain.Status{domain.StatusPartial, domain.StatusFailed}, solution.Status)
	}
}

func TestSchedule_RejectsDuplicateTaskID(t *testing.T) {
	task1 := mustTask(t, 1, 101, 2, 5)
	task2 := mustTask(t, 1, 102, 3, 5)

	_, err := commands.Schedule(context.Background(), []domain.Task{task1, task2}, nil, nil, config.DefaultSchedulerConfig(), fixedDeps())
	require.Error(t, err)
	var inputErr *domain.InputError
	assert.ErrorAs(t, err, &inputErr)
}

func TestSchedule_RejectsCalendarSlotForUnknownTask(t *testing.T) {
	task := mustTask(t, 1, 101, 2, 5)
	slots := []domain.CalendarSlot{{TaskID: 999, DayOfWeek: 0, HourFrom: 9, HourTo: 17}}

	_, err := commands.Schedule(context.Background(), []domain.Task{task}, slots, nil, config.DefaultSchedulerConfig(), fixedDeps())
	require.Error(t, err)
	var inputErr *domain.InputError
	assert.ErrorAs(t, err, &inputErr)
}

func TestSchedule_RejectsNegativeRemainingHours(t *testing.T) {
	badTask := domain.Task{ID: 1, UserID: 101, RemainingHours: -1, PriorityScore: 5}
	_, err := commands.Schedule(context.Background(), []domain.Task{badTask}, nil, nil, config.DefaultSchedulerConfig(), fixedDeps())
	require.Error(t, err)
	var inputErr *domain.InputError
	assert.ErrorAs(t, err, &inputErr)
}

// Property #5: the earliest scheduled date is never before tomorrow (UTC)
// relative to the call time.
func TestSchedule_FutureOnly(t *testing.T) {
	task := mustTask(t, 1, 101, 4, 5)
	tasks := []domain.Task{task}
	slots := weekdayCalendar(task.ID)
	deps := fixedDeps()

	solution, err := commands.Schedule(context.Background(), tasks, slots, nil, config.DefaultSchedulerConfig(), deps)
	require.NoError(t, err)

	d0 := domain.Tomorrow(deps.Clock)
	for _, s := range solution.Tasks[task.ID] {
		assert.False(t, s.Date.Before(d0))
	}
}

// Property #7: two runs with identical inputs and a fixed clock produce
// byte-identical Solutions (field-by-field, since SolveID legitimately
// differs between runs).
func TestSchedule_GreedyDeterminism(t *testing.T) {
	build := func() ([]domain.Task, []domain.CalendarSlot) {
		var tasks []domain.Task
		var slots []domain.CalendarSlot
		for i := 1; i <= 60; i++ {
			task := mustTask(t, i, (i%5)+1, float64(1+i%20), float64(10+i%50))
			tasks = append(tasks, task)
			slots = append(slots, weekdayCalendar(task.ID)...)
		}
		return tasks, slots
	}

	tasks1, slots1 := build()
	solution1, err := commands.Schedule(context.Background(), tasks1, slots1, nil, config.DefaultSchedulerConfig(), fixedDeps())
	require.NoError(t, err)

	tasks2, slots2 := build()
	solution2, err := commands.Schedule(context.Background(), tasks2, slots2, nil, config.DefaultSchedulerConfig(), fixedDeps())
	require.NoError(t, err)

	assert.Equal(t, solution1.AlgorithmUsed, solution2.AlgorithmUsed)
	assert.Equal(t, solution1.TasksScheduled, solution2.TasksScheduled)
	assert.Equal(t, solution1.Tasks, solution2.Tasks)
}

// Property #6: router monotonicity — raising task count past the
// configured threshold flips the chosen algorithm from CP to greedy with
// all other inputs held constant.
func TestSchedule_RouterMonotonicity(t *testing.T) {
	cfg := config.DefaultSchedulerConfig()
	cfg.GreedyThresholdTasks = 5

	build := func(n int) ([]domain.Task, []domain.CalendarSlot) {
		var tasks []domain.Task
		var slots []domain.CalendarSlot
		for i := 1; i <= n; i++ {
			task := mustTask(t, i, i, 2, 5)
			tasks = append(tasks, task)
			slots = append(slots, weekdayCalendar(task.ID)...)
		}
		return tasks, slots
	}

	belowTasks, belowSlots := build(5)
	below, err := commands.Schedule(context.Background(), belowTasks, belowSlots, nil, cfg, fixedDeps())
	require.NoError(t, err)
	assert.Equal(t, domain.AlgorithmOrtools, below.AlgorithmUsed)

	aboveTasks, aboveSlots := build(6)
	above, err := commands.Schedule(context.Background(), aboveTasks, aboveSlots, nil, cfg, fixedDeps())
	require.NoError(t, err)
	assert.Equal(t, domain.AlgorithmGreedy, above.AlgorithmUsed)
}
