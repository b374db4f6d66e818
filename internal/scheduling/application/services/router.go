package services

import (
	"context"
	"time"

	"github.com/orbita-labs/taskscheduler/internal/scheduling/domain"
	"github.com/orbita-labs/taskscheduler/pkg/config"
)

const residualFillInMaxUnscheduled = 20

// Classification is the router's instance-size summary (spec §4.1).
type Classification struct {
	TaskCount    int
	TotalHours   float64
	DistinctUsers int
	AvgHours     float64
}

// Classify computes T, H, U, A for a task set.
func Classify(tasks []domain.Task) Classification {
	users := make(map[int]struct{})
	var totalHours float64
	for _, t := range tasks {
		totalHours += t.RemainingHours
		users[t.UserID] = struct{}{}
	}
	c := Classification{TaskCount: len(tasks), TotalHours: totalHours, DistinctUsers: len(users)}
	if c.TaskCount > 0 {
		c.AvgHours = c.TotalHours / float64(c.TaskCount)
	}
	return c
}

// ChooseGreedy reports whether the router picks the Greedy path for this
// classification, per spec §4.1's threshold disjunction. It is always
// false when cfg.HybridMode is off.
func (c Classification) ChooseGreedy(cfg config.SchedulerConfig) bool {
	if !cfg.HybridMode {
		return false
	}
	return c.TaskCount > cfg.GreedyThresholdTasks ||
		c.TotalHours > cfg.GreedyThresholdHours ||
		c.DistinctUsers > cfg.GreedyThresholdUsers ||
		c.AvgHours > cfg.GreedyThresholdAvgHours
}

// Router dispatches a scheduling job to the Greedy or CP Interval path and
// applies the composition policy (spec §4.1): residual CP fill-in after a
// partial greedy success, or full CP fallback after a zero-assignment
// greedy pass.
type Router struct {
	greedy *GreedyScheduler
	cp     *CPScheduler
}

// NewRouter returns a Router wired to a fresh Greedy and CP scheduler.
func NewRouter() *Router {
	return &Router{greedy: NewGreedyScheduler(), cp: NewCPScheduler()}
}

// Route classifies the instance, runs the chosen path(s), and returns the
// composed Solution.
func (r *Router) Route(
	ctx context.Context,
	tasks []domain.Task,
	calendarSlots []domain.CalendarSlot,
	leaves []domain.Leave,
	d0 time.Time,
	cfg config.SchedulerConfig,
) *domain.Solution {
	classification := Classify(tasks)

	if !classification.ChooseGreedy(cfg) {
		return r.cp.Schedule(ctx, tasks, calendarSlots, leaves, d0, cfg, nil)
	}

	solution := r.greedy.Schedule(tasks, calendarSlots, leaves, d0, cfg)

	if solution.TasksScheduled == 0 {
		fallback := r.cp.Schedule(ctx, tasks, calendarSlots, leaves, d0, cfg, nil)
		fallback.AlgorithmUsed = domain.AlgorithmOrtoolsFallback
		return fallback
	}

	unscheduled := unscheduledTasks(tasks, solution)
	if len(unscheduled) > 0 && len(unscheduled) <= residualFillInMaxUnscheduled {
		residualCfg := cfg
		residualCfg.InitialHorizonDays = 14
		residualCfg.HorizonExtensionFactor = 1.5
		residualCfg.OrtoolsTimeLimit = 30 * time.Second

		alreadyCommitted := occupancyFromSolution(solution)
		residual := r.cp.Schedule(ctx, unscheduled, calendarSlots, leaves, d0, residualCfg, alreadyCommitted)
		mergeResidualIntoGreedy(solution, residual)
	}

	return solution
}

// unscheduledTasks returns the subset of tasks the greedy pass left with
// no committed slots.
func unscheduledTasks(tasks []domain.Task, solution *domain.Solution) []domain.Task {
	var unscheduled []domain.Task
	for _, t := range tasks {
		if t.HoursNeeded() == 0 {
			continue
		}
		if len(solution.Tasks[t.ID]) == 0 {
			unscheduled = append(unscheduled, t)
		}
	}
	return unscheduled
}

// mergeResidualIntoGreedy folds a residual CP solve's assignments into the
// greedy solution; a residual task the CP pass still couldn't place keeps
// its greedy (resource-shortage) outcome — residual CP failure is
// non-fatal (spec §4.1).
func mergeResidualIntoGreedy(solution, residual *domain.Solution) {
	for taskID, slots := range residual.Tasks {
		if len(slots) == 0 {
			continue
		}
		solution.Tasks[taskID] = slots
		solution.TaskOutcomes[taskID] = residual.TaskOutcomes[taskID]
	}
	solution.Finalize()
	if solution.TasksScheduled == solution.TasksTotal {
		solution.Status = domain.StatusFeasible
	}
}
