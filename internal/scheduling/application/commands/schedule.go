// Package commands exposes the single entry point through which a caller
// runs a scheduling job: Schedule.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/orbita-labs/taskscheduler/internal/scheduling/application/services"
	"github.com/orbita-labs/taskscheduler/internal/scheduling/domain"
	"github.com/orbita-labs/taskscheduler/pkg/config"
	"github.com/orbita-labs/taskscheduler/pkg/observability"
)

// Deps bundles the optional collaborators Schedule uses beyond the core
// algorithm: a clock (for deterministic tests), a logger, and a metrics
// sink. All three default to harmless production values when a caller
// passes a zero Deps.
type Deps struct {
	Clock   domain.Clock
	Logger  *slog.Logger
	Metrics observability.Metrics
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = domain.UTCClock{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = observability.NoopMetrics{}
	}
	return d
}

// Schedule is the library's single entry point (spec §6.1): it validates
// its inputs, routes the job to the Greedy or CP Interval path (applying
// the composition policy), and returns the resulting Solution. It never
// performs I/O and never mutates its inputs; calling it repeatedly with
// the same arguments (and the same injected Clock) is safe.
func Schedule(
	ctx context.Context,
	tasks []domain.Task,
	slots []domain.CalendarSlot,
	leaves []domain.Leave,
	cfg config.SchedulerConfig,
	deps Deps,
) (solution *domain.Solution, err error) {
	deps = deps.withDefaults()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			violation, ok := r.(*domain.InvariantViolation)
			if !ok {
				panic(r) // not our invariant taxonomy; a real bug, let it surface
			}
			deps.Logger.Error("internal invariant violation", "component", violation.Component, "detail", violation.Detail)
			deps.Metrics.Counter(observability.MetricOperationErrors, 1, observability.T("operation", "schedule"))
			err = violation
			solution = nil
		}
	}()

	if validationErr := validateInput(tasks, slots, leaves); validationErr != nil {
		deps.Logger.Error("rejected invalid input", "error", validationErr)
		return nil, validationErr
	}

	d0 := domain.Tomorrow(deps.Clock)

	classification := services.Classify(tasks)
	deps.Logger.Info("router classification",
		"task_count", classification.TaskCount,
		"total_hours", classification.TotalHours,
		"distinct_users", classification.DistinctUsers,
		"avg_hours", classification.AvgHours,
		"chooses_greedy", classification.ChooseGreedy(cfg),
	)
	deps.Metrics.Counter(observability.MetricRouterDecision, 1,
		observability.T("path", algorithmLabel(classification.ChooseGreedy(cfg))))

	router := services.NewRouter()
	solution = router.Route(ctx, tasks, slots, leaves, d0, cfg)
	solution.ExecutionTime = time.Since(start)

	deps.Logger.Info("schedule finished",
		"algorithm_used", solution.AlgorithmUsed,
		"status", solution.Status,
		"tasks_scheduled", solution.TasksScheduled,
		"tasks_total", solution.TasksTotal,
		"success_rate", solution.SuccessRate,
		"horizon_days", solution.HorizonDays,
		"horizon_extensions", solution.HorizonExtensions,
	)

	deps.Metrics.Counter(observability.MetricOperationTotal, 1, observability.T("operation", "schedule"))
	deps.Metrics.Timing(observability.MetricExecutionTimeMs, solution.ExecutionTime)
	deps.Metrics.Gauge(observability.MetricHorizonExtensions, float64(solution.HorizonExtensions))
	deps.Metrics.Gauge(observability.MetricOverlapsDetected, float64(solution.OverlapsDetected))
	deps.Metrics.Gauge(observability.MetricTasksScheduled, float64(solution.TasksScheduled))
	if solution.ObjectiveValue != nil {
		deps.Metrics.Gauge(observability.MetricObjectiveValue, *solution.ObjectiveValue)
	}

	return solution, nil
}

func algorithmLabel(chooseGreedy bool) string {
	if chooseGreedy {
		return "greedy"
	}
	return "cp_interval"
}

// validateInput aborts immediately on malformed input (spec §7:
// InputError), before any scheduling work runs.
func validateInput(tasks []domain.Task, slots []domain.CalendarSlot, leaves []domain.Leave) error {
	seenIDs := make(map[int]struct{}, len(tasks))
	taskExists := make(map[int]struct{}, len(tasks))

	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, dup := seenIDs[t.ID]; dup {
			return &domain.InputError{Field: "id", Reason: fmt.Sprintf("duplicate task id %d", t.ID)}
		}
		seenIDs[t.ID] = struct{}{}
		taskExists[t.ID] = struct{}{}
	}

	for _, s := range slots {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, ok := taskExists[s.TaskID]; !ok {
			return &domain.InputError{Field: "task_id", Reason: fmt.Sprintf("calendar slot references unknown task %d", s.TaskID)}
		}
	}

	for _, l := range leaves {
		if err := l.Validate(); err != nil {
			return err
		}
		if _, ok := taskExists[l.TaskID]; !ok {
			return &domain.InputError{Field: "task_id", Reason: fmt.Sprintf("leave references unknown task %d", l.TaskID)}
		}
	}

	return nil
}
