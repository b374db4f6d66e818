package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Status is the terminal outcome of a solve attempt.
type Status string

const (
	StatusOptimal     Status = "OPTIMAL"
	StatusFeasible    Status = "FEASIBLE"
	StatusInfeasible  Status = "INFEASIBLE"
	StatusPartial     Status = "PARTIAL"
	StatusFailed      Status = "FAILED"
)

// Algorithm names the scheduling path that produced (or contributed to) a
// solution.
type Algorithm string

const (
	AlgorithmGreedy         Algorithm = "greedy"
	AlgorithmOrtools        Algorithm = "ortools"
	AlgorithmOrtoolsFallback Algorithm = "ortools_fallback"
)

// TaskOutcome records, for a single task, whether it was scheduled, and —
// when it was not — the diagnostic detail the original implementation
// only wrote to a log file (see SPEC_FULL.md §10: per-task failure
// diagnostics are supplemented onto the Solution here so a library caller
// can inspect them programmatically).
type TaskOutcome struct {
	Scheduled       bool
	Reason          string
	AvailableBlocks int
	FreeHours       float64
}

// UserDiagnostics captures per-user availability-preparation counts
// (SPEC_FULL.md §10: horizon-aware per-user diagnostics). No scheduler in
// this module fills Solution.Diagnostics; the map is always empty.
type UserDiagnostics struct {
	UserID          int
	AvailableBlocks int
	FreeHours       float64
	TaskCount       int
}

// Solution is the result of one Schedule call: the assignment of tasks to
// hourly slots, plus the statistics and per-task/per-user diagnostics
// spec §6 and §10 require.
type Solution struct {
	SolveID uuid.UUID

	// Tasks maps a task id to its ordered list of committed slots.
	Tasks map[int][]ScheduledSlot

	Status           Status
	AlgorithmUsed    Algorithm
	TasksScheduled   int
	TasksTotal       int
	SuccessRate      float64
	HorizonDays      int
	HorizonExtensions int
	OverlapsDetected int
	ExecutionTime    time.Duration

	// CP-only statistics; nil when the greedy path alone produced the
	// solution.
	ObjectiveValue *float64
	NumBranches    *int
	NumConflicts   *int
	NumBooleans    *int
	NumConstraints *int

	TaskOutcomes map[int]TaskOutcome
	Diagnostics  map[int]UserDiagnostics
}

// NewSolution builds an empty Solution for tasksTotal tasks, stamped with
// a fresh correlation id.
func NewSolution(tasksTotal int) *Solution {
	return &Solution{
		SolveID:      uuid.New(),
		Tasks:        make(map[int][]ScheduledSlot),
		TaskOutcomes: make(map[int]TaskOutcome),
		Diagnostics:  make(map[int]UserDiagnostics),
		TasksTotal:   tasksTotal,
		Status:       StatusFailed,
	}
}

// Finalize sorts each task's slot list and recomputes the scheduled
// count / success rate from the current Tasks map. Call once after all
// commits for a solve attempt are done.
func (s *Solution) Finalize() {
	scheduled := 0
	for taskID, slots := range s.Tasks {
		sort.Slice(slots, func(i, j int) bool { return slots[i].Less(slots[j]) })
		s.Tasks[taskID] = slots
		if len(slots) > 0 {
			scheduled++
		}
	}
	s.TasksScheduled = scheduled
	if s.TasksTotal > 0 {
		s.SuccessRate = float64(scheduled) / float64(s.TasksTotal)
	}
}

// solutionSlotJSON is the persisted form of a single ScheduledSlot.
type solutionSlotJSON struct {
	Date string `json:"date"`
	Hour int    `json:"hour"`
}

// solutionJSON mirrors the exact top-level shape spec §6.3 describes.
type solutionJSON struct {
	Tasks             map[string][]solutionSlotJSON `json:"tasks"`
	Status            Status                        `json:"status"`
	AlgorithmUsed     Algorithm                      `json:"algorithm_used"`
	TasksScheduled    int                            `json:"tasks_scheduled"`
	TasksTotal        int                            `json:"tasks_total"`
	SuccessRate       float64                        `json:"success_rate"`
	HorizonDays       int                            `json:"horizon_days"`
	HorizonExtensions int                            `json:"horizon_extensions"`
	OverlapsDetected  int                             `json:"overlaps_detected"`
	ExecutionTimeMs   int64                           `json:"execution_time_ms"`
	ObjectiveValue    *float64                        `json:"objective_value,omitempty"`
	NumBranches       *int                            `json:"num_branches,omitempty"`
	NumConflicts      *int                            `json:"num_conflicts,omitempty"`
	NumBooleans       *int                            `json:"num_booleans,omitempty"`
	NumConstraints    *int                            `json:"num_constraints,omitempty"`
}

const dateLayout = "2006-01-02"

// MarshalJSON produces the persisted form from spec §6.3: a top-level
// "tasks" map from task id string to an ordered {"date","hour"} list,
// plus the status/statistics fields.
func (s *Solution) MarshalJSON() ([]byte, error) {
	out := solutionJSON{
		Tasks:             make(map[string][]solutionSlotJSON, len(s.Tasks)),
		Status:            s.Status,
		AlgorithmUsed:     s.AlgorithmUsed,
		TasksScheduled:    s.TasksScheduled,
		TasksTotal:        s.TasksTotal,
		SuccessRate:       s.SuccessRate,
		HorizonDays:       s.HorizonDays,
		HorizonExtensions: s.HorizonExtensions,
		OverlapsDetected:  s.OverlapsDetected,
		ExecutionTimeMs:   s.ExecutionTime.Milliseconds(),
		ObjectiveValue:    s.ObjectiveValue,
		NumBranches:       s.NumBranches,
		NumConflicts:      s.NumConflicts,
		NumBooleans:       s.NumBooleans,
		NumConstraints:    s.NumConstraints,
	}

	for taskID, slots := range s.Tasks {
		key := fmt.Sprintf("%d", taskID)
		list := make([]solutionSlotJSON, len(slots))
		for i, slot := range slots {
			list[i] = solutionSlotJSON{Date: slot.Date.Format(dateLayout), Hour: slot.Hour}
		}
		out.Tasks[key] = list
	}

	return json.Marshal(out)
}

// UnmarshalJSON parses the persisted form produced by MarshalJSON back
// into a Solution. Fields that are not part of the persisted form
// (SolveID, TaskOutcomes, Diagnostics) are left zero-valued.
func (s *Solution) UnmarshalJSON(data []byte) error {
	var in solutionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	s.Tasks = make(map[int][]ScheduledSlot, len(in.Tasks))
	for key, slots := range in.Tasks {
		var taskID int
		if _, err := fmt.Sscanf(key, "%d", &taskID); err != nil {
			return fmt.Errorf("solution: invalid task id key %q: %w", key, err)
		}
		list := make([]ScheduledSlot, len(slots))
		for i, slot := range slots {
			date, err := time.Parse(dateLayout, slot.Date)
			if err != nil {
				return fmt.Errorf("solution: invalid date %q: %w", slot.Date, err)
			}
			list[i] = ScheduledSlot{TaskID: taskID, Date: date, Hour: slot.Hour}
		}
		s.Tasks[taskID] = list
	}

	s.Status = in.Status
	s.AlgorithmUsed = in.AlgorithmUsed
	s.TasksScheduled = in.TasksScheduled
	s.TasksTotal = in.TasksTotal
	s.SuccessRate = in.SuccessRate
	s.HorizonDays = in.HorizonDays
	s.HorizonExtensions = in.HorizonExtensions
	s.OverlapsDetected = in.OverlapsDetected
	s.ExecutionTime = time.Duration(in.ExecutionTimeMs) * time.Millisecond
	s.ObjectiveValue = in.ObjectiveValue
	s.NumBranches = in.NumBranches
	s.NumConflicts = in.NumConflicts
	s.NumBooleans = in.NumBooleans
	s.NumConstraints = in.NumConstraints

	// UserID on each slot is not carried in the persisted form; callers
	// that need it can re-derive it from the original task set.
	return nil
}
