package domain

import "math"

// Task is a unit of work owned by a single user, carrying the hours still
// needed and the priority used to order it against other tasks.
//
// HierarchyLevel, IsLeafTask and ParentID are optional: the zero value of
// HierarchyLevel (0) means "leaf level", and IsLeafTask defaults to true
// when a Task is built through NewTask.
type Task struct {
	ID             int
	Name           string
	UserID         int
	RemainingHours float64
	PriorityScore  float64
	HierarchyLevel int
	IsLeafTask     bool
	ParentID       *int
}

// NewTask builds a Task with the optional-field defaults spec'd in the
// data model (hierarchy_level=0, is_leaf_task=true) and validates it.
func NewTask(id int, name string, userID int, remainingHours, priorityScore float64) (Task, error) {
	t := Task{
		ID:             id,
		Name:           name,
		UserID:         userID,
		RemainingHours: remainingHours,
		PriorityScore:  priorityScore,
		IsLeafTask:     true,
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Validate checks the invariants from the data model: remaining_hours is
// non-negative and priority_score is finite.
func (t Task) Validate() error {
	if t.RemainingHours < 0 {
		return newInputError("remaining_hours", "must be >= 0")
	}
	if math.IsNaN(t.PriorityScore) || math.IsInf(t.PriorityScore, 0) {
		return newInputError("priority_score", "must be finite")
	}
	if t.HierarchyLevel < 0 {
		return newInputError("hierarchy_level", "must be >= 0")
	}
	return nil
}

// HoursNeeded returns ceil(remaining_hours), the integer hour count the
// schedulers must place.
func (t Task) HoursNeeded() int {
	return int(math.Ceil(t.RemainingHours))
}
