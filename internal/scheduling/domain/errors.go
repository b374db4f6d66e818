package domain

import "fmt"

// InputError reports a malformed input (spec error taxonomy: caller bug).
// Schedule aborts immediately when one is produced; it is never silently
// corrected.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input error: %s: %s", e.Field, e.Reason)
}

func newInputError(field, reason string) error {
	return &InputError{Field: field, Reason: reason}
}

// InvariantViolation marks a defect the solver must never produce silently:
// a ledger overlap, or a CP duration sum that does not match a task's
// required hours. It is the only condition the package panics on, and it
// is always recovered at the Schedule boundary.
type InvariantViolation struct {
	Component string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("internal invariant violation in %s: %s", e.Component, e.Detail)
}

// PanicInvariant raises an InvariantViolation as a panic. Only ever called
// from code paths that detect state the rest of the package already
// assumes is impossible (double-booked ledger slot, duration/coverage
// mismatch).
func PanicInvariant(component, detail string) {
	panic(&InvariantViolation{Component: component, Detail: detail})
}
