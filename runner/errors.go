package runner

import "errors"

// Typed error taxonomy (spec.md §7). Callers use errors.Is/errors.As.
var (
	// ErrNotFound is returned when a case or work item referenced by an
	// operation does not exist.
	ErrNotFound = errors.New("runner: not found")

	// ErrIllegalTransition is returned for operations that violate the
	// work-item or case state machine (completing an item that is neither
	// Enabled nor Executing, suspending an item that is neither, resuming
	// an item that is not Suspended, suspending a case that is not
	// Normal). An Enabled item may be completed without a prior Start.
	ErrIllegalTransition = errors.New("runner: illegal transition")

	// ErrAlreadyStarted is the distinguishable idempotent-operation status
	// for startWorkItem on an item already past Enabled.
	ErrAlreadyStarted = errors.New("runner: already started")

	// ErrHandlerUnavailable is surfaced when announcement delivery to an
	// unregistered or unreachable handler fails; the work item remains
	// Enabled.
	ErrHandlerUnavailable = errors.New("runner: handler unavailable")

	// ErrDeadlocked marks a case that classify() has determined cannot
	// progress further; the case remains in Normal status for
	// administrator inspection (spec.md §4.5 step 6).
	ErrDeadlocked = errors.New("runner: case deadlocked")
)

// DataValidationError wraps a failed output-schema validation at
// complete() (spec.md §4.4 step 1, §7).
type DataValidationError struct {
	TaskID string
	Err    error
}

func (e *DataValidationError) Error() string {
	return "runner: output data validation failed for task " + e.TaskID + ": " + e.Err.Error()
}
func (e *DataValidationError) Unwrap() error { return e.Err }

// PredicateEvaluationError wraps a flow predicate or OR-split evaluation
// failure (spec.md §4.2 split evaluation, §7). split does not construct
// or return it: a flow whose predicate fails to evaluate is treated as
// false and skipped, and the failure is not logged.
type PredicateEvaluationError struct {
	TaskID string
	Expr   string
	Err    error
}

func (e *PredicateEvaluationError) Error() string {
	return "runner: predicate evaluation failed for task " + e.TaskID + " (" + e.Expr + "): " + e.Err.Error()
}
func (e *PredicateEvaluationError) Unwrap() error { return e.Err }

// InternalConsistencyError marks an invariant violation detected during
// classify (I3, I6). It is returned to the caller of the operation that
// detected it; no runner code moves the case to Quarantined, and kick
// refuses to run only for a case whose status is already Quarantined.
type InternalConsistencyError struct {
	CaseID string
	Reason string
}

func (e *InternalConsistencyError) Error() string {
	return "runner: internal consistency error in case " + e.CaseID + ": " + e.Reason
}
