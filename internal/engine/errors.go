package engine

import "errors"

var (
	// ErrEmptyPlan is returned when a chain is started with no steps.
	ErrEmptyPlan = errors.New("plan has no steps")

	// ErrNoPlan is returned when the planning oracle produced nothing
	// usable. Planning failure is fatal: there is nothing to execute.
	ErrNoPlan = errors.New("planning oracle returned no usable plan")

	// ErrStopped is the cooperative-cancellation outcome. It is reported
	// distinctly and never conflated with a tool error.
	ErrStopped = errors.New("stopped by user")
)

// AbortReasonActionLimit marks a report aborted because the browser tool
// exhausted its action budget.
const AbortReasonActionLimit = "action-limit"
