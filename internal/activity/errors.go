package activity

import "errors"

var (
	// ErrNotReady is returned when an edit or navigation is attempted outside the Ready state.
	ErrNotReady = errors.New("activity is not ready")
	// ErrUnknownField is returned for a field the activity does not declare.
	ErrUnknownField = errors.New("unknown field")
	// ErrFieldNotOnStep is returned when editing a field that belongs to another step.
	ErrFieldNotOnStep = errors.New("field is not on the current step")
	// ErrStepInvalid is returned by Continue when the current step is incomplete.
	ErrStepInvalid = errors.New("current step is not complete")
	// ErrAtLastStep is returned by Continue on the final step.
	ErrAtLastStep = errors.New("already at the last step")
	// ErrAtFirstStep is returned by Back on the first step.
	ErrAtFirstStep = errors.New("already at the first step")
	// ErrMarkerNotFound is returned when a marker id does not exist.
	ErrMarkerNotFound = errors.New("marker not found")
	// ErrNotInError is returned by Retry when there is nothing to retry.
	ErrNotInError = errors.New("activity is not in the error state")
)
