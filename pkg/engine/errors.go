package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyExists is wrapped by actions whose create call lost a race
	// with a concurrent run.
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrNotFound is wrapped by deleters when the resource is already gone.
	ErrNotFound = errors.New("resource not found")

	// ErrMissingOutput is returned when an action does not publish a
	// declared output.
	ErrMissingOutput = errors.New("declared output missing")

	errSlotWritten = errors.New("output slot already written")
)

// Reason classifies a ConfigurationError.
type Reason string

const (
	ReasonEmptyID        Reason = "empty step id"
	ReasonInvalidID      Reason = "invalid step id"
	ReasonDuplicate      Reason = "duplicate step id"
	ReasonSelfDependency Reason = "step depends on itself"
	ReasonDangling       Reason = "unknown dependency"
	ReasonCycle          Reason = "dependency cycle"
	ReasonIncomplete     Reason = "incomplete definition"
)

// ConfigurationError reports a structural problem in a set of definitions.
// It is always returned before any remote call is made.
type ConfigurationError struct {
	Reason Reason
	Step   StepID
	Detail string
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("invalid pipeline: %s", e.Reason)
	if e.Step != "" {
		msg = fmt.Sprintf("%s at step %q", msg, e.Step)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return msg
}

// ProbeIndeterminateError means the existence check failed. Re-running the
// pipeline is safe since the action was never invoked.
type ProbeIndeterminateError struct {
	Step StepID
	Err  error
}

func (e *ProbeIndeterminateError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("step %q: existence check was indeterminate", e.Step)
	}
	return fmt.Sprintf("step %q: existence check failed: %v", e.Step, e.Err)
}

func (e *ProbeIndeterminateError) Unwrap() error { return e.Err }

// Retryable marks the error as safe to retry by re-running the pipeline.
func (e *ProbeIndeterminateError) Retryable() bool { return true }

// ActionFailedError means the create call failed for a reason other than
// the resource already existing.
type ActionFailedError struct {
	Step StepID
	Err  error
}

func (e *ActionFailedError) Error() string {
	return fmt.Sprintf("step %q: action failed: %v", e.Step, e.Err)
}

func (e *ActionFailedError) Unwrap() error { return e.Err }

// MarkerError means the marker store could not be read or written.
type MarkerError struct {
	Step StepID
	Op   string
	Err  error
}

func (e *MarkerError) Error() string {
	return fmt.Sprintf("step %q: %s marker: %v", e.Step, e.Op, e.Err)
}

func (e *MarkerError) Unwrap() error { return e.Err }

// BlockedError is attached to steps that were not attempted because a
// dependency failed.
type BlockedError struct {
	Step StepID
	By   StepID
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("step %q: blocked by failed step %q", e.Step, e.By)
}

// DeleteFailedError means a teardown delete call failed.
type DeleteFailedError struct {
	Step StepID
	Err  error
}

func (e *DeleteFailedError) Error() string {
	return fmt.Sprintf("step %q: delete failed: %v", e.Step, e.Err)
}

func (e *DeleteFailedError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is marked as safe to retry.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
