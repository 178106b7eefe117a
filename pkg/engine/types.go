// Package engine runs idempotent, dependency ordered provisioning steps.
//
// A step is described by a Definition: an existence probe, a create action
// and an optional delete action. Pipeline walks the definitions in
// topological order, skipping every step that already has a completion
// marker, and Teardown walks them in reverse to reclaim the resources.
package engine

import (
	"context"
	"fmt"
	"maps"
)

// StepID identifies a step within one pipeline. It doubles as the marker key
// and as the token other steps use in DependsOn.
type StepID string

// Outputs are the values a step publishes for its dependents.
type Outputs map[string]string

// Clone returns a copy of o. A nil map clones to an empty one.
func (o Outputs) Clone() Outputs {
	out := make(Outputs, len(o))
	maps.Copy(out, o)
	return out
}

// ProbeState is the answer of an existence check.
type ProbeState int

const (
	// ProbeIndeterminate means the check could not tell. It is the zero value
	// so that an unset result never reads as "absent".
	ProbeIndeterminate ProbeState = iota
	ProbeAbsent
	ProbeExists
)

func (s ProbeState) String() string {
	switch s {
	case ProbeAbsent:
		return "absent"
	case ProbeExists:
		return "exists"
	default:
		return "indeterminate"
	}
}

// ProbeResult is returned by a Prober. Outputs are only read when State is
// ProbeExists and may be partial.
type ProbeResult struct {
	State   ProbeState
	Outputs Outputs
}

// Absent reports that the resource does not exist.
func Absent() ProbeResult {
	return ProbeResult{State: ProbeAbsent}
}

// Exists reports that the resource exists, with whatever outputs could be
// recovered from it.
func Exists(outputs Outputs) ProbeResult {
	return ProbeResult{State: ProbeExists, Outputs: outputs}
}

// Prober asks the remote system whether a step's resource already exists.
// A non-nil error is treated as ProbeIndeterminate.
type Prober interface {
	Probe(ctx context.Context, in Inputs) (ProbeResult, error)
}

// Action creates a step's resource. Errors wrapping ErrAlreadyExists are
// treated as a lost creation race, not as a failure.
type Action interface {
	Act(ctx context.Context, in Inputs) (Outputs, error)
}

// Deleter removes a step's resource. Errors wrapping ErrNotFound mean the
// resource was already gone.
type Deleter interface {
	Delete(ctx context.Context, in Inputs) error
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context, in Inputs) (ProbeResult, error)

func (f ProbeFunc) Probe(ctx context.Context, in Inputs) (ProbeResult, error) { return f(ctx, in) }

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context, in Inputs) (Outputs, error)

func (f ActionFunc) Act(ctx context.Context, in Inputs) (Outputs, error) { return f(ctx, in) }

// DeleteFunc adapts a function to Deleter.
type DeleteFunc func(ctx context.Context, in Inputs) error

func (f DeleteFunc) Delete(ctx context.Context, in Inputs) error { return f(ctx, in) }

// Definition describes one provisioning step.
type Definition struct {
	ID        StepID
	DependsOn []StepID
	Probe     Prober
	Act       Action
	// Delete is optional; steps without it are only unmarked on teardown.
	Delete Deleter
	// Outputs lists the keys a successful Act must publish.
	Outputs []string
}

// Status is the terminal state of a step in one run.
type Status string

const (
	StatusSkipped        Status = "skipped"
	StatusExistedAlready Status = "existed-already"
	StatusCreated        Status = "created"
	StatusFailed         Status = "failed"
	StatusBlocked        Status = "blocked"
	StatusCancelled      Status = "cancelled"

	StatusDeleted       Status = "deleted"
	StatusAlreadyAbsent Status = "already-absent"
	StatusDeleteFailed  Status = "delete-failed"
)

// Succeeded reports whether dependents of a step in this state may run, or,
// for teardown, whether the resource is gone.
func (s Status) Succeeded() bool {
	switch s {
	case StatusSkipped, StatusExistedAlready, StatusCreated, StatusDeleted, StatusAlreadyAbsent:
		return true
	default:
		return false
	}
}

// Inputs is the read-only view of published outputs handed to probes,
// actions and deleters. It only holds the step's own dependencies and, on
// teardown, the step's own outputs.
type Inputs struct {
	step    StepID
	outputs map[StepID]Outputs
}

// NewInputs builds an Inputs view. The maps are copied.
func NewInputs(step StepID, outputs map[StepID]Outputs) Inputs {
	in := Inputs{step: step, outputs: make(map[StepID]Outputs, len(outputs))}
	for id, out := range outputs {
		in.outputs[id] = out.Clone()
	}
	return in
}

// Step returns the ID of the step the view was built for.
func (in Inputs) Step() StepID { return in.step }

// Self returns the step's own recorded outputs. Only populated on teardown.
func (in Inputs) Self() Outputs {
	return in.outputs[in.step].Clone()
}

// Output returns one output value of a dependency.
func (in Inputs) Output(step StepID, key string) (string, bool) {
	out, ok := in.outputs[step]
	if !ok {
		return "", false
	}
	v, ok := out[key]
	return v, ok
}

// MustOutput is like Output but returns an error naming the missing value.
func (in Inputs) MustOutput(step StepID, key string) (string, error) {
	v, ok := in.Output(step, key)
	if !ok {
		return "", fmt.Errorf("step %q: no output %q from %q", in.step, key, step)
	}
	return v, nil
}
