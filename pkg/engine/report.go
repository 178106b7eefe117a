package engine

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// StepResult is the outcome of one step in one run.
type StepResult struct {
	ID       StepID
	Status   Status
	Outputs  Outputs
	Err      error
	Started  time.Time
	Finished time.Time
}

// Duration returns how long the step ran. Steps that never started report 0.
func (r StepResult) Duration() time.Duration {
	if r.Started.IsZero() || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// failure reports whether the result makes the run fail. Blocked steps are
// reported but the step that blocked them is the failure.
func (r StepResult) failure() bool {
	switch r.Status {
	case StatusFailed, StatusCancelled, StatusDeleteFailed:
		return true
	default:
		return false
	}
}

// Report aggregates the results of one pipeline or teardown run.
type Report struct {
	Pipeline string
	RunID    string
	Teardown bool
	// Results are in execution order.
	Results []StepResult
}

// Result returns the result for id.
func (r *Report) Result(id StepID) (StepResult, bool) {
	for _, res := range r.Results {
		if res.ID == id {
			return res, true
		}
	}
	return StepResult{}, false
}

// Count returns how many steps ended in status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Failed reports whether any step failed, was cancelled or could not be
// deleted.
func (r *Report) Failed() bool {
	_, ok := r.FirstFailure()
	return ok
}

// FirstFailure returns the first failed step in execution order. Cancelled
// steps are only returned when nothing failed outright.
func (r *Report) FirstFailure() (StepResult, bool) {
	var cancelled *StepResult
	for i, res := range r.Results {
		if !res.failure() {
			continue
		}
		if res.Status != StatusCancelled {
			return res, true
		}
		if cancelled == nil {
			cancelled = &r.Results[i]
		}
	}
	if cancelled != nil {
		return *cancelled, true
	}
	return StepResult{}, false
}

// Unreclaimed lists the steps whose resources teardown could not delete.
func (r *Report) Unreclaimed() []StepID {
	var ids []StepID
	for _, res := range r.Results {
		if res.Status == StatusDeleteFailed {
			ids = append(ids, res.ID)
		}
	}
	return ids
}

// Err summarizes the run. Provisioning runs report the first failed step;
// teardown runs report every failed delete.
func (r *Report) Err() error {
	if !r.Teardown {
		res, ok := r.FirstFailure()
		if !ok {
			return nil
		}
		return fmt.Errorf("pipeline %s: step %q %s: %w", r.Pipeline, res.ID, res.Status, res.Err)
	}

	var result *multierror.Error
	for _, res := range r.Results {
		if res.failure() {
			result = multierror.Append(result, res.Err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("teardown %s: %w", r.Pipeline, err)
	}
	return nil
}
