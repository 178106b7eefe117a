package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// fakeCloud records every remote call and keeps resources in memory.
type fakeCloud struct {
	mu        sync.Mutex
	resources map[StepID]Outputs
	calls     []string
	probeErr  map[StepID]error
	actErr    map[StepID]error
	deleteErr map[StepID]error
	inputs    map[StepID]Inputs

	running    int
	maxRunning int
	onAct      func(id StepID)
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{
		resources: make(map[StepID]Outputs),
		probeErr:  make(map[StepID]error),
		actErr:    make(map[StepID]error),
		deleteErr: make(map[StepID]error),
		inputs:    make(map[StepID]Inputs),
	}
}

func (f *fakeCloud) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeCloud) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeCloud) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// index returns the position of call in the log, or -1.
func (f *fakeCloud) index(call string) int {
	return slices.Index(f.Calls(), call)
}

func (f *fakeCloud) def(id StepID, deps ...StepID) Definition {
	return Definition{
		ID:        id,
		DependsOn: deps,
		Probe: ProbeFunc(func(_ context.Context, _ Inputs) (ProbeResult, error) {
			f.record("probe:" + string(id))
			f.mu.Lock()
			defer f.mu.Unlock()
			if err := f.probeErr[id]; err != nil {
				return ProbeResult{}, err
			}
			if out, ok := f.resources[id]; ok {
				return Exists(out.Clone()), nil
			}
			return Absent(), nil
		}),
		Act: ActionFunc(func(_ context.Context, in Inputs) (Outputs, error) {
			f.mu.Lock()
			f.running++
			f.maxRunning = max(f.maxRunning, f.running)
			f.inputs[id] = in
			hook := f.onAct
			f.mu.Unlock()

			f.record("act:" + string(id))
			if hook != nil {
				hook(id)
			}

			f.mu.Lock()
			defer f.mu.Unlock()
			f.running--
			if err := f.actErr[id]; err != nil {
				return nil, err
			}
			out := Outputs{"name": string(id) + "-res"}
			f.resources[id] = out
			return out.Clone(), nil
		}),
		Delete: DeleteFunc(func(_ context.Context, in Inputs) error {
			f.record("delete:" + string(id))
			f.mu.Lock()
			defer f.mu.Unlock()
			f.inputs[id] = in
			if err := f.deleteErr[id]; err != nil {
				return err
			}
			if _, ok := f.resources[id]; !ok {
				return fmt.Errorf("deleting %s: %w", id, ErrNotFound)
			}
			delete(f.resources, id)
			return nil
		}),
		Outputs: []string{"name"},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func statuses(r *Report) map[StepID]Status {
	out := make(map[StepID]Status, len(r.Results))
	for _, res := range r.Results {
		out[res.ID] = res.Status
	}
	return out
}

type recorderFunc func(pipeline string, res StepResult)

func (f recorderFunc) RecordStep(pipeline string, res StepResult) { f(pipeline, res) }
