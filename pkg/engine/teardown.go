package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/systemstart/stackctl/pkg/markers"
)

// Teardown deletes the resources of a set of definitions in reverse
// dependency order. It is best effort: a failed delete is reported and the
// remaining steps still run.
type Teardown struct {
	graph *Graph
	store markers.Store
	opts  options
}

// NewTeardown validates defs the same way New does.
func NewTeardown(defs []Definition, store markers.Store, opts ...Option) (*Teardown, error) {
	if store == nil {
		return nil, errors.New("marker store is required")
	}
	g, err := NewGraph(defs)
	if err != nil {
		return nil, err
	}
	return &Teardown{graph: g, store: store, opts: newOptions(opts)}, nil
}

// Run deletes every step's resource, newest first. Deleting a resource that
// is already gone counts as success. Markers are cleared for every step
// whose resource is gone.
//
// The returned Report is never nil. The error aggregates all failed deletes.
func (t *Teardown) Run(ctx context.Context) (*Report, error) {
	runID := t.opts.runIDOrNew()
	log := t.opts.logger.With("pipeline", t.opts.name, "run", runID, "mode", "teardown")
	log.Info("starting teardown", "steps", t.graph.Len())

	report := &Report{Pipeline: t.opts.name, RunID: runID, Teardown: true}
	for _, id := range t.graph.Reverse() {
		var res StepResult
		if err := ctx.Err(); err != nil {
			res = StepResult{ID: id, Status: StatusCancelled, Err: err}
		} else {
			def, _ := t.graph.Definition(id)
			res = t.delete(ctx, log, def)
		}

		logResult(log, res)
		if t.opts.recorder != nil {
			t.opts.recorder.RecordStep(t.opts.name, res)
		}
		report.Results = append(report.Results, res)
	}

	err := report.Err()
	if err != nil {
		log.Error("teardown incomplete", "unreclaimed", report.Unreclaimed(), "error", err)
	} else {
		log.Info("teardown completed",
			"deleted", report.Count(StatusDeleted),
			"absent", report.Count(StatusAlreadyAbsent))
	}
	return report, err
}

func (t *Teardown) delete(ctx context.Context, log *slog.Logger, def Definition) StepResult {
	res := StepResult{ID: def.ID, Started: t.opts.now()}
	finish := func(status Status, err error) StepResult {
		res.Status = status
		res.Err = err
		res.Finished = t.opts.now()
		return res
	}

	in := t.inputsFor(log, def)
	res.Outputs = in.Self()

	status := StatusSkipped
	if def.Delete != nil {
		err := def.Delete.Delete(ctx, in)
		switch {
		case err == nil:
			status = StatusDeleted
		case errors.Is(err, ErrNotFound):
			status = StatusAlreadyAbsent
		case ctx.Err() != nil:
			return finish(StatusCancelled, fmt.Errorf("%w: %w", ctx.Err(), err))
		default:
			return finish(StatusDeleteFailed, &DeleteFailedError{Step: def.ID, Err: err})
		}
	}

	if err := t.store.Clear(string(def.ID)); err != nil {
		return finish(StatusDeleteFailed, &MarkerError{Step: def.ID, Op: "clear", Err: err})
	}
	return finish(status, nil)
}

// inputsFor reads the step's own marker and those of its dependencies.
// Missing markers are normal: a resource may exist without one.
func (t *Teardown) inputsFor(log *slog.Logger, def Definition) Inputs {
	outputs := make(map[StepID]Outputs, len(def.DependsOn)+1)
	for _, id := range append([]StepID{def.ID}, def.DependsOn...) {
		m, err := t.store.Get(string(id))
		switch {
		case err == nil:
			outputs[id] = Outputs(m.Outputs)
		case !errors.Is(err, markers.ErrNotFound):
			log.Warn("could not read marker", "step", def.ID, "marker", id, "error", err)
		}
	}
	return NewInputs(def.ID, outputs)
}
