package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/systemstart/stackctl/pkg/markers"
)

// execute applies the step protocol to one definition: marker, probe,
// action, publish, marker write.
func (p *Pipeline) execute(ctx context.Context, run *run, def Definition, in Inputs) StepResult {
	log := run.log.With("step", def.ID)
	res := StepResult{ID: def.ID, Started: p.opts.now()}
	finish := func(status Status, outputs Outputs, err error) StepResult {
		res.Status = status
		res.Outputs = outputs
		res.Err = err
		res.Finished = p.opts.now()
		return res
	}

	marker, err := p.store.Get(string(def.ID))
	switch {
	case err == nil:
		outputs := Outputs(marker.Outputs).Clone()
		if err := run.context.publish(def.ID, outputs); err != nil {
			return finish(StatusFailed, nil, err)
		}
		log.Debug("marker present, skipping", "completedAt", marker.CompletedAt)
		return finish(StatusSkipped, outputs, nil)
	case !errors.Is(err, markers.ErrNotFound):
		return finish(StatusFailed, nil, &MarkerError{Step: def.ID, Op: "read", Err: err})
	}

	if err := ctx.Err(); err != nil {
		return finish(StatusCancelled, nil, err)
	}

	probe, err := def.Probe.Probe(ctx, in)
	if err != nil || probe.State == ProbeIndeterminate {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return finish(StatusCancelled, nil, ctxErr)
		}
		return finish(StatusFailed, nil, &ProbeIndeterminateError{Step: def.ID, Err: err})
	}

	if probe.State == ProbeExists {
		log.Info("resource already exists")
		outputs, err := p.complete(run, def.ID, StatusExistedAlready, probe.Outputs)
		if err != nil {
			return finish(StatusFailed, nil, err)
		}
		return finish(StatusExistedAlready, outputs, nil)
	}

	if err := ctx.Err(); err != nil {
		return finish(StatusCancelled, nil, err)
	}

	log.Info("creating resource")
	created, err := def.Act.Act(ctx, in)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			log.Info("resource created concurrently", "error", err)
			outputs, err := p.complete(run, def.ID, StatusExistedAlready, created)
			if err != nil {
				return finish(StatusFailed, nil, err)
			}
			return finish(StatusExistedAlready, outputs, nil)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return finish(StatusCancelled, nil, fmt.Errorf("%w: %w", ctxErr, err))
		}
		return finish(StatusFailed, nil, &ActionFailedError{Step: def.ID, Err: err})
	}

	if missing := missingOutputs(def.Outputs, created); len(missing) > 0 {
		return finish(StatusFailed, nil, &ActionFailedError{
			Step: def.ID,
			Err:  fmt.Errorf("%w: %s", ErrMissingOutput, strings.Join(missing, ", ")),
		})
	}

	outputs, err := p.complete(run, def.ID, StatusCreated, created)
	if err != nil {
		return finish(StatusFailed, nil, err)
	}
	return finish(StatusCreated, outputs, nil)
}

// complete publishes outputs and writes the marker.
func (p *Pipeline) complete(run *run, id StepID, status Status, outputs Outputs) (Outputs, error) {
	outputs = outputs.Clone()
	if err := run.context.publish(id, outputs); err != nil {
		return nil, err
	}

	err := p.store.Put(markers.Marker{
		StepID:      string(id),
		Outcome:     string(status),
		RunID:       run.id,
		CompletedAt: p.opts.now().UTC(),
		Outputs:     outputs,
	})
	if err != nil {
		return nil, &MarkerError{Step: id, Op: "write", Err: err}
	}
	return outputs, nil
}

func missingOutputs(declared []string, got Outputs) []string {
	var missing []string
	for _, key := range declared {
		if _, ok := got[key]; !ok {
			missing = append(missing, key)
		}
	}
	slices.Sort(missing)
	return missing
}

func logResult(log *slog.Logger, res StepResult) {
	attrs := []any{"step", res.ID, "status", res.Status, "duration", res.Duration()}
	switch res.Status {
	case StatusFailed, StatusDeleteFailed:
		log.Error("step failed", append(attrs, "error", res.Err)...)
	case StatusBlocked, StatusCancelled:
		log.Warn("step not run", append(attrs, "reason", res.Err)...)
	default:
		log.Info("step finished", attrs...)
	}
}
