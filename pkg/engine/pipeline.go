package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/systemstart/stackctl/pkg/markers"
)

// Pipeline runs a validated set of definitions once each, in dependency
// order, skipping steps that already have a marker.
type Pipeline struct {
	graph *Graph
	store markers.Store
	opts  options
}

type run struct {
	id      string
	log     *slog.Logger
	context *Context
}

// New validates defs and returns a Pipeline. Structural problems are
// returned as *ConfigurationError.
func New(defs []Definition, store markers.Store, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, errors.New("marker store is required")
	}
	g, err := NewGraph(defs)
	if err != nil {
		return nil, err
	}
	return &Pipeline{graph: g, store: store, opts: newOptions(opts)}, nil
}

// Graph returns the ordered step graph.
func (p *Pipeline) Graph() *Graph { return p.graph }

// Run executes the pipeline. Independent steps run concurrently up to the
// worker limit. A failed step blocks its transitive dependents; other
// branches keep running. Once ctx is done no further step is started.
//
// The returned Report is never nil. The error is Report.Err().
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	r := &run{id: p.opts.runIDOrNew(), context: NewContext()}
	r.log = p.opts.logger.With("pipeline", p.opts.name, "run", r.id)
	r.log.Info("starting pipeline", "steps", p.graph.Len(), "workers", p.opts.workers)

	order := p.graph.Order()
	results := make(map[StepID]StepResult, len(order))
	pending := make(map[StepID]int, len(order))
	var ready []StepID
	for _, id := range order {
		def, _ := p.graph.Definition(id)
		pending[id] = len(def.DependsOn)
		if pending[id] == 0 {
			ready = append(ready, id)
		}
	}

	done := make(chan StepResult, len(order))
	var g errgroup.Group
	g.SetLimit(p.opts.workers)

	record := func(res StepResult) {
		results[res.ID] = res
		logResult(r.log, res)
		if p.opts.recorder != nil {
			p.opts.recorder.RecordStep(p.opts.name, res)
		}
	}

	inflight := 0
	for {
		for len(ready) > 0 && ctx.Err() == nil {
			id := ready[0]
			ready = ready[1:]
			def, _ := p.graph.Definition(id)
			in := r.context.inputsFor(def)

			inflight++
			g.Go(func() error {
				done <- p.execute(ctx, r, def, in)
				return nil
			})
		}
		if inflight == 0 {
			break
		}

		res := <-done
		inflight--
		record(res)

		switch {
		case res.Status.Succeeded():
			for _, dep := range p.graph.Dependents(res.ID) {
				pending[dep]--
				if pending[dep] == 0 {
					ready = p.insertReady(ready, dep)
				}
			}
		case res.Status == StatusFailed:
			for _, dep := range p.graph.Descendants(res.ID) {
				if _, ok := results[dep]; !ok {
					record(StepResult{ID: dep, Status: StatusBlocked, Err: &BlockedError{Step: dep, By: res.ID}})
				}
			}
		}
	}
	_ = g.Wait()

	for _, id := range order {
		if _, ok := results[id]; ok {
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = fmt.Errorf("step %q was not scheduled", id)
		}
		record(StepResult{ID: id, Status: StatusCancelled, Err: err})
	}

	report := &Report{Pipeline: p.opts.name, RunID: r.id, Results: make([]StepResult, 0, len(order))}
	for _, id := range order {
		report.Results = append(report.Results, results[id])
	}

	err := report.Err()
	if err != nil {
		r.log.Error("pipeline failed", "error", err)
	} else {
		r.log.Info("pipeline completed",
			"created", report.Count(StatusCreated),
			"existed", report.Count(StatusExistedAlready),
			"skipped", report.Count(StatusSkipped))
	}
	return report, err
}

// insertReady keeps ready sorted by execution order so dispatch is
// deterministic.
func (p *Pipeline) insertReady(ready []StepID, id StepID) []StepID {
	i, _ := slices.BinarySearchFunc(ready, id, func(a, b StepID) int {
		return p.graph.position[a] - p.graph.position[b]
	})
	return slices.Insert(ready, i, id)
}
