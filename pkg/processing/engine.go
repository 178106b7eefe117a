package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/systemstart/stackctl/pkg/api"
	"github.com/systemstart/stackctl/pkg/engine"
	"github.com/systemstart/stackctl/pkg/markers"
	"github.com/systemstart/stackctl/pkg/steps"
)

// DefaultStateDir is where markers live when Options.StateDir is empty.
const DefaultStateDir = ".stackctl/state"

// Options configures Apply, Destroy, Status and Reset.
type Options struct {
	StateDir string
	Workers  int
	// Env carries the gcloud runner and configuration for the bindings.
	Env steps.Env
	// Context is the global template context, overlaid on the
	// configuration values.
	Context  map[string]any
	Recorder engine.Recorder
	Logger   *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// StoreFor returns the marker store of one stack.
func (o Options) StoreFor(stack string) *markers.FileStore {
	dir := o.StateDir
	if dir == "" {
		dir = DefaultStateDir
	}
	return markers.NewFileStore(filepath.Join(dir, stack))
}

func (o Options) definitions(s *api.Stack) ([]engine.Definition, error) {
	env := o.Env
	env.Data = templateData(o)
	defs, err := steps.NewDefinitions(s, env)
	if err != nil {
		return nil, fmt.Errorf("stack %s: %w", s.Name, err)
	}
	return defs, nil
}

func (o Options) engineOptions(name, runID string) []engine.Option {
	opts := []engine.Option{
		engine.WithName(name),
		engine.WithRunID(runID),
		engine.WithLogger(o.logger()),
	}
	if o.Workers > 0 {
		opts = append(opts, engine.WithWorkers(o.Workers))
	}
	if o.Recorder != nil {
		opts = append(opts, engine.WithRecorder(o.Recorder))
	}
	return opts
}

// StackResult is the outcome of one stack.
type StackResult struct {
	Stack  string
	Report *engine.Report
	Err    error
}

// Apply provisions the stacks in order. It stops at the first stack that
// does not fully succeed; later stacks are not attempted. Every stack
// definition is built before any remote call is made.
func Apply(ctx context.Context, list []*api.Stack, opts Options) ([]StackResult, error) {
	pipelines := make([]*engine.Pipeline, len(list))
	runID := uuid.NewString()
	for i, s := range list {
		defs, err := opts.definitions(s)
		if err != nil {
			return nil, err
		}
		p, err := engine.New(defs, opts.StoreFor(s.Name), opts.engineOptions(s.Name, runID)...)
		if err != nil {
			return nil, fmt.Errorf("stack %s: %w", s.Name, err)
		}
		pipelines[i] = p
	}

	log := opts.logger().With("run", runID)
	var results []StackResult
	for i, s := range list {
		log.Info("applying stack", "stack", s.Name, "steps", len(s.Steps))
		start := time.Now()
		report, err := pipelines[i].Run(ctx)
		results = append(results, StackResult{Stack: s.Name, Report: report, Err: err})
		if err != nil {
			if remaining := len(list) - i - 1; remaining > 0 {
				log.Warn("skipping remaining stacks", "stack", s.Name, "remaining", remaining)
			}
			return results, err
		}
		log.Info("stack applied", "stack", s.Name,
			"created", report.Count(engine.StatusCreated),
			"existed", report.Count(engine.StatusExistedAlready),
			"skipped", report.Count(engine.StatusSkipped),
			"duration", time.Since(start))
	}
	return results, nil
}

// Destroy tears the stacks down in reverse order. A failing stack does not
// stop the others; all failures are returned together.
func Destroy(ctx context.Context, list []*api.Stack, opts Options) ([]StackResult, error) {
	teardowns := make([]*engine.Teardown, len(list))
	runID := uuid.NewString()
	for i, s := range list {
		defs, err := opts.definitions(s)
		if err != nil {
			return nil, err
		}
		t, err := engine.NewTeardown(defs, opts.StoreFor(s.Name), opts.engineOptions(s.Name, runID)...)
		if err != nil {
			return nil, fmt.Errorf("stack %s: %w", s.Name, err)
		}
		teardowns[i] = t
	}

	log := opts.logger().With("run", runID)
	var results []StackResult
	var errs *multierror.Error
	for i := len(list) - 1; i >= 0; i-- {
		s := list[i]
		log.Info("destroying stack", "stack", s.Name)
		report, err := teardowns[i].Run(ctx)
		results = append(results, StackResult{Stack: s.Name, Report: report, Err: err})
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return results, errs.ErrorOrNil()
}

// StepState is the recorded state of one step.
type StepState struct {
	Stack       string
	Step        string
	Done        bool
	Outcome     string
	CompletedAt time.Time
	Outputs     map[string]string
}

// Status lists every step of the stacks, in execution order, with its
// marker state. No remote calls are made.
func Status(list []*api.Stack, opts Options) ([]StepState, error) {
	var out []StepState
	for _, s := range list {
		defs, err := opts.definitions(s)
		if err != nil {
			return nil, err
		}
		g, err := engine.NewGraph(defs)
		if err != nil {
			return nil, fmt.Errorf("stack %s: %w", s.Name, err)
		}

		store := opts.StoreFor(s.Name)
		for _, id := range g.Order() {
			state := StepState{Stack: s.Name, Step: string(id)}
			m, err := store.Get(string(id))
			switch {
			case err == nil:
				state.Done = true
				state.Outcome = m.Outcome
				state.CompletedAt = m.CompletedAt
				state.Outputs = m.Outputs
			case !errors.Is(err, markers.ErrNotFound):
				return nil, fmt.Errorf("stack %s: %w", s.Name, err)
			}
			out = append(out, state)
		}
	}
	return out, nil
}

// Reset clears the markers of a stack whose step IDs match pattern, forcing
// those steps to run again. An empty pattern clears every marker.
func Reset(s *api.Stack, pattern string, opts Options) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	cleared, err := markers.Reset(opts.StoreFor(s.Name), pattern)
	if err != nil {
		return nil, fmt.Errorf("stack %s: %w", s.Name, err)
	}

	known := make([]string, 0, len(s.Steps))
	for _, step := range s.Steps {
		known = append(known, step.ID)
	}
	for _, id := range cleared {
		if !slices.Contains(known, id) {
			opts.logger().Warn("cleared marker of unknown step", "stack", s.Name, "step", id)
		}
	}
	return cleared, nil
}
