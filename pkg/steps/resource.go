package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/systemstart/stackctl/pkg/api"
	"github.com/systemstart/stackctl/pkg/engine"
	"github.com/systemstart/stackctl/pkg/gcloud"
)

// target is a step configuration rendered for one call.
type target struct {
	name   string
	params map[string]string
	flags  map[string]string
	// refs holds the resolved names of the recorded ref params.
	refs map[string]string
	in   engine.Inputs
	env  Env
}

// ref returns the resource name published by the step that param points at.
func (t *target) ref(param string) (string, error) {
	if v, ok := t.refs[param]; ok {
		return v, nil
	}
	return t.in.MustOutput(engine.StepID(t.params[param]), "name")
}

// newTarget renders cfg for one call. The ref params listed in recorded are
// resolved up front; on teardown a ref whose step is already gone falls back
// to the value the step recorded in its own outputs.
func newTarget(cfg api.StepConfig, env Env, recorded []string, in engine.Inputs) (*target, error) {
	data := env.templateData()
	name, err := render(cfg.ID+".name", cfg.Name, data, in)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("name of step %q rendered empty", cfg.ID)
	}
	params, err := renderMap(cfg.ID+".params", cfg.Params, data, in)
	if err != nil {
		return nil, err
	}
	flags, err := renderMap(cfg.ID+".flags", cfg.Flags, data, in)
	if err != nil {
		return nil, err
	}

	t := &target{name: name, params: params, flags: flags, refs: make(map[string]string, len(recorded)), in: in, env: env}
	self := in.Self()
	for _, param := range recorded {
		v, err := in.MustOutput(engine.StepID(params[param]), "name")
		if err != nil {
			prev, ok := self[param]
			if !ok {
				return nil, err
			}
			v = prev
		}
		t.refs[param] = v
	}
	return t, nil
}

// unrecorded reports a teardown render failure as ErrNotFound when the step
// has no marker of its own: nothing identifies a resource to delete.
func unrecorded(in engine.Inputs, err error) error {
	if len(in.Self()) > 0 {
		return err
	}
	return fmt.Errorf("%w: step %q has no marker and cannot be rendered: %v", engine.ErrNotFound, in.Step(), err)
}

// kind describes how a resource type maps onto gcloud commands.
type kind struct {
	// command is the gcloud command group, e.g. "compute addresses".
	command []string
	// scope returns location flags appended to every call.
	scope func(t *target) []string
	// resourceName is the identifier used by describe and delete. Defaults
	// to the rendered name.
	resourceName func(t *target) string
	// createName is the identifier passed to create. Defaults to the
	// rendered name.
	createName func(t *target) string
	createArgs func(t *target) ([]string, error)
	// recorded are ref params kept in the step's outputs so teardown does
	// not depend on the referenced step's marker.
	recorded []string
	// outputs extracts extra outputs from the describe document.
	outputs func(t *target, doc map[string]any) engine.Outputs
}

// resource is the generic describe/create/delete binding.
type resource struct {
	cfg  api.StepConfig
	kind kind
	env  Env
}

func (r *resource) target(in engine.Inputs) (*target, error) {
	return newTarget(r.cfg, r.env, r.kind.recorded, in)
}

func (r *resource) args(t *target, verb string, rest ...string) []string {
	id := t.name
	if r.kind.resourceName != nil {
		id = r.kind.resourceName(t)
	}
	return slices.Concat(r.kind.command, []string{verb, id}, rest, r.scope(t))
}

func (r *resource) describe(ctx context.Context, t *target) (engine.Outputs, error) {
	out, err := gcloud.Describe(ctx, r.env.Runner, r.args(t, "describe", "--format=json")...)
	if err != nil {
		return nil, err
	}

	doc := map[string]any{}
	if len(out) > 0 {
		if err := json.Unmarshal(out, &doc); err != nil {
			return nil, fmt.Errorf("decoding describe output: %w", err)
		}
	}

	outputs := engine.Outputs{"name": t.name}
	maps.Copy(outputs, t.refs)
	if link, ok := doc["selfLink"].(string); ok {
		outputs["selfLink"] = link
	}
	if r.kind.outputs != nil {
		maps.Copy(outputs, r.kind.outputs(t, doc))
	}
	return outputs, nil
}

// Probe implements engine.Prober.
func (r *resource) Probe(ctx context.Context, in engine.Inputs) (engine.ProbeResult, error) {
	t, err := r.target(in)
	if err != nil {
		return engine.ProbeResult{}, err
	}
	outputs, err := r.describe(ctx, t)
	if gcloud.IsNotFound(err) {
		return engine.Absent(), nil
	}
	if err != nil {
		return engine.ProbeResult{}, err
	}
	return engine.Exists(outputs), nil
}

// Act implements engine.Action.
func (r *resource) Act(ctx context.Context, in engine.Inputs) (engine.Outputs, error) {
	t, err := r.target(in)
	if err != nil {
		return nil, err
	}

	var extra []string
	if r.kind.createArgs != nil {
		if extra, err = r.kind.createArgs(t); err != nil {
			return nil, err
		}
	}
	for _, k := range slices.Sorted(maps.Keys(t.flags)) {
		extra = append(extra, fmt.Sprintf("--%s=%s", k, t.flags[k]))
	}

	id := t.name
	if r.kind.createName != nil {
		id = r.kind.createName(t)
	}
	if _, err := r.env.Runner.Run(ctx, slices.Concat(r.kind.command, []string{"create", id}, extra, r.scope(t))...); err != nil {
		if gcloud.IsAlreadyExists(err) {
			outputs, descErr := r.describe(ctx, t)
			if descErr != nil {
				return nil, fmt.Errorf("%w: %w", err, descErr)
			}
			return outputs, fmt.Errorf("%w: %s", engine.ErrAlreadyExists, t.name)
		}
		return nil, err
	}
	return r.describe(ctx, t)
}

// Delete implements engine.Deleter.
func (r *resource) Delete(ctx context.Context, in engine.Inputs) error {
	t, err := r.target(in)
	if err != nil {
		return unrecorded(in, err)
	}
	if _, err := r.env.Runner.Run(ctx, r.args(t, "delete")...); err != nil {
		if gcloud.IsNotFound(err) {
			return fmt.Errorf("%w: %s", engine.ErrNotFound, t.name)
		}
		return err
	}
	return nil
}

func (r *resource) scope(t *target) []string {
	if r.kind.scope == nil {
		return nil
	}
	return r.kind.scope(t)
}

func global(*target) []string { return []string{"--global"} }

func regional(t *target) []string { return []string{"--region=" + t.env.region()} }

func stringField(doc map[string]any, key string) string {
	v, _ := doc[key].(string)
	return v
}
