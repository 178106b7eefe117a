package steps

import (
	"fmt"

	"github.com/systemstart/stackctl/pkg/api"
	"github.com/systemstart/stackctl/pkg/engine"
)

// NewStep creates an engine definition from a StepConfig.
func NewStep(cfg api.StepConfig, env Env) (engine.Definition, error) {
	if env.Runner == nil {
		return engine.Definition{}, fmt.Errorf("step %q: gcloud runner is required", cfg.ID)
	}

	def := engine.Definition{
		ID:      engine.StepID(cfg.ID),
		Outputs: append([]string{"name"}, extraOutputs[cfg.Kind]...),
	}
	for _, dep := range cfg.DependsOn {
		def.DependsOn = append(def.DependsOn, engine.StepID(dep))
	}

	if cfg.Kind == api.KindIAMBinding {
		b := &iamBinding{cfg: cfg, env: env}
		def.Probe, def.Act, def.Delete = b, b, b
		return def, nil
	}

	if m, ok := members[cfg.Kind]; ok {
		a := &attachment{cfg: cfg, kind: m, env: env}
		def.Probe, def.Act, def.Delete = a, a, a
		return def, nil
	}

	k, ok := kinds[cfg.Kind]
	if !ok {
		return engine.Definition{}, fmt.Errorf("step %q: unknown kind: %s", cfg.ID, cfg.Kind)
	}
	r := &resource{cfg: cfg, kind: k, env: env}
	def.Probe, def.Act, def.Delete = r, r, r
	return def, nil
}

// NewDefinitions creates the definitions for every step of a stack. The
// stack's context is overlaid on env's template data.
func NewDefinitions(s *api.Stack, env Env) ([]engine.Definition, error) {
	env = env.WithContext(s.Context)
	defs := make([]engine.Definition, 0, len(s.Steps))
	for _, cfg := range s.Steps {
		def, err := NewStep(cfg, env)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}
