package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/systemstart/stackctl/pkg/api"
	"github.com/systemstart/stackctl/pkg/engine"
	"github.com/systemstart/stackctl/pkg/gcloud"
)

type iamPolicy struct {
	Bindings []struct {
		Role    string   `json:"role"`
		Members []string `json:"members"`
	} `json:"bindings"`
}

func (p iamPolicy) has(role, member string) bool {
	for _, b := range p.Bindings {
		if b.Role == role && slices.Contains(b.Members, member) {
			return true
		}
	}
	return false
}

// iamBinding grants a role to a member on the project or, when the service
// param is set, on one Cloud Run service.
type iamBinding struct {
	cfg api.StepConfig
	env Env
}

type binding struct {
	name, member, role, service string
}

func (b *iamBinding) resolve(in engine.Inputs) (*binding, error) {
	data := b.env.templateData()
	name, err := render(b.cfg.ID+".name", b.cfg.Name, data, in)
	if err != nil {
		return nil, err
	}
	params, err := renderMap(b.cfg.ID+".params", b.cfg.Params, data, in)
	if err != nil {
		return nil, err
	}
	if params["member"] == "" || params["role"] == "" {
		return nil, fmt.Errorf("step %q: member and role must not render empty", b.cfg.ID)
	}
	return &binding{name: name, member: params["member"], role: params["role"], service: params["service"]}, nil
}

// scope returns the command prefix and trailing flags for the policy owner.
func (b *iamBinding) scope(bd *binding, verb string) []string {
	if bd.service != "" {
		return []string{"run", "services", verb, bd.service, "--region=" + b.env.region()}
	}
	return []string{"projects", verb, b.env.project()}
}

func (b *iamBinding) mutate(bd *binding, verb string) []string {
	args := append(b.scope(bd, verb), "--member="+bd.member, "--role="+bd.role)
	if bd.service == "" {
		args = append(args, "--condition=None")
	}
	return args
}

func (bd *binding) outputs() engine.Outputs {
	return engine.Outputs{"name": bd.name, "member": bd.member, "role": bd.role, "service": bd.service}
}

// recordedBinding rebuilds a binding from the step's own outputs, so it can
// be removed after the markers its member was rendered from are gone.
func recordedBinding(self engine.Outputs) (*binding, bool) {
	service, ok := self["service"]
	if !ok || self["member"] == "" || self["role"] == "" {
		return nil, false
	}
	return &binding{name: self["name"], member: self["member"], role: self["role"], service: service}, true
}

// Probe implements engine.Prober.
func (b *iamBinding) Probe(ctx context.Context, in engine.Inputs) (engine.ProbeResult, error) {
	bd, err := b.resolve(in)
	if err != nil {
		return engine.ProbeResult{}, err
	}

	out, err := gcloud.Describe(ctx, b.env.Runner, append(b.scope(bd, "get-iam-policy"), "--format=json")...)
	if gcloud.IsNotFound(err) {
		return engine.Absent(), nil
	}
	if err != nil {
		return engine.ProbeResult{}, err
	}

	var policy iamPolicy
	if err := json.Unmarshal(out, &policy); err != nil {
		return engine.ProbeResult{}, fmt.Errorf("decoding iam policy: %w", err)
	}
	if policy.has(bd.role, bd.member) {
		return engine.Exists(bd.outputs()), nil
	}
	return engine.Absent(), nil
}

// Act implements engine.Action. Adding an existing binding is a no-op in
// gcloud, so there is no already-exists case.
func (b *iamBinding) Act(ctx context.Context, in engine.Inputs) (engine.Outputs, error) {
	bd, err := b.resolve(in)
	if err != nil {
		return nil, err
	}
	if _, err := b.env.Runner.Run(ctx, b.mutate(bd, "add-iam-policy-binding")...); err != nil {
		return nil, err
	}
	return bd.outputs(), nil
}

// Delete implements engine.Deleter. The binding recorded in the step's
// marker wins over the configured one.
func (b *iamBinding) Delete(ctx context.Context, in engine.Inputs) error {
	bd, ok := recordedBinding(in.Self())
	if !ok {
		var err error
		if bd, err = b.resolve(in); err != nil {
			return unrecorded(in, err)
		}
	}
	if _, err := b.env.Runner.Run(ctx, b.mutate(bd, "remove-iam-policy-binding")...); err != nil {
		if gcloud.IsNotFound(err) {
			return fmt.Errorf("%w: %s on %s", engine.ErrNotFound, bd.role, bd.member)
		}
		return err
	}
	return nil
}
