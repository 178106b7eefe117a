package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/systemstart/stackctl/pkg/api"
	"github.com/systemstart/stackctl/pkg/engine"
	"github.com/systemstart/stackctl/pkg/gcloud"
)

// member describes an entry that lives inside a global parent resource,
// such as a backend of a backend service. Its existence is read from the
// parent's describe document.
type member struct {
	// parent is the ref param naming the owning resource.
	parent  string
	command []string
	// recorded are the ref params kept in the step's outputs. It includes
	// parent.
	recorded []string
	attached func(t *target, doc map[string]any) bool
	add      func(t *target) ([]string, error)
	remove   func(t *target) []string
}

var members = map[string]member{
	api.KindBackendAttachment: {
		parent:   "backend",
		command:  []string{"compute", "backend-services"},
		recorded: []string{"backend", "neg"},
		attached: func(t *target, doc map[string]any) bool {
			suffix := "/networkEndpointGroups/" + t.refs["neg"]
			return slices.ContainsFunc(entries(doc, "backends"), func(b map[string]any) bool {
				return strings.HasSuffix(stringField(b, "group"), suffix)
			})
		},
		add: func(t *target) ([]string, error) {
			return backendArgs(t, "add-backend"), nil
		},
		remove: func(t *target) []string {
			return backendArgs(t, "remove-backend")
		},
	},

	api.KindPathMatcher: {
		parent:   "urlMap",
		command:  []string{"compute", "url-maps"},
		recorded: []string{"urlMap"},
		attached: func(t *target, doc map[string]any) bool {
			return slices.ContainsFunc(entries(doc, "pathMatchers"), func(m map[string]any) bool {
				return stringField(m, "name") == t.name
			})
		},
		add: func(t *target) ([]string, error) {
			backend, err := t.ref("defaultService")
			if err != nil {
				return nil, err
			}
			rules, err := api.ParsePathRules(t.params["pathRules"])
			if err != nil {
				return nil, err
			}
			pathRules := make([]string, 0, len(rules))
			for _, rule := range rules {
				service, err := t.in.MustOutput(engine.StepID(rule.Service), "name")
				if err != nil {
					return nil, err
				}
				pathRules = append(pathRules, rule.Path+"="+service)
			}
			hosts := t.params["hosts"]
			if hosts == "" {
				hosts = "*"
			}
			return []string{
				"compute", "url-maps", "add-path-matcher", t.refs["urlMap"], "--global",
				"--path-matcher-name=" + t.name,
				"--default-service=" + backend,
				"--path-rules=" + strings.Join(pathRules, ","),
				"--new-hosts=" + hosts,
			}, nil
		},
		remove: func(t *target) []string {
			return []string{
				"compute", "url-maps", "remove-path-matcher", t.refs["urlMap"], "--global",
				"--path-matcher-name=" + t.name,
			}
		},
	},
}

func backendArgs(t *target, verb string) []string {
	return []string{
		"compute", "backend-services", verb, t.refs["backend"], "--global",
		"--network-endpoint-group=" + t.refs["neg"],
		"--network-endpoint-group-region=" + t.env.region(),
	}
}

// entries returns the objects of the list field key in doc.
func entries(doc map[string]any, key string) []map[string]any {
	list, _ := doc[key].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// attachment binds a member kind to a step.
type attachment struct {
	cfg  api.StepConfig
	kind member
	env  Env
}

func (a *attachment) target(in engine.Inputs) (*target, error) {
	return newTarget(a.cfg, a.env, a.kind.recorded, in)
}

func (a *attachment) outputs(t *target) engine.Outputs {
	out := engine.Outputs{"name": t.name}
	maps.Copy(out, t.refs)
	return out
}

// lookup reports whether the entry is attached. A missing parent means the
// entry is missing too.
func (a *attachment) lookup(ctx context.Context, t *target) (bool, error) {
	args := slices.Concat(a.kind.command, []string{"describe", t.refs[a.kind.parent], "--format=json", "--global"})
	out, err := gcloud.Describe(ctx, a.env.Runner, args...)
	if gcloud.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	doc := map[string]any{}
	if len(out) > 0 {
		if err := json.Unmarshal(out, &doc); err != nil {
			return false, fmt.Errorf("decoding describe output: %w", err)
		}
	}
	return a.kind.attached(t, doc), nil
}

// Probe implements engine.Prober.
func (a *attachment) Probe(ctx context.Context, in engine.Inputs) (engine.ProbeResult, error) {
	t, err := a.target(in)
	if err != nil {
		return engine.ProbeResult{}, err
	}
	ok, err := a.lookup(ctx, t)
	if err != nil {
		return engine.ProbeResult{}, err
	}
	if !ok {
		return engine.Absent(), nil
	}
	return engine.Exists(a.outputs(t)), nil
}

// Act implements engine.Action.
func (a *attachment) Act(ctx context.Context, in engine.Inputs) (engine.Outputs, error) {
	t, err := a.target(in)
	if err != nil {
		return nil, err
	}
	args, err := a.kind.add(t)
	if err != nil {
		return nil, err
	}
	if _, err := a.env.Runner.Run(ctx, args...); err != nil {
		if gcloud.IsAlreadyExists(err) {
			return a.outputs(t), fmt.Errorf("%w: %s", engine.ErrAlreadyExists, t.name)
		}
		return nil, err
	}
	return a.outputs(t), nil
}

// Delete implements engine.Deleter. The parent is described first since
// gcloud reports a missing entry with messages that are not "not found".
func (a *attachment) Delete(ctx context.Context, in engine.Inputs) error {
	t, err := a.target(in)
	if err != nil {
		return unrecorded(in, err)
	}
	ok, err := a.lookup(ctx, t)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrNotFound, t.name)
	}
	if _, err := a.env.Runner.Run(ctx, a.kind.remove(t)...); err != nil {
		if gcloud.IsNotFound(err) {
			return fmt.Errorf("%w: %s", engine.ErrNotFound, t.name)
		}
		return err
	}
	return nil
}
