package processing

import (
	"fmt"
	"strings"

	"github.com/systemstart/stackctl/pkg/api"
	"github.com/systemstart/stackctl/pkg/stacks"
)

// ResolveStack loads a stack by builtin name or by file path. Arguments
// ending in .stack.yaml or containing a path separator are files.
func ResolveStack(arg string) (*api.Stack, error) {
	if strings.HasSuffix(arg, api.StackFileSuffix) || strings.ContainsAny(arg, `/\`) {
		return api.LoadStack(arg)
	}
	return stacks.Load(arg)
}

// LoadStacks resolves every argument. Stack names must be unique since
// they key the state directory.
func LoadStacks(args []string) ([]*api.Stack, error) {
	var out []*api.Stack
	for _, arg := range args {
		s, err := ResolveStack(arg)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := checkUnique(out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadDeployment resolves the stacks of a deployment file. Each entry's
// name replaces the stack's own name, so one stack file can be deployed
// several times with different contexts. The deployment context is
// returned for use as the global context.
func LoadDeployment(filename string) ([]*api.Stack, map[string]any, error) {
	d, err := api.LoadDeployment(filename)
	if err != nil {
		return nil, nil, err
	}

	var out []*api.Stack
	for _, ref := range d.Stacks {
		var s *api.Stack
		if ref.Builtin != "" {
			s, err = stacks.Load(ref.Builtin)
		} else {
			s, err = api.LoadStack(d.StackPath(ref))
		}
		if err != nil {
			return nil, nil, fmt.Errorf("stack %q: %w", ref.Name, err)
		}

		s.Name = ref.Name
		s.Context = MergeContext(s.Context, ref.Context)
		if err := s.Validate(); err != nil {
			return nil, nil, fmt.Errorf("stack %q: %w", ref.Name, err)
		}
		out = append(out, s)
	}
	return out, d.Context, nil
}

func checkUnique(list []*api.Stack) error {
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		if seen[s.Name] {
			return fmt.Errorf("stack %q given more than once", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}
