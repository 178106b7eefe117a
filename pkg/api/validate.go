package api

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var validStepID = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Validate checks the stack configuration for errors. Dependency cycles and
// references to unknown steps are reported by the engine when the stack is
// turned into a pipeline.
func (s *Stack) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("stack name is required")
	}
	if !validStepID.MatchString(s.Name) {
		return fmt.Errorf("stack name %q must match %s", s.Name, validStepID.String())
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("stack has no steps")
	}

	ids := make(map[string]int)
	for i, step := range s.Steps {
		if step.ID == "" {
			return fmt.Errorf("step %d: id is required", i)
		}
		if !validStepID.MatchString(step.ID) {
			return fmt.Errorf("step %d: id %q must match %s", i, step.ID, validStepID.String())
		}
		if prev, exists := ids[step.ID]; exists {
			return fmt.Errorf("step %d: duplicate step id %q (first defined at step %d)", i, step.ID, prev)
		}
		ids[step.ID] = i

		if err := validateStepConfig(step); err != nil {
			return fmt.Errorf("step %q: %w", step.ID, err)
		}
	}

	return nil
}

func validateStepConfig(step StepConfig) error {
	schema, ok := Kinds[step.Kind]
	if !ok {
		return fmt.Errorf("unknown kind %q (valid: %s)", step.Kind, strings.Join(KindNames(), ", "))
	}
	if step.Name == "" {
		return fmt.Errorf("name is required")
	}

	for i, dep := range step.DependsOn {
		if dep == "" {
			return fmt.Errorf("dependsOn[%d] is empty", i)
		}
	}

	for param := range step.Params {
		if !schema.accepts(param) {
			return fmt.Errorf("unknown param %q for kind %s", param, step.Kind)
		}
	}
	for _, param := range schema.Required {
		if step.Params[param] == "" {
			return fmt.Errorf("params.%s is required for kind %s", param, step.Kind)
		}
	}

	for _, param := range schema.Refs {
		ref := step.Params[param]
		if ref != "" && !slices.Contains(step.DependsOn, ref) {
			return fmt.Errorf("params.%s references %q which is not in dependsOn", param, ref)
		}
	}

	switch step.Kind {
	case KindPathMatcher:
		return validatePathRules(step)
	case KindSecurityPolicyRule:
		return validateRule(step)
	}
	return nil
}

func validateRule(step StepConfig) error {
	waf, expr := step.Params["wafRule"], step.Params["expression"]
	if (waf == "") == (expr == "") {
		return fmt.Errorf("exactly one of params.wafRule and params.expression is required")
	}
	priority := step.Params["priority"]
	if strings.Contains(priority, "{{") {
		return nil
	}
	if n, err := strconv.Atoi(priority); err != nil || n < 0 {
		return fmt.Errorf("params.priority %q must be a non-negative integer", priority)
	}
	return nil
}

func validatePathRules(step StepConfig) error {
	rules, err := ParsePathRules(step.Params["pathRules"])
	if err != nil {
		return err
	}
	for _, r := range rules {
		if !slices.Contains(step.DependsOn, r.Service) {
			return fmt.Errorf("params.pathRules references %q which is not in dependsOn", r.Service)
		}
	}
	return nil
}

// PathRule routes a path pattern to the backend created by a step.
type PathRule struct {
	Path    string
	Service string
}

// ParsePathRules parses "path=stepID,path=stepID".
func ParsePathRules(raw string) ([]PathRule, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var rules []PathRule
	for _, entry := range strings.Split(raw, ",") {
		path, service, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || path == "" || service == "" {
			return nil, fmt.Errorf("invalid path rule %q: want path=step", entry)
		}
		rules = append(rules, PathRule{Path: path, Service: service})
	}
	return rules, nil
}

// KindNames returns the supported kinds, sorted.
func KindNames() []string {
	return slices.Sorted(maps.Keys(Kinds))
}
