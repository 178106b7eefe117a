package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/systemstart/stackctl/pkg/markers"
)

// Graph is a validated, topologically ordered set of definitions.
type Graph struct {
	defs       map[StepID]Definition
	order      []StepID
	position   map[StepID]int
	dependents map[StepID][]StepID
}

// NewGraph validates defs and orders them. Dependencies come before their
// dependents; otherwise declaration order is kept.
func NewGraph(defs []Definition) (*Graph, error) {
	g := &Graph{
		defs:       make(map[StepID]Definition, len(defs)),
		position:   make(map[StepID]int, len(defs)),
		dependents: make(map[StepID][]StepID, len(defs)),
	}

	declared := make(map[StepID]int, len(defs))
	for i, def := range defs {
		if def.ID == "" {
			return nil, &ConfigurationError{Reason: ReasonEmptyID, Detail: fmt.Sprintf("definition %d", i)}
		}
		if err := markers.ValidateID(string(def.ID)); err != nil {
			return nil, &ConfigurationError{Reason: ReasonInvalidID, Step: def.ID, Detail: err.Error()}
		}
		if prev, ok := declared[def.ID]; ok {
			return nil, &ConfigurationError{
				Reason: ReasonDuplicate,
				Step:   def.ID,
				Detail: fmt.Sprintf("first declared at position %d", prev),
			}
		}
		if def.Probe == nil || def.Act == nil {
			return nil, &ConfigurationError{Reason: ReasonIncomplete, Step: def.ID, Detail: "probe and action are required"}
		}
		declared[def.ID] = i
		def.DependsOn = dedupe(def.DependsOn)
		g.defs[def.ID] = def
	}

	for _, def := range defs {
		for _, dep := range g.defs[def.ID].DependsOn {
			if dep == def.ID {
				return nil, &ConfigurationError{Reason: ReasonSelfDependency, Step: def.ID}
			}
			if _, ok := declared[dep]; !ok {
				return nil, &ConfigurationError{Reason: ReasonDangling, Step: def.ID, Detail: fmt.Sprintf("%q is not defined", dep)}
			}
			g.dependents[dep] = append(g.dependents[dep], def.ID)
		}
	}

	order, err := g.sort(defs, declared)
	if err != nil {
		return nil, err
	}
	g.order = order
	for i, id := range order {
		g.position[id] = i
	}
	return g, nil
}

// sort is Kahn's algorithm picking the earliest declared ready step.
func (g *Graph) sort(defs []Definition, declared map[StepID]int) ([]StepID, error) {
	indegree := make(map[StepID]int, len(defs))
	var ready []StepID
	for _, def := range defs {
		indegree[def.ID] = len(g.defs[def.ID].DependsOn)
		if indegree[def.ID] == 0 {
			ready = append(ready, def.ID)
		}
	}

	byDeclaration := func(a, b StepID) int { return declared[a] - declared[b] }

	order := make([]StepID, 0, len(defs))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, dep := range g.dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				i, _ := slices.BinarySearchFunc(ready, dep, byDeclaration)
				ready = slices.Insert(ready, i, dep)
			}
		}
	}

	if len(order) < len(defs) {
		cycle := g.findCycle(defs, indegree)
		return nil, &ConfigurationError{
			Reason: ReasonCycle,
			Step:   cycle[0],
			Detail: joinIDs(cycle, " -> "),
		}
	}
	return order, nil
}

// findCycle walks the steps left over by sort and returns one cycle along
// DependsOn edges, with its first step repeated at the end.
func (g *Graph) findCycle(defs []Definition, indegree map[StepID]int) []StepID {
	const (
		unvisited = iota
		onStack
		finished
	)
	state := make(map[StepID]int, len(defs))
	var stack []StepID

	var visit func(id StepID) []StepID
	visit = func(id StepID) []StepID {
		state[id] = onStack
		stack = append(stack, id)
		for _, dep := range g.defs[id].DependsOn {
			switch state[dep] {
			case onStack:
				start := slices.Index(stack, dep)
				return append(slices.Clone(stack[start:]), dep)
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = finished
		return nil
	}

	for _, def := range defs {
		if indegree[def.ID] > 0 && state[def.ID] == unvisited {
			if cycle := visit(def.ID); cycle != nil {
				return cycle
			}
		}
	}
	return []StepID{defs[0].ID}
}

// Order returns the step IDs in execution order.
func (g *Graph) Order() []StepID {
	return slices.Clone(g.order)
}

// Reverse returns the step IDs in teardown order.
func (g *Graph) Reverse() []StepID {
	rev := slices.Clone(g.order)
	slices.Reverse(rev)
	return rev
}

// Len returns the number of steps.
func (g *Graph) Len() int { return len(g.order) }

// Definition returns the definition for id.
func (g *Graph) Definition(id StepID) (Definition, bool) {
	def, ok := g.defs[id]
	return def, ok
}

// Dependents returns the steps that directly depend on id, in execution
// order.
func (g *Graph) Dependents(id StepID) []StepID {
	deps := slices.Clone(g.dependents[id])
	slices.SortFunc(deps, func(a, b StepID) int { return g.position[a] - g.position[b] })
	return deps
}

// Descendants returns every step that transitively depends on id, in
// execution order.
func (g *Graph) Descendants(id StepID) []StepID {
	seen := make(map[StepID]bool)
	queue := []StepID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dep := range g.dependents[cur] {
			if !seen[dep] {
				seen[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	out := make([]StepID, 0, len(seen))
	for _, step := range g.order {
		if seen[step] {
			out = append(out, step)
		}
	}
	return out
}

func dedupe(ids []StepID) []StepID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]StepID, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func joinIDs(ids []StepID, sep string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, sep)
}
