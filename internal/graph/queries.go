package graph

import (
	"slices"

	"github.com/xraph/conductor/errors"
	"github.com/xraph/conductor/internal/shared"
)

// CycleStrings returns the cycle list as plain strings.
func (g *Graph) CycleStrings() [][]string {
	out := make([][]string, len(g.CircularDependencies))
	for i, c := range g.CircularDependencies {
		out[i] = shared.Identities(c)
	}

	return out
}

// Validate reports every configuration problem of the graph. Cycles come
// first so that errors.Cycles and IsCircularDependency see them even when
// required dependencies are missing too.
func (g *Graph) Validate() error {
	var errs []error

	if g.HasCircularDependencies() {
		errs = append(errs, errors.ErrCircularDependency(g.CycleStrings()))
	}

	for _, id := range g.order {
		if missing, ok := g.MissingDependencies[id]; ok {
			errs = append(errs, errors.ErrMissingDependency(string(id), shared.Identities(missing)...))
		}
	}

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}

// InitializationOrder returns a topological order in which every node comes
// after all of its dependencies. Nodes without ordering constraints keep
// registration order.
func (g *Graph) InitializationOrder() ([]shared.Identity, error) {
	if g.HasCircularDependencies() {
		return nil, errors.ErrCircularDependency(g.CycleStrings())
	}

	visited := make(map[shared.Identity]bool)
	visiting := make(map[shared.Identity]bool)
	result := make([]shared.Identity, 0, len(g.order))

	for _, id := range g.order {
		if err := g.visit(id, visited, visiting, &result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (g *Graph) visit(id shared.Identity, visited, visiting map[shared.Identity]bool, result *[]shared.Identity) error {
	if visited[id] {
		return nil
	}

	if visiting[id] {
		return errors.ErrCircularDependency([][]string{{string(id)}})
	}

	n := g.Nodes[id]
	if n == nil {
		return nil
	}

	visiting[id] = true

	for _, dep := range n.Dependencies {
		if err := g.visit(dep.Identity, visited, visiting, result); err != nil {
			return err
		}
	}

	visiting[id] = false
	visited[id] = true
	*result = append(*result, id)

	return nil
}

// Stages groups nodes by ascending depth. Every node's dependencies live in
// earlier stages. Within a stage nodes keep registration order.
func (g *Graph) Stages() ([][]shared.Identity, error) {
	if g.HasCircularDependencies() {
		return nil, errors.ErrCircularDependency(g.CycleStrings())
	}

	if len(g.order) == 0 {
		return nil, nil
	}

	stages := make([][]shared.Identity, g.MaxDepth()+1)
	for _, id := range g.order {
		d := g.Nodes[id].Depth
		stages[d] = append(stages[d], id)
	}

	return stages, nil
}

// MaxDepth returns the largest node depth, or 0 for an empty graph.
func (g *Graph) MaxDepth() int {
	maxDepth := 0
	for _, n := range g.Nodes {
		if n.Depth > maxDepth {
			maxDepth = n.Depth
		}
	}

	return maxDepth
}

// AllDependencies returns the transitive dependencies of id.
func (g *Graph) AllDependencies(id shared.Identity) []shared.Identity {
	return g.closure("deps:", id, func(n *Node) []*Node { return n.Dependencies })
}

// AllDependents returns every service that transitively depends on id.
func (g *Graph) AllDependents(id shared.Identity) []shared.Identity {
	return g.closure("dependents:", id, func(n *Node) []*Node { return n.Dependents })
}

func (g *Graph) closure(prefix string, id shared.Identity, next func(*Node) []*Node) []shared.Identity {
	key := prefix + string(id)
	if cached, ok := g.closures.Get(key); ok {
		return slices.Clone(cached)
	}

	start, ok := g.Nodes[id]
	if !ok {
		return nil
	}

	seen := map[shared.Identity]bool{id: true}
	result := make([]shared.Identity, 0)

	var walk func(n *Node)
	walk = func(n *Node) {
		for _, m := range next(n) {
			if seen[m.Identity] {
				continue
			}

			seen[m.Identity] = true
			result = append(result, m.Identity)
			walk(m)
		}
	}
	walk(start)

	g.closures.Add(key, result)

	return slices.Clone(result)
}

// Roots returns nodes without dependencies, in registration order.
func (g *Graph) Roots() []shared.Identity {
	var roots []shared.Identity

	for _, id := range g.order {
		if len(g.Nodes[id].Dependencies) == 0 {
			roots = append(roots, id)
		}
	}

	return roots
}

// Leaves returns nodes nothing depends on, in registration order.
func (g *Graph) Leaves() []shared.Identity {
	var leaves []shared.Identity

	for _, id := range g.order {
		if len(g.Nodes[id].Dependents) == 0 {
			leaves = append(leaves, id)
		}
	}

	return leaves
}
