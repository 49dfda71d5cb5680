package graph

import (
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xraph/conductor/internal/registry"
	"github.com/xraph/conductor/internal/shared"
)

const closureCacheSize = 256

// Node is one service in the dependency graph.
type Node struct {
	Identity   shared.Identity
	Descriptor shared.Descriptor

	// Dependencies holds required and optional dependencies that are registered.
	Dependencies []*Node
	Dependents   []*Node

	// Depth is -1 until computed and 0 for every node of a cyclic graph.
	Depth int

	visited bool
	onStack bool
}

// DependencyIDs returns the identities of n's dependencies.
func (n *Node) DependencyIDs() []shared.Identity {
	return nodeIDs(n.Dependencies)
}

// DependentIDs returns the identities of n's dependents.
func (n *Node) DependentIDs() []shared.Identity {
	return nodeIDs(n.Dependents)
}

func nodeIDs(nodes []*Node) []shared.Identity {
	ids := make([]shared.Identity, len(nodes))
	for i, n := range nodes {
		ids[i] = n.Identity
	}

	return ids
}

// Graph is an immutable dependency graph built from one registry version.
type Graph struct {
	Nodes                map[shared.Identity]*Node
	CircularDependencies [][]shared.Identity
	// MissingDependencies maps a service to its unregistered required dependencies.
	MissingDependencies map[shared.Identity][]shared.Identity
	// Version is the registry version the graph was built from.
	Version uint64

	order    []shared.Identity
	closures *lru.Cache[string, []shared.Identity]
}

// New builds a graph from a registry snapshot.
func New(snap registry.Snapshot) *Graph {
	closures, _ := lru.New[string, []shared.Identity](closureCacheSize)

	g := &Graph{
		Nodes:               make(map[shared.Identity]*Node, len(snap.Registrations)),
		MissingDependencies: make(map[shared.Identity][]shared.Identity),
		Version:             snap.Version,
		order:               make([]shared.Identity, 0, len(snap.Registrations)),
		closures:            closures,
	}

	for _, reg := range snap.Registrations {
		d := reg.Descriptor
		if shared.IsInfrastructure(d.Identity) {
			continue
		}

		g.Nodes[d.Identity] = &Node{Identity: d.Identity, Descriptor: d, Depth: -1}
		g.order = append(g.order, d.Identity)
	}

	for _, id := range g.order {
		g.link(g.Nodes[id])
	}

	g.detectCycles()
	g.computeDepths()

	return g
}

func (g *Graph) link(n *Node) {
	for _, dep := range n.Descriptor.Dependencies() {
		if shared.IsInfrastructure(dep) {
			continue
		}

		target, ok := g.Nodes[dep]
		if !ok {
			if n.Descriptor.IsRequired(dep) && !slices.Contains(g.MissingDependencies[n.Identity], dep) {
				g.MissingDependencies[n.Identity] = append(g.MissingDependencies[n.Identity], dep)
			}

			continue
		}

		if slices.Contains(n.Dependencies, target) {
			continue
		}

		n.Dependencies = append(n.Dependencies, target)
		target.Dependents = append(target.Dependents, n)
	}
}

// detectCycles records every back edge found by a depth-first walk as the
// slice of the path stack it closes.
func (g *Graph) detectCycles() {
	var stack []*Node

	seen := make(map[string]bool)

	var visit func(n *Node)
	visit = func(n *Node) {
		n.visited = true
		n.onStack = true
		stack = append(stack, n)

		for _, dep := range n.Dependencies {
			if dep.onStack {
				start := slices.Index(stack, dep)
				cycle := nodeIDs(stack[start:])

				key := cycleKey(cycle)
				if !seen[key] {
					seen[key] = true
					g.CircularDependencies = append(g.CircularDependencies, cycle)
				}

				continue
			}

			if !dep.visited {
				visit(dep)
			}
		}

		stack = stack[:len(stack)-1]
		n.onStack = false
	}

	for _, id := range g.order {
		if n := g.Nodes[id]; !n.visited {
			visit(n)
		}
	}
}

// cycleKey is rotation independent so the same loop found from two entry
// points is recorded once.
func cycleKey(cycle []shared.Identity) string {
	minIdx := 0
	for i, id := range cycle {
		if id < cycle[minIdx] {
			minIdx = i
		}
	}

	parts := make([]string, 0, len(cycle))
	for i := range cycle {
		parts = append(parts, string(cycle[(minIdx+i)%len(cycle)]))
	}

	return strings.Join(parts, "\x00")
}

func (g *Graph) computeDepths() {
	if g.HasCircularDependencies() {
		for _, n := range g.Nodes {
			n.Depth = 0
		}

		return
	}

	guard := make(map[*Node]bool)

	var depth func(n *Node) int
	depth = func(n *Node) int {
		if n.Depth >= 0 {
			return n.Depth
		}

		if guard[n] {
			return 0
		}

		guard[n] = true

		d := 0
		for _, dep := range n.Dependencies {
			if dd := depth(dep) + 1; dd > d {
				d = dd
			}
		}

		delete(guard, n)
		n.Depth = d

		return d
	}

	for _, id := range g.order {
		depth(g.Nodes[id])
	}
}

// HasCircularDependencies reports whether any cycle was found.
func (g *Graph) HasCircularDependencies() bool {
	return len(g.CircularDependencies) > 0
}

// HasMissingDependencies reports whether any required dependency is unregistered.
func (g *Graph) HasMissingDependencies() bool {
	return len(g.MissingDependencies) > 0
}

// Node returns the node for id.
func (g *Graph) Node(id shared.Identity) (*Node, bool) {
	n, ok := g.Nodes[id]

	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Order returns node identities in registration order.
func (g *Graph) Order() []shared.Identity {
	return slices.Clone(g.order)
}
