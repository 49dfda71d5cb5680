package graph

import (
	"fmt"
	"strings"

	"github.com/xraph/conductor/internal/shared"
)

// Statistics summarizes the registrations behind a graph.
type Statistics struct {
	TotalServices       int     `json:"total_services" yaml:"total_services"`
	Singletons          int     `json:"singletons" yaml:"singletons"`
	Transients          int     `json:"transients" yaml:"transients"`
	Scoped              int     `json:"scoped" yaml:"scoped"`
	MaxDepth            int     `json:"max_depth" yaml:"max_depth"`
	RootServices        int     `json:"root_services" yaml:"root_services"`
	LeafServices        int     `json:"leaf_services" yaml:"leaf_services"`
	Edges               int     `json:"edges" yaml:"edges"`
	AverageDependencies float64 `json:"average_dependencies" yaml:"average_dependencies"`
	Cycles              int     `json:"cycles" yaml:"cycles"`
	MissingDependencies int     `json:"missing_dependencies" yaml:"missing_dependencies"`
}

// Statistics computes registration counts and shape metrics.
func (g *Graph) Statistics() Statistics {
	s := Statistics{
		TotalServices: g.Len(),
		MaxDepth:      g.MaxDepth(),
		RootServices:  len(g.Roots()),
		LeafServices:  len(g.Leaves()),
		Cycles:        len(g.CircularDependencies),
	}

	for _, id := range g.order {
		n := g.Nodes[id]

		switch n.Descriptor.Lifetime {
		case shared.LifetimeSingleton:
			s.Singletons++
		case shared.LifetimeTransient:
			s.Transients++
		case shared.LifetimeScoped:
			s.Scoped++
		}

		s.Edges += len(n.Dependencies)
	}

	for _, missing := range g.MissingDependencies {
		s.MissingDependencies += len(missing)
	}

	if s.TotalServices > 0 {
		s.AverageDependencies = float64(s.Edges) / float64(s.TotalServices)
	}

	return s
}

// ServiceReport describes one node of the graph.
type ServiceReport struct {
	Identity     string   `json:"identity" yaml:"identity"`
	Lifetime     string   `json:"lifetime" yaml:"lifetime"`
	Depth        int      `json:"depth" yaml:"depth"`
	Required     []string `json:"required,omitempty" yaml:"required,omitempty"`
	Optional     []string `json:"optional,omitempty" yaml:"optional,omitempty"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Dependents   []string `json:"dependents,omitempty" yaml:"dependents,omitempty"`
	Missing      []string `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// Report is a structured dependency analysis.
type Report struct {
	TotalServices        int                 `json:"total_services" yaml:"total_services"`
	MaxDepth             int                 `json:"max_depth" yaml:"max_depth"`
	AverageDependencies  float64             `json:"average_dependencies" yaml:"average_dependencies"`
	HasCycles            bool                `json:"has_cycles" yaml:"has_cycles"`
	CircularDependencies [][]string          `json:"circular_dependencies,omitempty" yaml:"circular_dependencies,omitempty"`
	MissingDependencies  map[string][]string `json:"missing_dependencies,omitempty" yaml:"missing_dependencies,omitempty"`
	Stages               [][]string          `json:"stages,omitempty" yaml:"stages,omitempty"`
	Services             []ServiceReport     `json:"services" yaml:"services"`
	Statistics           Statistics          `json:"statistics" yaml:"statistics"`
}

// Report builds the structured dependency analysis.
func (g *Graph) Report() Report {
	stats := g.Statistics()

	r := Report{
		TotalServices:        stats.TotalServices,
		MaxDepth:             stats.MaxDepth,
		AverageDependencies:  stats.AverageDependencies,
		HasCycles:            g.HasCircularDependencies(),
		CircularDependencies: g.CycleStrings(),
		Services:             make([]ServiceReport, 0, g.Len()),
		Statistics:           stats,
	}

	if g.HasMissingDependencies() {
		r.MissingDependencies = make(map[string][]string, len(g.MissingDependencies))
		for id, missing := range g.MissingDependencies {
			r.MissingDependencies[string(id)] = shared.Identities(missing)
		}
	}

	if stages, err := g.Stages(); err == nil {
		for _, stage := range stages {
			r.Stages = append(r.Stages, shared.Identities(stage))
		}
	}

	for _, id := range g.order {
		n := g.Nodes[id]
		r.Services = append(r.Services, ServiceReport{
			Identity:     string(id),
			Lifetime:     n.Descriptor.Lifetime.String(),
			Depth:        n.Depth,
			Required:     shared.Identities(n.Descriptor.Required),
			Optional:     shared.Identities(n.Descriptor.Optional),
			Dependencies: shared.Identities(n.DependencyIDs()),
			Dependents:   shared.Identities(n.DependentIDs()),
			Missing:      shared.Identities(g.MissingDependencies[id]),
		})
	}

	return r
}

// Visualization renders the graph as depth-grouped text.
func (g *Graph) Visualization() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Dependency Graph (%d services, max depth %d)\n", g.Len(), g.MaxDepth())

	if g.HasCircularDependencies() {
		b.WriteString("\nDepth is undefined: the graph contains cycles.\n")

		for _, id := range g.order {
			writeNode(&b, g.Nodes[id], "  ")
		}
	} else {
		stages, _ := g.Stages()
		for i, stage := range stages {
			fmt.Fprintf(&b, "\nStage %d:\n", i)

			for _, id := range stage {
				writeNode(&b, g.Nodes[id], "  ")
			}
		}
	}

	if g.HasCircularDependencies() {
		b.WriteString("\nCircular dependencies:\n")

		for _, cycle := range g.CycleStrings() {
			fmt.Fprintf(&b, "  %s -> %s\n", strings.Join(cycle, " -> "), cycle[0])
		}
	}

	if g.HasMissingDependencies() {
		b.WriteString("\nMissing dependencies:\n")

		for _, id := range g.order {
			if missing, ok := g.MissingDependencies[id]; ok {
				fmt.Fprintf(&b, "  %s requires %s\n", id, strings.Join(shared.Identities(missing), ", "))
			}
		}
	}

	return b.String()
}

func writeNode(b *strings.Builder, n *Node, indent string) {
	fmt.Fprintf(b, "%s%s [%s]", indent, n.Identity, n.Descriptor.Lifetime)

	if len(n.Dependencies) > 0 {
		fmt.Fprintf(b, " -> %s", strings.Join(shared.Identities(n.DependencyIDs()), ", "))
	}

	b.WriteString("\n")
}
