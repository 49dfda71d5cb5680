package graph

import (
	"sync"

	"github.com/xraph/conductor/internal/registry"
	"github.com/xraph/conductor/logger"
)

// Builder caches the graph of a registry until the registry changes.
type Builder struct {
	mu     sync.Mutex
	source *registry.Registry
	cached *Graph
	builds uint64
	logger logger.Logger
}

// NewBuilder creates a builder.
func NewBuilder(l logger.Logger) *Builder {
	if l == nil {
		l = logger.NewNoopLogger()
	}

	return &Builder{logger: l}
}

// Build returns the cached graph for r when r has not been mutated since the
// last build, and a freshly built graph otherwise.
func (b *Builder) Build(r *registry.Registry) *Graph {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cached != nil && b.source == r && b.cached.Version == r.Version() {
		return b.cached
	}

	g := New(r.Snapshot())
	b.source = r
	b.cached = g
	b.builds++

	b.logger.Debug("dependency graph built",
		logger.Int("services", g.Len()),
		logger.Int("cycles", len(g.CircularDependencies)),
		logger.Int("missing", len(g.MissingDependencies)),
		logger.Uint64("registry_version", g.Version),
	)

	if g.HasCircularDependencies() {
		b.logger.Warn("circular dependencies detected", logger.Any("cycles", g.CycleStrings()))
	}

	return g
}

// Builds returns how many graphs have been built.
func (b *Builder) Builds() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.builds
}

// Invalidate drops the cached graph.
func (b *Builder) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cached = nil
}
