package conductor

import (
	"context"
	"net/http"
	"sync"

	"github.com/xraph/conductor/errors"
	"github.com/xraph/conductor/internal/diagnostics"
	"github.com/xraph/conductor/internal/graph"
	"github.com/xraph/conductor/internal/orchestrator"
	"github.com/xraph/conductor/internal/registry"
	"github.com/xraph/conductor/internal/resolve"
	"github.com/xraph/conductor/internal/shared"
	"github.com/xraph/conductor/logger"
	"github.com/xraph/conductor/observability"
)

// Conductor ties the registry, graph builder, resolution engine and
// lifecycle orchestrator together.
type Conductor struct {
	registry *registry.Registry
	builder  *graph.Builder
	engine   *resolve.Engine
	orch     *orchestrator.Orchestrator

	logger  logger.Logger
	metrics observability.Metrics

	// tracer is non-nil only when the Conductor built it and shuts it down.
	tracer    observability.Tracer
	closeOnce sync.Once
}

// New creates an empty Conductor.
func New(opts ...Option) *Conductor {
	o := options{config: orchestrator.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		o.logger = logger.NewNoopLogger()
	}

	if o.metrics == nil {
		o.metrics = observability.NewNoopMetrics()
	}

	r := registry.New(o.logger.Named("registry"))
	builder := graph.NewBuilder(o.logger.Named("graph"))
	engine := resolve.New(r, o.logger.Named("resolve"))

	orch := orchestrator.New(r, builder, engine,
		orchestrator.WithLogger(o.logger.Named("orchestrator")),
		orchestrator.WithMetrics(o.metrics),
		orchestrator.WithTracer(o.tracer),
		orchestrator.WithConfig(o.config),
	)

	c := &Conductor{
		registry: r,
		builder:  builder,
		engine:   engine,
		orch:     orch,
		logger:   o.logger,
		metrics:  o.metrics,
	}

	if o.ownsTracer {
		c.tracer = o.tracer
	}

	return c
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Register stores d, replacing any descriptor with the same identity.
func (c *Conductor) Register(d Descriptor) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}

	return c.registry.Register(d)
}

// RegisterFactory registers a service built by factory.
func (c *Conductor) RegisterFactory(id Identity, factory Factory, opts ...RegisterOption) error {
	return c.Register(shared.NewDescriptor(id, factory, opts...))
}

// RegisterInstance registers a pre-built instance.
func (c *Conductor) RegisterInstance(id Identity, instance any, opts ...RegisterOption) error {
	d := Descriptor{Identity: id, Instance: instance}
	shared.MergeOptions(opts)(&d)

	return c.Register(d)
}

// RegisterConstructor registers a service whose params are auto-wired from
// the registry. Every param must be declared required or optional through
// opts; undeclared params are treated as required.
func (c *Conductor) RegisterConstructor(id Identity, params []Identity, build func(args []any) (any, error), opts ...RegisterOption) error {
	d := Descriptor{Identity: id, Constructor: &Constructor{Params: params, Build: build}}
	shared.MergeOptions(opts)(&d)

	for _, p := range params {
		if !d.IsRequired(p) && !d.IsOptional(p) {
			d.Required = append(d.Required, p)
		}
	}

	return c.Register(d)
}

// Unregister removes id and reports whether it was registered.
func (c *Conductor) Unregister(id Identity) (bool, error) {
	if err := c.checkDisposed(); err != nil {
		return false, err
	}

	return c.registry.Unregister(id), nil
}

// IsRegistered reports false for every identity once disposed.
func (c *Conductor) IsRegistered(id Identity) bool {
	return c.checkDisposed() == nil && c.registry.IsRegistered(id)
}

// ListRegistered returns every identity in registration order.
func (c *Conductor) ListRegistered() ([]Identity, error) {
	if err := c.checkDisposed(); err != nil {
		return nil, err
	}

	return c.registry.List(), nil
}

func (c *Conductor) checkDisposed() error {
	if c.orch.Disposed() {
		return errors.ErrDisposed("conductor")
	}

	return nil
}

// =============================================================================
// RESOLUTION
// =============================================================================

func (c *Conductor) Resolve(ctx context.Context, id Identity) (any, error) {
	return c.engine.Resolve(ctx, id)
}

func (c *Conductor) TryResolve(ctx context.Context, id Identity) (any, bool) {
	return c.engine.TryResolve(ctx, id)
}

// ResolveAll resolves every registration providing capability.
func (c *Conductor) ResolveAll(ctx context.Context, capability Identity) ([]any, error) {
	return c.engine.ResolveAll(ctx, capability)
}

// BeginScope starts a scope for scoped services. Dispose it when done.
func (c *Conductor) BeginScope() *Scope {
	return c.engine.BeginScope()
}

// =============================================================================
// GRAPH QUERIES
// =============================================================================

// BuildDependencyGraph returns the cached graph of the current
// registrations. The same instance is returned until the registry changes.
func (c *Conductor) BuildDependencyGraph() (*Graph, error) {
	if err := c.checkDisposed(); err != nil {
		return nil, err
	}

	return c.builder.Build(c.registry), nil
}

func (c *Conductor) InitializationOrder() ([]Identity, error) {
	g, err := c.BuildDependencyGraph()
	if err != nil {
		return nil, err
	}

	return g.InitializationOrder()
}

func (c *Conductor) CircularDependencies() ([][]Identity, error) {
	g, err := c.BuildDependencyGraph()
	if err != nil {
		return nil, err
	}

	return g.CircularDependencies, nil
}

// ValidateDependencies reports whether the graph has no cycles and no
// missing required dependencies. It is false once disposed.
func (c *Conductor) ValidateDependencies() bool {
	return c.Validate() == nil
}

// Validate returns the configuration problems of the graph. Cycles come
// first, followed by every missing required dependency.
func (c *Conductor) Validate() error {
	g, err := c.BuildDependencyGraph()
	if err != nil {
		return err
	}

	return g.Validate()
}

func (c *Conductor) Statistics() (Statistics, error) {
	g, err := c.BuildDependencyGraph()
	if err != nil {
		return Statistics{}, err
	}

	return g.Statistics(), nil
}

func (c *Conductor) GenerateVisualization() (string, error) {
	g, err := c.BuildDependencyGraph()
	if err != nil {
		return "", err
	}

	return g.Visualization(), nil
}

func (c *Conductor) GenerateReport() (GraphReport, error) {
	g, err := c.BuildDependencyGraph()
	if err != nil {
		return GraphReport{}, err
	}

	return g.Report(), nil
}

// AllDependencies returns everything id transitively depends on.
func (c *Conductor) AllDependencies(id Identity) ([]Identity, error) {
	g, err := c.BuildDependencyGraph()
	if err != nil {
		return nil, err
	}

	return g.AllDependencies(id), nil
}

// AllDependents returns everything that transitively depends on id.
func (c *Conductor) AllDependents(id Identity) ([]Identity, error) {
	g, err := c.BuildDependencyGraph()
	if err != nil {
		return nil, err
	}

	return g.AllDependents(id), nil
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func (c *Conductor) InitializeAll(ctx context.Context) (InitializationReport, error) {
	return c.orch.InitializeAll(ctx)
}

func (c *Conductor) InitializeService(ctx context.Context, id Identity) error {
	return c.orch.InitializeService(ctx, id)
}

func (c *Conductor) ShutdownAll(ctx context.Context) (ShutdownReport, error) {
	return c.orch.ShutdownAll(ctx)
}

func (c *Conductor) RestartService(ctx context.Context, id Identity) error {
	return c.orch.RestartService(ctx, id)
}

func (c *Conductor) RestartWithDependents(ctx context.Context, id Identity) (RestartReport, error) {
	return c.orch.RestartWithDependents(ctx, id)
}

func (c *Conductor) HealthCheckAll(ctx context.Context) (HealthReport, error) {
	return c.orch.HealthCheckAll(ctx)
}

func (c *Conductor) CheckHealth(ctx context.Context, id Identity) (HealthStatus, error) {
	return c.orch.CheckHealth(ctx, id)
}

func (c *Conductor) State(id Identity) State {
	return c.orch.State(id)
}

func (c *Conductor) States() map[Identity]State {
	return c.orch.States()
}

func (c *Conductor) Stats(id Identity) (ServiceStats, bool) {
	return c.orch.Stats(id)
}

// Subscribe streams lifecycle transitions. Call the returned function to
// stop receiving them.
func (c *Conductor) Subscribe(buffer int) (<-chan Transition, func()) {
	return c.orch.Subscribe(buffer)
}

// Dispose shuts everything down and releases all instances. Every later
// lifecycle or resolution call fails with a disposed error.
func (c *Conductor) Dispose(ctx context.Context) error {
	err := c.orch.Dispose(ctx)

	c.closeOnce.Do(func() {
		if c.tracer != nil {
			if terr := c.tracer.Shutdown(ctx); terr != nil {
				err = errors.Join(err, terr)
			}
		}

		_ = c.logger.Sync()
	})

	return err
}

// Handler serves the diagnostics API for this Conductor.
func (c *Conductor) Handler() http.Handler {
	return diagnostics.NewRouter(c.orch, c.metrics, c.logger.Named("diagnostics"))
}

// Orchestrator exposes the underlying orchestrator to in-module tooling.
func (c *Conductor) Orchestrator() *orchestrator.Orchestrator {
	return c.orch
}

// Metrics returns the metrics sink the Conductor records into.
func (c *Conductor) Metrics() observability.Metrics {
	return c.metrics
}

func (c *Conductor) Logger() logger.Logger {
	return c.logger
}
