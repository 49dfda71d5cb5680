package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/conductor/errors"
	"github.com/xraph/conductor/internal/graph"
	"github.com/xraph/conductor/internal/registry"
	"github.com/xraph/conductor/internal/resolve"
	"github.com/xraph/conductor/internal/shared"
	"github.com/xraph/conductor/logger"
	"github.com/xraph/conductor/observability"
)

// Config holds orchestrator limits and default hook timeouts. A zero
// timeout means the hook runs until it returns or the caller cancels.
type Config struct {
	// MaxConcurrency bounds concurrent hooks within a stage. 0 is unbounded.
	MaxConcurrency     int           `json:"max_concurrency" yaml:"max_concurrency"`
	InitTimeout        time.Duration `json:"init_timeout" yaml:"init_timeout"`
	ShutdownTimeout    time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	HealthCheckTimeout time.Duration `json:"health_check_timeout" yaml:"health_check_timeout"`
	// EventBuffer is the default channel size for Subscribe.
	EventBuffer int `json:"event_buffer" yaml:"event_buffer"`
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:     0,
		InitTimeout:        30 * time.Second,
		ShutdownTimeout:    30 * time.Second,
		HealthCheckTimeout: 5 * time.Second,
		EventBuffer:        64,
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(m observability.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

func WithTracer(t observability.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

func WithConfig(c Config) Option {
	return func(o *Orchestrator) {
		o.config = c
	}
}

// Orchestrator drives dependency-ordered initialization, health checks,
// restarts and shutdown of the services in a registry.
//
// InitializeAll, ShutdownAll, RestartService, InitializeService and Dispose
// are serialized against each other. State queries and HealthCheckAll may
// run concurrently with them.
type Orchestrator struct {
	registry *registry.Registry
	builder  *graph.Builder
	engine   *resolve.Engine
	scope    *resolve.Scope

	config  Config
	logger  logger.Logger
	metrics observability.Metrics
	tracer  observability.Tracer

	opMu sync.Mutex

	mu      sync.RWMutex
	entries map[shared.Identity]*entry

	subsMu sync.RWMutex
	subs   map[*subscriber]struct{}

	disposed atomic.Bool
}

// New creates an orchestrator over r. Service instances are resolved by
// engine inside a lifecycle scope owned by the orchestrator.
func New(r *registry.Registry, builder *graph.Builder, engine *resolve.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: r,
		builder:  builder,
		engine:   engine,
		config:   DefaultConfig(),
		logger:   logger.NewNoopLogger(),
		metrics:  observability.NewNoopMetrics(),
		tracer:   observability.NewNoopTracer(),
		entries:  make(map[shared.Identity]*entry),
		subs:     make(map[*subscriber]struct{}),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.builder == nil {
		o.builder = graph.NewBuilder(o.logger)
	}

	if o.engine == nil {
		o.engine = resolve.New(r, o.logger)
	}

	o.scope = o.engine.BeginScope()
	o.engine.Provide(shared.OrchestratorIdentity, o)

	return o
}

// Graph returns the cached dependency graph of the current registrations.
func (o *Orchestrator) Graph() *graph.Graph {
	return o.builder.Build(o.registry)
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.config
}

// State returns the lifecycle state of id.
func (o *Orchestrator) State(id shared.Identity) State {
	e, ok := o.lookup(id)
	registered := o.registry.IsRegistered(id)

	switch {
	case ok && (registered || e.current() != StateUninitialized):
		return e.current()
	case registered:
		return StateUninitialized
	default:
		return StateUnregistered
	}
}

// States returns the state of every registered service and of every
// unregistered service the orchestrator still tracks.
func (o *Orchestrator) States() map[shared.Identity]State {
	out := make(map[shared.Identity]State)

	for _, id := range o.registry.List() {
		out[id] = o.State(id)
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	for id, e := range o.entries {
		if _, ok := out[id]; ok {
			continue
		}

		if st := e.current(); st != StateUninitialized {
			out[id] = st
		}
	}

	return out
}

// Stats returns lifecycle counters for id.
func (o *Orchestrator) Stats(id shared.Identity) (ServiceStats, bool) {
	e, ok := o.lookup(id)
	if !ok {
		return ServiceStats{}, false
	}

	return e.snapshot(), true
}

// Disposed reports whether Dispose has been called.
func (o *Orchestrator) Disposed() bool {
	return o.disposed.Load()
}

// Dispose shuts every running service down, ends the lifecycle scope,
// disposes the resolution engine and closes all subscriptions. Every later
// call fails with a disposed error. Dispose itself is idempotent.
func (o *Orchestrator) Dispose(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	if o.disposed.Load() {
		return nil
	}

	report := o.shutdownAll(ctx)

	o.disposed.Store(true)
	o.registry.Close()

	scopeErr := o.scope.Dispose()
	o.engine.Dispose()
	o.closeSubscribers()

	o.logger.Info("orchestrator disposed",
		logger.Int("hooks", report.HookInvocations),
		logger.Bool("clean", report.Success),
	)

	return errors.Join(report.PerService.Err(), scopeErr)
}

func (o *Orchestrator) checkDisposed() error {
	if o.disposed.Load() {
		return errors.ErrDisposed("orchestrator")
	}

	return nil
}

func (o *Orchestrator) lookup(id shared.Identity) (*entry, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	e, ok := o.entries[id]

	return e, ok
}

// entryFor returns the entry of id, creating it in Uninitialized.
func (o *Orchestrator) entryFor(id shared.Identity, lifetime shared.Lifetime) *entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.entries[id]
	if !ok {
		e = &entry{id: id, lifetime: lifetime, state: StateUninitialized}
		o.entries[id] = e
	}

	e.mu.Lock()
	e.lifetime = lifetime
	e.mu.Unlock()

	return e
}

// orphans returns tracked entries whose registration has been removed.
func (o *Orchestrator) orphans() []*entry {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var out []*entry

	for id, e := range o.entries {
		if !o.registry.IsRegistered(id) {
			out = append(out, e)
		}
	}

	return out
}

// transition moves e to state to and publishes the change.
func (o *Orchestrator) transition(e *entry, to State, runID string, cause error) {
	e.mu.Lock()
	from := e.state
	e.state = to
	e.mu.Unlock()

	if from == to {
		return
	}

	switch {
	case to == StateRunning:
		o.metrics.Gauge("services_running").Inc()
	case from == StateRunning:
		o.metrics.Gauge("services_running").Dec()
	}

	o.logger.Debug("service state changed",
		logger.ServiceID(string(e.id)),
		logger.Stringer("from", from),
		logger.Stringer("to", to),
	)

	o.publish(Transition{
		Identity: e.id,
		From:     from,
		To:       to,
		At:       time.Now(),
		Err:      cause,
		RunID:    runID,
	})
}

// release drops the instance of e from the engine or lifecycle scope.
func (o *Orchestrator) release(e *entry) {
	e.mu.Lock()
	lifetime := e.lifetime
	e.instance = nil
	e.mu.Unlock()

	switch lifetime {
	case shared.LifetimeSingleton:
		o.engine.Release(e.id)
	case shared.LifetimeScoped:
		o.scope.Release(e.id)
	}
}

// instanceFor returns the instance already bound to e, resolving one from
// the lifecycle scope if needed.
func (o *Orchestrator) instanceFor(ctx context.Context, e *entry) (any, error) {
	e.mu.Lock()
	instance := e.instance
	e.mu.Unlock()

	if instance != nil {
		return instance, nil
	}

	instance, err := o.scope.Resolve(ctx, e.id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.instance = instance
	e.mu.Unlock()

	return instance, nil
}

// accessor exposes the running instances of the declared dependencies of d.
type accessor struct {
	o *Orchestrator
	d shared.Descriptor
}

func (a accessor) Get(id shared.Identity) (any, bool) {
	if !a.d.IsRequired(id) && !a.d.IsOptional(id) {
		return nil, false
	}

	e, ok := a.o.lookup(id)
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning || e.instance == nil {
		return nil, false
	}

	return e.instance, true
}
