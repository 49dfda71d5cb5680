package resolve

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/conductor/errors"
	"github.com/xraph/conductor/internal/registry"
	"github.com/xraph/conductor/internal/shared"
	"github.com/xraph/conductor/logger"
)

// Engine resolves identities to instances according to their lifetime.
type Engine struct {
	registry *registry.Registry
	logger   logger.Logger

	mu         sync.Mutex
	singletons map[shared.Identity]*slot
	infra      map[shared.Identity]any

	// waitMu guards waiting, the slot each resolution is blocked on.
	waitMu  sync.Mutex
	waiting map[*resolution]*slot

	disposed atomic.Bool
}

// resolution identifies one top-level Resolve call across the nested
// resolutions its factories make. Compared by pointer.
type resolution struct {
	root shared.Identity
}

// slot holds one lazily built instance. Exactly one resolution builds it;
// racing resolutions wait for that build instead of building their own.
type slot struct {
	id shared.Identity

	mu       sync.Mutex
	built    bool
	instance any
	revision uint64

	owner *resolution
	done  chan struct{}
}

// New creates an engine reading descriptors from r.
func New(r *registry.Registry, l logger.Logger) *Engine {
	if l == nil {
		l = logger.NewNoopLogger()
	}

	e := &Engine{
		registry:   r,
		logger:     l,
		singletons: make(map[shared.Identity]*slot),
		infra:      make(map[shared.Identity]any),
		waiting:    make(map[*resolution]*slot),
	}

	e.infra[shared.RegistryIdentity] = r
	e.infra[shared.ResolverIdentity] = e

	return e
}

// Provide binds an infrastructure identity to a fixed value.
func (e *Engine) Provide(id shared.Identity, v any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.infra[id] = v
}

// Resolve returns an instance of id. Scoped services fail with a
// scope-required error; use a Scope for them.
func (e *Engine) Resolve(ctx context.Context, id shared.Identity) (any, error) {
	return e.resolve(ctx, id, nil, nil, nil)
}

// TryResolve is Resolve without the error detail.
func (e *Engine) TryResolve(ctx context.Context, id shared.Identity) (any, bool) {
	return tryResolve(ctx, e, id, e.logger)
}

// ResolveAll resolves every registration providing capability, in
// registration order.
func (e *Engine) ResolveAll(ctx context.Context, capability shared.Identity) ([]any, error) {
	return e.resolveAll(ctx, capability, nil)
}

// Instance returns the cached singleton of id without building it.
func (e *Engine) Instance(id shared.Identity) (any, bool) {
	e.mu.Lock()
	s, ok := e.singletons[id]
	e.mu.Unlock()

	if !ok {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.instance, s.built
}

// Release drops the cached singleton of id, returning it if one was built.
func (e *Engine) Release(id shared.Identity) (any, bool) {
	e.mu.Lock()
	s, ok := e.singletons[id]
	delete(e.singletons, id)
	e.mu.Unlock()

	if !ok {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.instance, s.built
}

// Dispose drops every cached singleton. Later calls fail with a disposed error.
func (e *Engine) Dispose() {
	if e.disposed.Swap(true) {
		return
	}

	e.mu.Lock()
	e.singletons = make(map[shared.Identity]*slot)
	e.mu.Unlock()

	e.logger.Debug("resolution engine disposed")
}

// Disposed reports whether Dispose has been called.
func (e *Engine) Disposed() bool {
	return e.disposed.Load()
}

func (e *Engine) resolve(ctx context.Context, id shared.Identity, chain []shared.Identity, res *resolution, scope *Scope) (any, error) {
	if res == nil {
		res = &resolution{root: id}
	}

	if e.disposed.Load() {
		return nil, errors.ErrDisposed("resolver")
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.ErrContextCancelled("resolve "+string(id), err)
	}

	if idx := slices.Index(chain, id); idx >= 0 {
		return nil, errors.ErrCircularDependency([][]string{shared.Identities(chain[idx:])})
	}

	reg, ok := e.registry.Lookup(id)
	if !ok {
		if v, found := e.infraValue(id, scope); found {
			return v, nil
		}

		return nil, errors.ErrServiceNotFound(string(id))
	}

	next := make([]shared.Identity, len(chain), len(chain)+1)
	copy(next, chain)
	next = append(next, id)

	switch reg.Descriptor.Lifetime {
	case shared.LifetimeTransient:
		return e.build(ctx, reg.Descriptor, next, res, scope)
	case shared.LifetimeScoped:
		if scope == nil {
			return nil, errors.ErrScopeRequired(string(id))
		}

		return scope.scoped(ctx, reg, next, res)
	default:
		// singletons never capture scoped instances
		return e.singleton(ctx, reg, next, res)
	}
}

func (e *Engine) infraValue(id shared.Identity, scope *Scope) (any, bool) {
	if id == shared.ResolverIdentity && scope != nil {
		return scope, true
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.infra[id]

	return v, ok
}

func (e *Engine) slotFor(id shared.Identity) *slot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.singletons[id]
	if !ok {
		s = &slot{id: id}
		e.singletons[id] = s
	}

	return s
}

func (e *Engine) singleton(ctx context.Context, reg registry.Registration, chain []shared.Identity, res *resolution) (any, error) {
	return e.slotFor(reg.Descriptor.Identity).get(ctx, e, res, reg, func() (any, error) {
		return e.build(ctx, reg.Descriptor, chain, res, nil)
	})
}

// get returns the slot's instance, building it once per descriptor revision.
// A resolution that finds the slot under construction waits for the builder
// unless the builder is itself waiting on it, which is a dependency cycle
// spanning two resolutions.
func (s *slot) get(ctx context.Context, e *Engine, res *resolution, reg registry.Registration, build func() (any, error)) (any, error) {
	for {
		s.mu.Lock()
		if s.built && s.revision == reg.Revision {
			instance := s.instance
			s.mu.Unlock()

			return instance, nil
		}

		if s.owner == nil {
			s.owner = res
			s.done = make(chan struct{})
			s.mu.Unlock()

			return s.finish(reg, build)
		}

		owner, done := s.owner, s.done
		s.mu.Unlock()

		if owner == res {
			return nil, errors.ErrCircularDependency([][]string{{string(s.id)}})
		}

		if cycle := e.await(res, s); cycle != nil {
			return nil, errors.ErrCircularDependency([][]string{cycle})
		}

		select {
		case <-done:
			e.release(res)
		case <-ctx.Done():
			e.release(res)

			return nil, errors.ErrContextCancelled("resolve "+string(s.id), ctx.Err())
		}
	}
}

func (s *slot) finish(reg registry.Registration, build func() (any, error)) (any, error) {
	instance, err := build()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		s.instance = instance
		s.built = true
		s.revision = reg.Revision
	}

	s.owner = nil
	close(s.done)

	return instance, err
}

// await records that res waits on s. If the wait closes a loop back to res it
// records nothing and returns the identities on the loop.
func (e *Engine) await(res *resolution, s *slot) []string {
	e.waitMu.Lock()
	defer e.waitMu.Unlock()

	var cycle []string

	for next := s; next != nil; {
		next.mu.Lock()
		owner := next.owner
		next.mu.Unlock()

		if owner == nil {
			break
		}

		cycle = append(cycle, string(next.id))

		if owner == res {
			return cycle
		}

		next = e.waiting[owner]
	}

	e.waiting[res] = s

	return nil
}

func (e *Engine) release(res *resolution) {
	e.waitMu.Lock()
	defer e.waitMu.Unlock()

	delete(e.waiting, res)
}

func (e *Engine) build(ctx context.Context, d shared.Descriptor, chain []shared.Identity, res *resolution, scope *Scope) (instance any, err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(e.logger, r, logger.ServiceID(string(d.Identity)))
			err = errors.NewServiceError(string(d.Identity), "resolve", fmt.Errorf("panic: %v", r))
		}
	}()

	r := &chainResolver{engine: e, chain: chain, res: res, scope: scope}

	switch {
	case d.Factory != nil:
		instance, err = d.Factory(ctx, r)
	case d.Instance != nil:
		instance = d.Instance
	default:
		instance, err = e.construct(ctx, d, r)
	}

	if err != nil {
		return nil, errors.NewServiceError(string(d.Identity), "resolve", err)
	}

	e.logger.Debug("service instance created",
		logger.ServiceID(string(d.Identity)),
		logger.Lifetime(d.Lifetime),
		logger.Duration("duration", time.Since(start)),
	)

	return instance, nil
}

// construct auto-wires a Constructor from its declared params.
func (e *Engine) construct(ctx context.Context, d shared.Descriptor, r shared.Resolver) (any, error) {
	c := d.Constructor
	args := make([]any, len(c.Params))

	for i, p := range c.Params {
		if !e.registry.IsRegistered(p) && !shared.IsInfrastructure(p) {
			if d.IsOptional(p) {
				continue
			}

			return nil, errors.ErrMissingDependency(string(d.Identity), string(p))
		}

		v, err := r.Resolve(ctx, p)
		if err != nil {
			return nil, err
		}

		args[i] = v
	}

	return c.Build(args)
}

func (e *Engine) resolveAll(ctx context.Context, capability shared.Identity, scope *Scope) ([]any, error) {
	snap := e.registry.Snapshot()
	out := make([]any, 0)

	for _, reg := range snap.Registrations {
		if !reg.Descriptor.Provides(capability) {
			continue
		}

		v, err := e.resolve(ctx, reg.Descriptor.Identity, nil, nil, scope)
		if err != nil {
			return nil, err
		}

		out = append(out, v)
	}

	return out, nil
}

func tryResolve(ctx context.Context, r shared.Resolver, id shared.Identity, l logger.Logger) (any, bool) {
	v, err := r.Resolve(ctx, id)
	if err != nil {
		if !errors.IsServiceNotFound(err) {
			l.Debug("try resolve failed", logger.ServiceID(string(id)), logger.Error(err))
		}

		return nil, false
	}

	return v, true
}

// chainResolver is handed to factories so nested resolutions extend the
// resolution chain and stay in the same scope.
type chainResolver struct {
	engine *Engine
	chain  []shared.Identity
	res    *resolution
	scope  *Scope
}

func (c *chainResolver) Resolve(ctx context.Context, id shared.Identity) (any, error) {
	return c.engine.resolve(ctx, id, c.chain, c.res, c.scope)
}

func (c *chainResolver) TryResolve(ctx context.Context, id shared.Identity) (any, bool) {
	return tryResolve(ctx, c, id, c.engine.logger)
}
