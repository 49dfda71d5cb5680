package registry

import (
	"cmp"
	"slices"
	"sync"

	"github.com/xraph/conductor/errors"
	"github.com/xraph/conductor/internal/shared"
	"github.com/xraph/conductor/logger"
)

// Registration is a stored descriptor plus bookkeeping.
type Registration struct {
	Descriptor shared.Descriptor
	// Revision is the registry version at which this descriptor was stored.
	Revision uint64
	seq      uint64
}

// Registry holds service descriptors keyed by identity.
type Registry struct {
	mu       sync.RWMutex
	services map[shared.Identity]*Registration
	version  uint64
	seq      uint64
	closed   bool
	logger   logger.Logger
}

// New creates an empty registry.
func New(l logger.Logger) *Registry {
	if l == nil {
		l = logger.NewNoopLogger()
	}

	return &Registry{
		services: make(map[shared.Identity]*Registration),
		logger:   l,
	}
}

// Register stores d, overwriting any previous descriptor for the same identity.
func (r *Registry) Register(d shared.Descriptor) error {
	if r.Closed() {
		return errors.ErrDisposed("registry")
	}

	if d.Identity == "" {
		return errors.ErrConfiguration("service identity is required", nil)
	}

	if !d.HasBinding() {
		return errors.ErrConfiguration("service '"+string(d.Identity)+"' has no implementation binding", nil).
			WithContext(errors.ContextService, string(d.Identity))
	}

	if !d.Lifetime.Valid() {
		return errors.ErrConfiguration("service '"+string(d.Identity)+"' has invalid lifetime "+d.Lifetime.String(), nil).
			WithContext(errors.ContextService, string(d.Identity))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.ErrDisposed("registry")
	}

	r.version++

	prev, exists := r.services[d.Identity]
	if exists {
		r.logger.Warn("service registration overwritten",
			logger.ServiceID(string(d.Identity)),
			logger.Lifetime(prev.Descriptor.Lifetime),
		)
	}

	reg := &Registration{
		Descriptor: d.Clone(),
		Revision:   r.version,
	}

	// overwrites keep their original position in registration order
	if exists {
		reg.seq = prev.seq
	} else {
		r.seq++
		reg.seq = r.seq
	}

	r.services[d.Identity] = reg

	r.logger.Debug("service registered",
		logger.ServiceID(string(d.Identity)),
		logger.Lifetime(d.Lifetime),
		logger.Strings("requires", shared.Identities(d.Required)),
		logger.Strings("optional", shared.Identities(d.Optional)),
	)

	return nil
}

// Unregister removes id. It reports whether anything was removed. A closed
// registry removes nothing.
func (r *Registry) Unregister(id shared.Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[id]; !ok || r.closed {
		return false
	}

	delete(r.services, id)
	r.version++

	r.logger.Debug("service unregistered", logger.ServiceID(string(id)))

	return true
}

// Close freezes the registry. Reads keep working; Register fails with a
// disposed error and Unregister is a no-op.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
}

func (r *Registry) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.closed
}

// IsRegistered reports whether id has a descriptor.
func (r *Registry) IsRegistered(id shared.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.services[id]

	return ok
}

// Get returns the descriptor for id.
func (r *Registry) Get(id shared.Identity) (shared.Descriptor, bool) {
	reg, ok := r.Lookup(id)
	if !ok {
		return shared.Descriptor{}, false
	}

	return reg.Descriptor, true
}

// Lookup returns the registration for id.
func (r *Registry) Lookup(id shared.Identity) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.services[id]
	if !ok {
		return Registration{}, false
	}

	return *reg, true
}

// List returns registered identities in registration order.
func (r *Registry) List() []shared.Identity {
	snap := r.Snapshot()
	ids := make([]shared.Identity, len(snap.Registrations))

	for i, reg := range snap.Registrations {
		ids[i] = reg.Descriptor.Identity
	}

	return ids
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.services)
}

// Version increases on every mutation.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.version
}

// Snapshot is a consistent view of the registry at one version.
type Snapshot struct {
	Version       uint64
	Registrations []Registration
}

// Snapshot returns all registrations in registration order.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := make([]Registration, 0, len(r.services))
	for _, reg := range r.services {
		regs = append(regs, *reg)
	}

	slices.SortFunc(regs, func(a, b Registration) int {
		return cmp.Compare(a.seq, b.seq)
	})

	return Snapshot{Version: r.version, Registrations: regs}
}
