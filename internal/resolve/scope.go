package resolve

import (
	"context"
	"io"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/xraph/conductor/errors"
	"github.com/xraph/conductor/internal/registry"
	"github.com/xraph/conductor/internal/shared"
	"github.com/xraph/conductor/logger"
)

// Scope owns one instance per scoped service.
type Scope struct {
	id     string
	engine *Engine

	mu      sync.Mutex
	slots   map[shared.Identity]*slot
	created []shared.Identity
	ended   bool
}

// BeginScope starts a new scope.
func (e *Engine) BeginScope() *Scope {
	s := &Scope{
		id:     uuid.NewString(),
		engine: e,
		slots:  make(map[shared.Identity]*slot),
	}

	e.logger.Debug("scope started", logger.String("scope", s.id))

	return s
}

// ID returns the scope identifier.
func (s *Scope) ID() string {
	return s.id
}

func (s *Scope) Resolve(ctx context.Context, id shared.Identity) (any, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	return s.engine.resolve(ctx, id, nil, nil, s)
}

func (s *Scope) TryResolve(ctx context.Context, id shared.Identity) (any, bool) {
	return tryResolve(ctx, s, id, s.engine.logger)
}

func (s *Scope) ResolveAll(ctx context.Context, capability shared.Identity) ([]any, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	return s.engine.resolveAll(ctx, capability, s)
}

// Release drops the scoped instance of id, returning it if one was built.
func (s *Scope) Release(id shared.Identity) (any, bool) {
	s.mu.Lock()
	sl, ok := s.slots[id]
	delete(s.slots, id)
	s.mu.Unlock()

	if !ok {
		return nil, false
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	return sl.instance, sl.built
}

// Dispose ends the scope and closes its io.Closer instances in reverse
// creation order.
func (s *Scope) Dispose() error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()

		return nil
	}

	s.ended = true
	created := s.created
	slots := s.slots
	s.slots = nil
	s.created = nil
	s.mu.Unlock()

	var errs []error

	for i := len(created) - 1; i >= 0; i-- {
		sl, ok := slots[created[i]]
		if !ok {
			continue
		}

		if closer, ok := sl.instance.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, errors.NewServiceError(string(created[i]), "dispose", err))
			}
		}
	}

	s.engine.logger.Debug("scope disposed",
		logger.String("scope", s.id),
		logger.Int("instances", len(created)),
	)

	return errors.Join(errs...)
}

func (s *Scope) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return errors.ErrScopeEnded(s.id)
	}

	return nil
}

func (s *Scope) scoped(ctx context.Context, reg registry.Registration, chain []shared.Identity, res *resolution) (any, error) {
	id := reg.Descriptor.Identity

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()

		return nil, errors.ErrScopeEnded(s.id)
	}

	sl, ok := s.slots[id]
	if !ok {
		sl = &slot{id: id}
		s.slots[id] = sl
	}
	s.mu.Unlock()

	return sl.get(ctx, s.engine, res, reg, func() (any, error) {
		instance, err := s.engine.build(ctx, reg.Descriptor, chain, res, s)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		if !slices.Contains(s.created, id) {
			s.created = append(s.created, id)
		}
		s.mu.Unlock()

		return instance, nil
	})
}
