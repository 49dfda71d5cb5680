package conductor

import (
	"context"
	"fmt"

	"github.com/xraph/conductor/errors"
	"github.com/xraph/conductor/internal/shared"
)

// Resolve resolves id and asserts it to T.
func Resolve[T any](ctx context.Context, c *Conductor, id Identity) (T, error) {
	var zero T

	v, err := c.Resolve(ctx, id)
	if err != nil {
		return zero, err
	}

	t, ok := v.(T)
	if !ok {
		return zero, errors.ErrConfiguration(fmt.Sprintf("service '%s' is %T, not %T", id, v, zero), nil)
	}

	return t, nil
}

// MustResolve is Resolve that panics on error. Use it during startup wiring.
func MustResolve[T any](ctx context.Context, c *Conductor, id Identity) T {
	t, err := Resolve[T](ctx, c, id)
	if err != nil {
		panic(err)
	}

	return t
}

// ResolveScoped resolves id from scope and asserts it to T.
func ResolveScoped[T any](ctx context.Context, scope *Scope, id Identity) (T, error) {
	var zero T

	v, err := scope.Resolve(ctx, id)
	if err != nil {
		return zero, err
	}

	t, ok := v.(T)
	if !ok {
		return zero, errors.ErrConfiguration(fmt.Sprintf("service '%s' is %T, not %T", id, v, zero), nil)
	}

	return t, nil
}

// Dependency fetches a running dependency inside Initialize and asserts it
// to T.
func Dependency[T any](deps DependencyAccessor, id Identity) (T, bool) {
	return shared.Get[T](deps, id)
}
