package shared

import "context"

// DependencyAccessor hands an initializing service its already-initialized
// dependencies.
type DependencyAccessor interface {
	Get(id Identity) (any, bool)
}

// Service is the capability contract every lifecycle-managed instance satisfies.
// Instances that do not implement it are treated as passive: they are
// considered running as soon as they resolve.
type Service interface {
	Initialize(ctx context.Context, deps DependencyAccessor) error
	Shutdown(ctx context.Context) error
	HealthCheck(ctx context.Context) (HealthStatus, error)
}

// Get fetches id from deps and asserts it to T.
func Get[T any](deps DependencyAccessor, id Identity) (T, bool) {
	var zero T

	v, ok := deps.Get(id)
	if !ok {
		return zero, false
	}

	t, ok := v.(T)

	return t, ok
}

// MapAccessor is a DependencyAccessor backed by a map.
type MapAccessor map[Identity]any

func (m MapAccessor) Get(id Identity) (any, bool) {
	v, ok := m[id]

	return v, ok
}
