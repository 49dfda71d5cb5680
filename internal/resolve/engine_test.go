package resolve

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errors2 "github.com/xraph/conductor/errors"
	"github.com/xraph/conductor/internal/registry"
	"github.com/xraph/conductor/internal/shared"
)

type counter struct{ n int64 }

func (c *counter) factory(value func() any) shared.Factory {
	return func(ctx context.Context, r shared.Resolver) (any, error) {
		atomic.AddInt64(&c.n, 1)

		return value(), nil
	}
}

func (c *counter) count() int64 { return atomic.LoadInt64(&c.n) }

type box struct{ name string }

func setup(t *testing.T, descs ...shared.Descriptor) (*registry.Registry, *Engine) {
	t.Helper()

	r := registry.New(nil)
	for _, d := range descs {
		require.NoError(t, r.Register(d))
	}

	return r, New(r, nil)
}

func TestEngine_SingletonReturnsSameInstance(t *testing.T) {
	c := &counter{}
	_, e := setup(t, shared.NewDescriptor("svc", c.factory(func() any { return &box{"svc"} })))

	a, err := e.Resolve(context.Background(), "svc")
	require.NoError(t, err)
	b, err := e.Resolve(context.Background(), "svc")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, int64(1), c.count())
}

func TestEngine_SingletonConcurrentFirstResolution(t *testing.T) {
	var builds int64

	factory := func(ctx context.Context, r shared.Resolver) (any, error) {
		atomic.AddInt64(&builds, 1)
		time.Sleep(10 * time.Millisecond)

		return &box{"slow"}, nil
	}

	_, e := setup(t, shared.NewDescriptor("slow", factory))

	const workers = 32

	results := make([]any, workers)

	var wg sync.WaitGroup

	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			<-start

			v, err := e.Resolve(context.Background(), "slow")
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&builds))

	for _, v := range results {
		assert.Same(t, results[0], v)
	}
}

func TestEngine_TransientReturnsFreshInstances(t *testing.T) {
	c := &counter{}
	_, e := setup(t, shared.NewDescriptor("t", c.factory(func() any { return &box{"t"} }), shared.Transient()))

	a, err := e.Resolve(context.Background(), "t")
	require.NoError(t, err)
	b, err := e.Resolve(context.Background(), "t")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, int64(2), c.count())
}

func TestEngine_ScopedRequiresScope(t *testing.T) {
	_, e := setup(t, shared.NewDescriptor("req", func(ctx context.Context, r shared.Resolver) (any, error) {
		return &box{"req"}, nil
	}, shared.Scoped()))

	_, err := e.Resolve(context.Background(), "req")
	require.Error(t, err)
	assert.True(t, errors2.IsScopeRequired(err))
}

func TestEngine_SingletonCannotCaptureScoped(t *testing.T) {
	_, e := setup(t,
		shared.NewDescriptor("req", func(ctx context.Context, r shared.Resolver) (any, error) {
			return &box{"req"}, nil
		}, shared.Scoped()),
		shared.NewDescriptor("single", func(ctx context.Context, r shared.Resolver) (any, error) {
			return r.Resolve(ctx, "req")
		}),
	)

	scope := e.BeginScope()
	defer scope.Dispose()

	_, err := scope.Resolve(context.Background(), "single")
	require.Error(t, err)
	assert.True(t, errors2.IsScopeRequired(err))
}

type closer struct {
	name   string
	closed *[]string
}

func (c *closer) Close() error {
	*c.closed = append(*c.closed, c.name)

	return nil
}

func TestScope_InstancesPerScope(t *testing.T) {
	var closed []string

	c := &counter{}

	_, e := setup(t,
		shared.NewDescriptor("conn", c.factory(func() any { return &closer{"conn", &closed} }), shared.Scoped()),
		shared.NewDescriptor("tx", func(ctx context.Context, r shared.Resolver) (any, error) {
			if _, err := r.Resolve(ctx, "conn"); err != nil {
				return nil, err
			}

			return &closer{"tx", &closed}, nil
		}, shared.Scoped()),
	)

	s1 := e.BeginScope()
	s2 := e.BeginScope()
	assert.NotEqual(t, s1.ID(), s2.ID())

	a, err := s1.Resolve(context.Background(), "conn")
	require.NoError(t, err)
	b, err := s1.Resolve(context.Background(), "conn")
	require.NoError(t, err)
	other, err := s2.Resolve(context.Background(), "conn")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)

	_, err = s1.Resolve(context.Background(), "tx")
	require.NoError(t, err)

	require.NoError(t, s1.Dispose())
	assert.Equal(t, []string{"tx", "conn"}, closed)

	_, err = s1.Resolve(context.Background(), "conn")
	assert.True(t, errors2.IsScopeEnded(err))
	assert.NoError(t, s1.Dispose())

	require.NoError(t, s2.Dispose())
	assert.Equal(t, int64(2), c.count())
}

func TestEngine_ConstructorAutoWiring(t *testing.T) {
	type api struct {
		db    any
		cache any
	}

	ctor := &shared.Constructor{
		Params: []shared.Identity{"db", "cache"},
		Build: func(args []any) (any, error) {
			return &api{db: args[0], cache: args[1]}, nil
		},
	}

	t.Run("optional param falls back to nil", func(t *testing.T) {
		_, e := setup(t,
			shared.Descriptor{Identity: "db", Instance: "postgres"},
			shared.Descriptor{Identity: "api", Constructor: ctor, Required: []shared.Identity{"db"}, Optional: []shared.Identity{"cache"}},
		)

		v, err := e.Resolve(context.Background(), "api")
		require.NoError(t, err)
		assert.Equal(t, "postgres", v.(*api).db)
		assert.Nil(t, v.(*api).cache)
	})

	t.Run("required param missing fails", func(t *testing.T) {
		_, e := setup(t,
			shared.Descriptor{Identity: "cache", Instance: "redis"},
			shared.Descriptor{Identity: "api", Constructor: ctor, Optional: []shared.Identity{"cache"}},
		)

		_, err := e.Resolve(context.Background(), "api")
		require.Error(t, err)
		assert.True(t, errors2.IsMissingDependency(err))
	})

	t.Run("explicit factory takes precedence", func(t *testing.T) {
		_, e := setup(t, shared.Descriptor{
			Identity:    "api",
			Constructor: ctor,
			Factory: func(ctx context.Context, r shared.Resolver) (any, error) {
				return "from factory", nil
			},
		})

		v, err := e.Resolve(context.Background(), "api")
		require.NoError(t, err)
		assert.Equal(t, "from factory", v)
	})
}

func TestEngine_CircularResolution(t *testing.T) {
	resolveOther := func(other shared.Identity) shared.Factory {
		return func(ctx context.Context, r shared.Resolver) (any, error) {
			return r.Resolve(ctx, other)
		}
	}

	_, e := setup(t,
		shared.NewDescriptor("a", resolveOther("b")),
		shared.NewDescriptor("b", resolveOther("a")),
	)

	_, err := e.Resolve(context.Background(), "a")
	require.Error(t, err)
	assert.True(t, errors2.IsCircularDependency(err))

	// a failed build does not cache anything
	_, ok := e.Instance("a")
	assert.False(t, ok)
}

func TestEngine_ConcurrentCircularResolution(t *testing.T) {
	var arrived atomic.Int32

	ready := make(chan struct{})

	resolveOther := func(other shared.Identity) shared.Factory {
		return func(ctx context.Context, r shared.Resolver) (any, error) {
			// both builds own their slot before either resolves the other
			if arrived.Add(1) == 2 {
				close(ready)
			}
			<-ready

			return r.Resolve(ctx, other)
		}
	}

	_, e := setup(t,
		shared.NewDescriptor("p", resolveOther("q")),
		shared.NewDescriptor("q", resolveOther("p")),
	)

	errs := make(chan error, 2)

	for _, id := range []shared.Identity{"p", "q"} {
		go func(id shared.Identity) {
			_, err := e.Resolve(context.Background(), id)
			errs <- err
		}(id)
	}

	for range 2 {
		select {
		case err := <-errs:
			require.Error(t, err)
			assert.True(t, errors2.IsCircularDependency(err))
		case <-time.After(2 * time.Second):
			t.Fatal("concurrent resolution of a cycle did not return")
		}
	}

	_, ok := e.Instance("p")
	assert.False(t, ok)
}

func TestEngine_WaiterSeesCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	_, e := setup(t, shared.NewDescriptor("slow", func(ctx context.Context, r shared.Resolver) (any, error) {
		<-release

		return &box{"slow"}, nil
	}))

	go func() { _, _ = e.Resolve(context.Background(), "slow") }()

	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()

		s, ok := e.singletons["slow"]
		if !ok {
			return false
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		return s.owner != nil
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := e.Resolve(ctx, "slow")
	assert.True(t, errors2.IsContextCancelled(err))
}

func TestEngine_ResolveAllByCapability(t *testing.T) {
	_, e := setup(t,
		shared.Descriptor{Identity: "http", Instance: "http", Capabilities: []shared.Identity{"checker"}},
		shared.Descriptor{Identity: "other", Instance: "other"},
		shared.Descriptor{Identity: "db", Instance: "db", Capabilities: []shared.Identity{"checker"}},
	)

	all, err := e.ResolveAll(context.Background(), "checker")
	require.NoError(t, err)
	assert.Equal(t, []any{"http", "db"}, all)

	none, err := e.ResolveAll(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEngine_OverwriteRebuildsSingleton(t *testing.T) {
	r, e := setup(t, shared.Descriptor{Identity: "cfg", Instance: "v1"})

	v, err := e.Resolve(context.Background(), "cfg")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	require.NoError(t, r.Register(shared.Descriptor{Identity: "cfg", Instance: "v2"}))

	v, err = e.Resolve(context.Background(), "cfg")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
}

func TestEngine_ReleaseAndDispose(t *testing.T) {
	c := &counter{}
	_, e := setup(t, shared.NewDescriptor("svc", c.factory(func() any { return &box{"svc"} })))

	first, err := e.Resolve(context.Background(), "svc")
	require.NoError(t, err)

	released, ok := e.Release("svc")
	assert.True(t, ok)
	assert.Same(t, first, released)

	second, err := e.Resolve(context.Background(), "svc")
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	e.Dispose()
	assert.True(t, e.Disposed())

	_, err = e.Resolve(context.Background(), "svc")
	assert.True(t, errors2.IsDisposed(err))
}

func TestEngine_Errors(t *testing.T) {
	_, e := setup(t,
		shared.NewDescriptor("boom", func(ctx context.Context, r shared.Resolver) (any, error) {
			panic("kaboom")
		}),
		shared.NewDescriptor("fails", func(ctx context.Context, r shared.Resolver) (any, error) {
			return nil, errors.New("nope")
		}),
	)

	_, err := e.Resolve(context.Background(), "missing")
	assert.True(t, errors2.IsServiceNotFound(err))

	_, err = e.Resolve(context.Background(), "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	_, err = e.Resolve(context.Background(), "fails")
	require.Error(t, err)
	assert.True(t, errors2.Is(err, errors2.NewServiceError("fails", "resolve", nil)))

	_, ok := e.TryResolve(context.Background(), "fails")
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = e.Resolve(ctx, "fails")
	assert.True(t, errors2.IsContextCancelled(err))
}

func TestEngine_InfrastructureIdentities(t *testing.T) {
	r, e := setup(t)

	v, err := e.Resolve(context.Background(), shared.ResolverIdentity)
	require.NoError(t, err)
	assert.Same(t, e, v)

	v, err = e.Resolve(context.Background(), shared.RegistryIdentity)
	require.NoError(t, err)
	assert.Same(t, r, v)

	scope := e.BeginScope()
	v, ok := scope.TryResolve(context.Background(), shared.ResolverIdentity)
	assert.True(t, ok)
	assert.Same(t, scope, v)

	_, ok = e.TryResolve(context.Background(), shared.OrchestratorIdentity)
	assert.False(t, ok)

	e.Provide(shared.OrchestratorIdentity, "orch")
	v, ok = e.TryResolve(context.Background(), shared.OrchestratorIdentity)
	assert.True(t, ok)
	assert.Equal(t, "orch", v)
}
