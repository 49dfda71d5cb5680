package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	errors2 "github.com/xraph/conductor/errors"
	"github.com/xraph/conductor/internal/shared"
	"github.com/xraph/conductor/logger"
	"github.com/xraph/conductor/observability"
)

func TestInitializeAll_FailureIsolation(t *testing.T) {
	h := newHarness(t)
	a := h.add("A")
	b := h.add("B")
	c := h.add("C", "B")
	b.initErr = errBoom

	report := h.initialize()

	assert.False(t, report.Success)
	assert.Equal(t, StatusInitialized, report.PerService["A"].Status)
	assert.Equal(t, StatusFailed, report.PerService["B"].Status)
	assert.Equal(t, StatusSkipped, report.PerService["C"].Status)
	assert.Contains(t, report.PerService["C"].Reason, "'B'")

	assert.True(t, errors2.IsInitializationFailure(report.PerService["B"].Err))
	assert.ErrorIs(t, report.PerService["B"].Err, errBoom)

	assert.EqualValues(t, 1, a.inits.Load())
	assert.EqualValues(t, 0, c.inits.Load())

	assert.Equal(t, StateRunning, h.orch.State("A"))
	assert.Equal(t, StateError, h.orch.State("B"))
	assert.Equal(t, StateUninitialized, h.orch.State("C"))
}

func TestInitializeAll_Idempotent(t *testing.T) {
	h := newHarness(t)
	a := h.add("A")
	b := h.add("B", "A")

	first := h.initialize()
	require.True(t, first.Success)

	second := h.initialize()
	assert.True(t, second.Success)
	assert.Equal(t, "already running", second.PerService["A"].Reason)
	assert.NotEqual(t, first.RunID, second.RunID)

	assert.EqualValues(t, 1, a.inits.Load())
	assert.EqualValues(t, 1, b.inits.Load())
}

func TestInitializeAll_StagesRespectDependencies(t *testing.T) {
	h := newHarness(t)
	h.add("config")
	h.add("db", "config")
	h.add("cache", "config")
	h.add("api", "db", "cache")

	report := h.initialize()
	require.True(t, report.Success)

	assert.Equal(t, [][]shared.Identity{{"config"}, {"db", "cache"}, {"api"}}, report.Stages)

	j := h.journal
	assert.Less(t, j.index("ready:config"), j.index("init:db"))
	assert.Less(t, j.index("ready:config"), j.index("init:cache"))
	assert.Less(t, j.index("ready:db"), j.index("init:api"))
	assert.Less(t, j.index("ready:cache"), j.index("init:api"))
}

func TestInitializeAll_SiblingsRunConcurrently(t *testing.T) {
	h := newHarness(t)

	var arrived atomic.Int32

	barrier := func(ctx context.Context, _ shared.DependencyAccessor) error {
		arrived.Add(1)

		deadline := time.Now().Add(time.Second)
		for arrived.Load() < 3 {
			if time.Now().After(deadline) {
				return errBoom
			}

			time.Sleep(time.Millisecond)
		}

		return nil
	}

	for _, id := range []shared.Identity{"a", "b", "c"} {
		h.add(id).onInit = barrier
	}

	report := h.initialize()
	assert.True(t, report.Success, report.PerService.Err())
}

func TestInitializeAll_ConcurrencyLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrency = 1
	h := newHarness(t, WithConfig(cfg))

	var current, peak atomic.Int32

	track := func(ctx context.Context, _ shared.DependencyAccessor) error {
		n := current.Add(1)
		defer current.Add(-1)

		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}

		time.Sleep(5 * time.Millisecond)

		return nil
	}

	for _, id := range []shared.Identity{"a", "b", "c", "d"} {
		h.add(id).onInit = track
	}

	report := h.initialize()
	require.True(t, report.Success)
	assert.EqualValues(t, 1, peak.Load())
}

func TestInitializeAll_CycleAbortsBeforeHooks(t *testing.T) {
	h := newHarness(t)
	x := h.add("X", "Y")
	y := h.add("Y", "X")
	z := h.add("Z")

	_, err := h.orch.InitializeAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors2.IsCircularDependency(err))
	assert.NotEmpty(t, errors2.Cycles(err))

	assert.EqualValues(t, 0, x.inits.Load())
	assert.EqualValues(t, 0, y.inits.Load())
	assert.EqualValues(t, 0, z.inits.Load())
}

func TestInitializeAll_MissingDependencyAborts(t *testing.T) {
	h := newHarness(t)
	a := h.add("A")
	h.add("B", "ghost")

	_, err := h.orch.InitializeAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors2.IsMissingDependency(err))
	assert.EqualValues(t, 0, a.inits.Load())
}

func TestInitializeAll_CycleWinsOverMissingDependency(t *testing.T) {
	h := newHarness(t)
	x := h.add("x", "y")
	h.add("y", "x")
	h.add("z", "ghost")

	_, err := h.orch.InitializeAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors2.IsCircularDependency(err))
	assert.Len(t, errors2.Cycles(err), 1)
	assert.EqualValues(t, 0, x.inits.Load())
}

func TestInitializeAll_MissingOptionalDependencyIsIgnored(t *testing.T) {
	h := newHarness(t)
	svc := newFake("A", nil)
	h.register(shared.Descriptor{Identity: "A", Instance: svc, Optional: []shared.Identity{"ghost"}})

	report := h.initialize()
	assert.True(t, report.Success)
}

func TestInitializeAll_TimeoutFailsOnlyThatService(t *testing.T) {
	h := newHarness(t)
	slow := newFake("slow", nil)
	slow.blockInit = true
	h.register(shared.Descriptor{Identity: "slow", Instance: slow, InitTimeout: 20 * time.Millisecond})
	h.add("fast")
	h.add("after", "slow")

	report := h.initialize()

	assert.False(t, report.Success)
	assert.Equal(t, StatusFailed, report.PerService["slow"].Status)
	assert.True(t, errors2.IsTimeout(report.PerService["slow"].Err))
	assert.Equal(t, StatusInitialized, report.PerService["fast"].Status)
	assert.Equal(t, StatusSkipped, report.PerService["after"].Status)
}

func TestInitializeAll_PanicIsContained(t *testing.T) {
	h := newHarness(t)
	h.add("bad").panicInit = true
	h.add("good")

	report := h.initialize()

	assert.Equal(t, StatusFailed, report.PerService["bad"].Status)
	assert.Contains(t, report.PerService["bad"].Reason, "panic")
	assert.Equal(t, StatusInitialized, report.PerService["good"].Status)
	assert.Equal(t, StateError, h.orch.State("bad"))
}

func TestInitializeAll_CancellationSkipsLaterStages(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.add("A").onInit = func(context.Context, shared.DependencyAccessor) error {
		cancel()

		return nil
	}
	b := h.add("B", "A")

	report, err := h.orch.InitializeAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, StatusInitialized, report.PerService["A"].Status)
	assert.Equal(t, StatusSkipped, report.PerService["B"].Status)
	assert.EqualValues(t, 0, b.inits.Load())
	assert.False(t, report.Success)
}

func TestInitializeAll_HookFinishingAfterCancellationIsKept(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := h.add("A")
	a.onInit = func(hctx context.Context, _ shared.DependencyAccessor) error {
		cancel()
		<-hctx.Done()
		time.Sleep(10 * time.Millisecond)

		return nil
	}

	report, err := h.orch.InitializeAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, StatusInitialized, report.PerService["A"].Status)
	assert.Equal(t, StateRunning, h.orch.State("A"))

	shutdown := h.shutdown()
	assert.Equal(t, 1, shutdown.HookInvocations)
	assert.EqualValues(t, 1, a.shutdowns.Load())
}

func TestInitializeAll_HookReportingCancellationFails(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.add("A").onInit = func(hctx context.Context, _ shared.DependencyAccessor) error {
		cancel()
		<-hctx.Done()

		return hctx.Err()
	}

	report, err := h.orch.InitializeAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, report.PerService["A"].Status)
	assert.True(t, errors2.IsContextCancelled(report.PerService["A"].Err))
	assert.Equal(t, StateError, h.orch.State("A"))
}

type cancellingShutdown struct {
	*fakeService
	cancel context.CancelFunc
}

func (c *cancellingShutdown) Shutdown(ctx context.Context) error {
	c.cancel()
	<-ctx.Done()
	time.Sleep(10 * time.Millisecond)

	return c.fakeService.Shutdown(ctx)
}

func TestShutdownAll_HookFinishingAfterCancellationIsKept(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := &cancellingShutdown{fakeService: newFake("A", nil), cancel: cancel}
	h.register(shared.Descriptor{Identity: "A", Instance: svc})
	require.True(t, h.initialize().Success)

	report, err := h.orch.ShutdownAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, StatusShutDown, report.PerService["A"].Status)
	assert.Equal(t, StateShutdown, h.orch.State("A"))
}

func TestInitializeAll_DependencyAccessor(t *testing.T) {
	h := newHarness(t)
	db := h.add("db")
	h.add("unrelated")

	var (
		gotDB, gotUnrelated bool
		resolved            any
	)

	h.add("api", "db").onInit = func(_ context.Context, deps shared.DependencyAccessor) error {
		resolved, gotDB = deps.Get("db")
		_, gotUnrelated = deps.Get("unrelated")

		return nil
	}

	require.True(t, h.initialize().Success)

	assert.True(t, gotDB)
	assert.Same(t, db, resolved)
	assert.False(t, gotUnrelated)
}

func TestInitializeAll_PassiveInstances(t *testing.T) {
	h := newHarness(t)
	h.register(shared.NewDescriptor("plain", func(context.Context, shared.Resolver) (any, error) {
		return struct{ Name string }{"plain"}, nil
	}))

	report := h.initialize()
	assert.True(t, report.Success)
	assert.Equal(t, StateRunning, h.orch.State("plain"))
}

func TestInitializeAll_ResolutionFailure(t *testing.T) {
	h := newHarness(t)
	h.register(shared.NewDescriptor("broken", func(context.Context, shared.Resolver) (any, error) {
		return nil, errBoom
	}))

	report := h.initialize()
	assert.Equal(t, StatusFailed, report.PerService["broken"].Status)
	assert.ErrorIs(t, report.PerService["broken"].Err, errBoom)
}

func TestInitializeAll_ErrorStateNeedsRestart(t *testing.T) {
	h := newHarness(t)
	a := h.add("A")
	a.initErr = errBoom

	h.initialize()

	a.initErr = nil
	report := h.initialize()

	assert.Equal(t, StatusFailed, report.PerService["A"].Status)
	assert.True(t, errors2.IsInvalidState(report.PerService["A"].Err))
	assert.EqualValues(t, 1, a.inits.Load())
}

func TestShutdownAll_Idempotent(t *testing.T) {
	h := newHarness(t)
	a := h.add("A")
	b := h.add("B")

	require.True(t, h.initialize().Success)

	first := h.shutdown()
	assert.True(t, first.Success)
	assert.Equal(t, 2, first.HookInvocations)
	assert.Equal(t, StatusShutDown, first.PerService["A"].Status)

	second := h.shutdown()
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.HookInvocations)
	assert.Equal(t, StatusSkipped, second.PerService["A"].Status)

	assert.EqualValues(t, 1, a.shutdowns.Load())
	assert.EqualValues(t, 1, b.shutdowns.Load())
	assert.Equal(t, StateShutdown, h.orch.State("A"))
}

func TestShutdownAll_ReverseOrder(t *testing.T) {
	h := newHarness(t)
	h.add("A")
	h.add("B", "A")
	h.add("C", "B")

	require.True(t, h.initialize().Success)
	h.shutdown()

	j := h.journal
	assert.Less(t, j.index("shutdown:C"), j.index("shutdown:B"))
	assert.Less(t, j.index("shutdown:B"), j.index("shutdown:A"))
}

func TestShutdownAll_OnlyRunningServices(t *testing.T) {
	h := newHarness(t)
	b := h.add("B")
	c := h.add("C", "B")
	b.initErr = errBoom

	h.initialize()
	report := h.shutdown()

	assert.Equal(t, 0, report.HookInvocations)
	assert.EqualValues(t, 0, b.shutdowns.Load())
	assert.EqualValues(t, 0, c.shutdowns.Load())
}

func TestShutdownAll_FailureContinues(t *testing.T) {
	h := newHarness(t)
	a := h.add("A")
	b := h.add("B", "A")
	b.shutdownErr = errBoom

	require.True(t, h.initialize().Success)
	report := h.shutdown()

	assert.False(t, report.Success)
	assert.Equal(t, StatusFailed, report.PerService["B"].Status)
	assert.True(t, errors2.IsShutdownFailure(report.PerService["B"].Err))
	assert.EqualValues(t, 1, a.shutdowns.Load())
	assert.Equal(t, StateError, h.orch.State("B"))
	assert.Equal(t, StateShutdown, h.orch.State("A"))
}

func TestShutdownAll_UnregisteredRunningService(t *testing.T) {
	h := newHarness(t)
	a := h.add("A")

	require.True(t, h.initialize().Success)
	require.True(t, h.registry.Unregister("A"))

	report := h.shutdown()
	assert.Equal(t, StatusShutDown, report.PerService["A"].Status)
	assert.EqualValues(t, 1, a.shutdowns.Load())
}

func TestRestartService_OnlyTouchesTarget(t *testing.T) {
	h := newHarness(t)
	a := h.add("A")
	b := h.add("B", "A")
	c := h.add("C", "B")

	require.True(t, h.initialize().Success)
	require.NoError(t, h.orch.RestartService(context.Background(), "A"))

	assert.EqualValues(t, 2, a.inits.Load())
	assert.EqualValues(t, 1, a.shutdowns.Load())
	assert.EqualValues(t, 1, b.inits.Load())
	assert.EqualValues(t, 1, c.inits.Load())
	assert.EqualValues(t, 0, b.shutdowns.Load())
	assert.EqualValues(t, 0, c.shutdowns.Load())

	stats, ok := h.orch.Stats("A")
	require.True(t, ok)
	assert.Equal(t, 1, stats.Restarts)
	assert.Equal(t, 2, stats.Initializations)
	assert.Equal(t, StateRunning, h.orch.State("B"))
}

func TestRestartService_RecoversFromError(t *testing.T) {
	h := newHarness(t)
	a := h.add("A")
	a.initErr = errBoom

	h.initialize()
	require.Equal(t, StateError, h.orch.State("A"))

	a.initErr = nil
	require.NoError(t, h.orch.RestartService(context.Background(), "A"))
	assert.Equal(t, StateRunning, h.orch.State("A"))
	assert.EqualValues(t, 0, a.shutdowns.Load())
}

func TestRestartService_AfterShutdown(t *testing.T) {
	h := newHarness(t)
	a := h.add("A")

	require.True(t, h.initialize().Success)
	h.shutdown()

	require.NoError(t, h.orch.RestartService(context.Background(), "A"))
	assert.Equal(t, StateRunning, h.orch.State("A"))
	assert.EqualValues(t, 2, a.inits.Load())
}

func TestRestartService_Errors(t *testing.T) {
	h := newHarness(t)
	h.add("A")
	h.add("B", "A")

	err := h.orch.RestartService(context.Background(), "ghost")
	assert.True(t, errors2.IsServiceNotFound(err))

	err = h.orch.RestartService(context.Background(), "B")
	assert.True(t, errors2.IsInvalidState(err))
	assert.Equal(t, StateUninitialized, h.orch.State("B"))
}

func TestRestartWithDependents(t *testing.T) {
	h := newHarness(t)
	a := h.add("A")
	b := h.add("B", "A")
	c := h.add("C", "B")
	d := h.add("D")

	require.True(t, h.initialize().Success)

	report, err := h.orch.RestartWithDependents(context.Background(), "A")
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, []shared.Identity{"A", "B", "C"}, report.Order)

	for _, svc := range []*fakeService{a, b, c} {
		assert.EqualValues(t, 2, svc.inits.Load(), svc.name)
		assert.EqualValues(t, 1, svc.shutdowns.Load(), svc.name)
	}

	assert.EqualValues(t, 1, d.inits.Load())
	assert.EqualValues(t, 0, d.shutdowns.Load())

	j := h.journal
	assert.Less(t, j.index("shutdown:C"), j.index("shutdown:A"))
}

func TestInitializeService(t *testing.T) {
	h := newHarness(t)
	h.add("A")
	b := h.add("B", "A")

	err := h.orch.InitializeService(context.Background(), "B")
	assert.True(t, errors2.IsInvalidState(err))

	require.NoError(t, h.orch.InitializeService(context.Background(), "A"))
	require.NoError(t, h.orch.InitializeService(context.Background(), "B"))
	require.NoError(t, h.orch.InitializeService(context.Background(), "B"))

	assert.EqualValues(t, 1, b.inits.Load())
}

func TestHealthCheckAll(t *testing.T) {
	h := newHarness(t)
	h.add("ok")
	h.add("degraded").health = shared.Unhealthy("degraded")
	h.add("erroring").healthErr = errBoom
	h.register(shared.Descriptor{Identity: "passive", Instance: struct{}{}})

	require.True(t, h.initialize().Success)

	late := h.add("late")

	report, err := h.orch.HealthCheckAll(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Healthy)
	assert.Equal(t, shared.Healthy("ok"), report.PerService["ok"])
	assert.Equal(t, shared.Healthy("running"), report.PerService["passive"])
	assert.Equal(t, shared.Unhealthy("degraded"), report.PerService["degraded"])
	assert.False(t, report.PerService["erroring"].Healthy)
	assert.Contains(t, report.PerService["erroring"].Message, "boom")
	assert.Equal(t, shared.Unhealthy("service is uninitialized"), report.PerService["late"])
	assert.EqualValues(t, 0, late.checks.Load())

	assert.Equal(t, []shared.Identity{"degraded", "erroring", "late"}, report.Unhealthy())
}

func TestHealthCheckAll_Timeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HealthCheckTimeout = 10 * time.Millisecond
	h := newHarness(t, WithConfig(cfg))

	svc := &blockingHealth{fakeService: newFake("stuck", nil), release: make(chan struct{})}
	defer close(svc.release)
	h.register(shared.Descriptor{Identity: "stuck", Instance: svc})

	require.True(t, h.initialize().Success)

	status, err := h.orch.CheckHealth(context.Background(), "stuck")
	require.NoError(t, err)
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Message, "timeout")
}

type blockingHealth struct {
	*fakeService
	release chan struct{}
}

func (b *blockingHealth) HealthCheck(ctx context.Context) (shared.HealthStatus, error) {
	<-b.release

	return shared.Healthy("late"), nil
}

func TestSubscribe_ReceivesTransitions(t *testing.T) {
	h := newHarness(t)
	h.add("A")

	events, unsubscribe := h.orch.Subscribe(16)

	require.True(t, h.initialize().Success)
	unsubscribe()

	var got []Transition
	for tr := range events {
		got = append(got, tr)
	}

	require.Len(t, got, 2)
	assert.Equal(t, StateUninitialized, got[0].From)
	assert.Equal(t, StateInitializing, got[0].To)
	assert.Equal(t, StateRunning, got[1].To)
	assert.Equal(t, shared.Identity("A"), got[1].Identity)
	assert.NotEmpty(t, got[1].RunID)

	unsubscribe()
}

func TestSubscribe_SlowSubscriberDrops(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	h := newHarness(t, WithLogger(logger.NewTestLogger(core)))
	h.add("A")
	h.add("B")

	events, unsubscribe := h.orch.Subscribe(1)
	defer unsubscribe()

	require.True(t, h.initialize().Success)

	assert.Len(t, events, 1)
	assert.Equal(t, 3, logs.FilterMessage("lifecycle transition dropped").Len())
}

func TestDispose(t *testing.T) {
	h := newHarness(t)
	a := h.add("A")

	events, _ := h.orch.Subscribe(64)

	require.True(t, h.initialize().Success)
	require.NoError(t, h.orch.Dispose(context.Background()))
	require.NoError(t, h.orch.Dispose(context.Background()))

	assert.EqualValues(t, 1, a.shutdowns.Load())
	assert.True(t, h.orch.Disposed())

	_, err := h.orch.InitializeAll(context.Background())
	assert.True(t, errors2.IsDisposed(err))

	_, err = h.orch.ShutdownAll(context.Background())
	assert.True(t, errors2.IsDisposed(err))

	_, err = h.orch.HealthCheckAll(context.Background())
	assert.True(t, errors2.IsDisposed(err))

	assert.True(t, errors2.IsDisposed(h.orch.RestartService(context.Background(), "A")))

	assert.True(t, h.registry.Closed())
	assert.True(t, errors2.IsDisposed(h.registry.Register(shared.Descriptor{Identity: "B", Instance: "b"})))

	waitFor(t, func() bool {
		select {
		case _, open := <-events:
			return !open
		default:
			return false
		}
	})

	late, _ := h.orch.Subscribe(1)
	_, open := <-late
	assert.False(t, open)
}

func TestStates(t *testing.T) {
	h := newHarness(t)
	h.add("A")
	h.add("B").initErr = errBoom

	assert.Equal(t, StateUnregistered, h.orch.State("ghost"))
	assert.Equal(t, StateUninitialized, h.orch.State("A"))

	h.initialize()

	assert.Equal(t, map[shared.Identity]State{
		"A": StateRunning,
		"B": StateError,
	}, h.orch.States())

	stats, ok := h.orch.Stats("B")
	require.True(t, ok)
	assert.Equal(t, 1, stats.Failures)
	assert.Contains(t, stats.LastError, "boom")

	_, ok = h.orch.Stats("ghost")
	assert.False(t, ok)
}

func TestMetricsRecorded(t *testing.T) {
	m := observability.NewMetrics(observability.MetricsConfig{Enabled: true, Namespace: "conductor"})
	h := newHarness(t, WithMetrics(m))
	h.add("A")
	h.add("B").initErr = errBoom

	h.initialize()

	count, err := testutil.GatherAndCount(m.Registry(), "conductor_service_initializations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	h.shutdown()

	families, err := m.Gather()
	require.NoError(t, err)

	for _, f := range families {
		if f.GetName() == "conductor_services_running" {
			assert.Equal(t, 0.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "shutting_down", StateShuttingDown.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "skipped", StatusSkipped.String())

	text, err := StateError.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "error", string(text))
}
