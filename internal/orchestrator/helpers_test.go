package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xraph/conductor/internal/registry"
	"github.com/xraph/conductor/internal/shared"
)

// journal records hook calls across services in call order.
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(event string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.events = append(j.events, event)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()

	return append([]string(nil), j.events...)
}

func (j *journal) index(event string) int {
	for i, e := range j.all() {
		if e == event {
			return i
		}
	}

	return -1
}

type fakeService struct {
	name    shared.Identity
	journal *journal

	inits     atomic.Int32
	shutdowns atomic.Int32
	checks    atomic.Int32

	initErr     error
	shutdownErr error
	health      shared.HealthStatus
	healthErr   error

	// blockInit makes Initialize wait for its context.
	blockInit bool
	panicInit bool
	onInit    func(ctx context.Context, deps shared.DependencyAccessor) error
}

func newFake(name shared.Identity, j *journal) *fakeService {
	return &fakeService{name: name, journal: j, health: shared.Healthy("ok")}
}

func (f *fakeService) Initialize(ctx context.Context, deps shared.DependencyAccessor) error {
	f.inits.Add(1)

	if f.journal != nil {
		f.journal.add("init:" + string(f.name))
	}

	if f.panicInit {
		panic("boom")
	}

	if f.blockInit {
		<-ctx.Done()

		return ctx.Err()
	}

	if f.onInit != nil {
		if err := f.onInit(ctx, deps); err != nil {
			return err
		}
	}

	if f.journal != nil {
		f.journal.add("ready:" + string(f.name))
	}

	return f.initErr
}

func (f *fakeService) Shutdown(ctx context.Context) error {
	f.shutdowns.Add(1)

	if f.journal != nil {
		f.journal.add("shutdown:" + string(f.name))
	}

	return f.shutdownErr
}

func (f *fakeService) HealthCheck(ctx context.Context) (shared.HealthStatus, error) {
	f.checks.Add(1)

	return f.health, f.healthErr
}

type harness struct {
	t        *testing.T
	registry *registry.Registry
	orch     *Orchestrator
	journal  *journal
	services map[shared.Identity]*fakeService
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	r := registry.New(nil)

	return &harness{
		t:        t,
		registry: r,
		orch:     New(r, nil, nil, opts...),
		journal:  &journal{},
		services: make(map[shared.Identity]*fakeService),
	}
}

// add registers a fake service requiring requires.
func (h *harness) add(id shared.Identity, requires ...shared.Identity) *fakeService {
	h.t.Helper()

	svc := newFake(id, h.journal)
	h.services[id] = svc

	require.NoError(h.t, h.registry.Register(shared.Descriptor{
		Identity: id,
		Instance: svc,
		Required: requires,
	}))

	return svc
}

func (h *harness) register(d shared.Descriptor) {
	h.t.Helper()

	require.NoError(h.t, h.registry.Register(d))
}

func (h *harness) initialize() InitializationReport {
	h.t.Helper()

	report, err := h.orch.InitializeAll(context.Background())
	require.NoError(h.t, err)

	return report
}

func (h *harness) shutdown() ShutdownReport {
	h.t.Helper()

	report, err := h.orch.ShutdownAll(context.Background())
	require.NoError(h.t, err)

	return report
}

var errBoom = errors.New("boom")

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	require.Eventually(t, cond, time.Second, 5*time.Millisecond)
}
