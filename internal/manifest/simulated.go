package manifest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xraph/conductor/internal/shared"
)

// Simulated is a service whose hooks only wait and optionally fail.
type Simulated struct {
	Name          shared.Identity
	InitDelay     time.Duration
	ShutdownDelay time.Duration
	FailInit      bool
	FailShutdown  bool
	FailHealth    bool
	// Declared lists the dependencies the service asks for on Initialize.
	Declared []shared.Identity

	mu       sync.Mutex
	received []shared.Identity
}

func (s *Simulated) Initialize(ctx context.Context, deps shared.DependencyAccessor) error {
	var received []shared.Identity

	for _, id := range s.Declared {
		if _, ok := deps.Get(id); ok {
			received = append(received, id)
		}
	}

	s.mu.Lock()
	s.received = received
	s.mu.Unlock()

	if err := wait(ctx, s.InitDelay); err != nil {
		return err
	}

	if s.FailInit {
		return fmt.Errorf("simulated initialization failure of %s", s.Name)
	}

	return nil
}

func (s *Simulated) Shutdown(ctx context.Context) error {
	if err := wait(ctx, s.ShutdownDelay); err != nil {
		return err
	}

	if s.FailShutdown {
		return fmt.Errorf("simulated shutdown failure of %s", s.Name)
	}

	return nil
}

func (s *Simulated) HealthCheck(ctx context.Context) (shared.HealthStatus, error) {
	if s.FailHealth {
		return shared.Unhealthy("simulated failure"), nil
	}

	return shared.Healthy("simulated"), nil
}

// Received returns the dependencies that were available on the last Initialize.
func (s *Simulated) Received() []shared.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]shared.Identity(nil), s.received...)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
