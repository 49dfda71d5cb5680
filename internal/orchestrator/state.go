package orchestrator

import (
	"sync"
	"time"

	"github.com/xraph/conductor/internal/shared"
)

// State is the lifecycle state of one service.
type State int

const (
	StateUnregistered State = iota
	StateUninitialized
	StateInitializing
	StateRunning
	StateError
	StateShuttingDown
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	case StateShuttingDown:
		return "shutting_down"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ServiceStats are per-service lifecycle counters.
type ServiceStats struct {
	Initializations      int           `json:"initializations" yaml:"initializations"`
	Shutdowns            int           `json:"shutdowns" yaml:"shutdowns"`
	Restarts             int           `json:"restarts" yaml:"restarts"`
	HealthChecks         int           `json:"health_checks" yaml:"health_checks"`
	Failures             int           `json:"failures" yaml:"failures"`
	LastError            string        `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	LastInitDuration     time.Duration `json:"last_init_duration" yaml:"last_init_duration"`
	LastShutdownDuration time.Duration `json:"last_shutdown_duration" yaml:"last_shutdown_duration"`
	StartedAt            time.Time     `json:"started_at,omitempty" yaml:"started_at,omitempty"`
}

// entry is the orchestrator's record of one service. The instance is the
// one handed to lifecycle hooks; it survives restarts and is dropped on
// shutdown.
type entry struct {
	mu       sync.Mutex
	id       shared.Identity
	lifetime shared.Lifetime
	state    State
	instance any
	stats    ServiceStats
}

func (e *entry) current() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

func (e *entry) snapshot() ServiceStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.stats
}

func (e *entry) update(fn func(*entry)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn(e)
}
