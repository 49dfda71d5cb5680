package orchestrator

import (
	"slices"
	"time"

	"github.com/xraph/conductor/errors"
	"github.com/xraph/conductor/internal/shared"
)

// Status is the outcome of one service within an orchestration call.
type Status int

const (
	StatusInitialized Status = iota + 1
	StatusSkipped
	StatusFailed
	StatusShutDown
)

func (s Status) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	case StatusShutDown:
		return "shut_down"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome records what happened to one service.
type Outcome struct {
	Status   Status        `json:"status" yaml:"status"`
	Reason   string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Err      error         `json:"-" yaml:"-"`
}

func initialized(reason string, d time.Duration) Outcome {
	return Outcome{Status: StatusInitialized, Reason: reason, Duration: d}
}

func skipped(reason string) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason}
}

func failed(err error, d time.Duration) Outcome {
	return Outcome{Status: StatusFailed, Reason: err.Error(), Duration: d, Err: err}
}

// Outcomes maps services to their outcome in one call.
type Outcomes map[shared.Identity]Outcome

// With returns the services whose outcome has status s, sorted.
func (o Outcomes) With(s Status) []shared.Identity {
	var ids []shared.Identity

	for id, out := range o {
		if out.Status == s {
			ids = append(ids, id)
		}
	}

	slices.Sort(ids)

	return ids
}

// Count returns how many services have status s.
func (o Outcomes) Count(s Status) int {
	n := 0

	for _, out := range o {
		if out.Status == s {
			n++
		}
	}

	return n
}

// Err joins the errors of every failed service, in identity order.
func (o Outcomes) Err() error {
	var errs []error

	for _, id := range o.With(StatusFailed) {
		errs = append(errs, o[id].Err)
	}

	return errors.Join(errs...)
}

// InitializationReport is the immutable result of one InitializeAll call.
// Success is true iff every service is Initialized.
type InitializationReport struct {
	RunID      string              `json:"run_id" yaml:"run_id"`
	Success    bool                `json:"success" yaml:"success"`
	PerService Outcomes            `json:"per_service" yaml:"per_service"`
	Stages     [][]shared.Identity `json:"stages" yaml:"stages"`
	StartedAt  time.Time           `json:"started_at" yaml:"started_at"`
	Duration   time.Duration       `json:"duration" yaml:"duration"`
}

// ShutdownReport is the result of one ShutdownAll call. HookInvocations
// counts Shutdown hooks actually called.
type ShutdownReport struct {
	RunID           string        `json:"run_id" yaml:"run_id"`
	Success         bool          `json:"success" yaml:"success"`
	PerService      Outcomes      `json:"per_service" yaml:"per_service"`
	HookInvocations int           `json:"hook_invocations" yaml:"hook_invocations"`
	StartedAt       time.Time     `json:"started_at" yaml:"started_at"`
	Duration        time.Duration `json:"duration" yaml:"duration"`
}

// RestartReport is the result of RestartWithDependents.
type RestartReport struct {
	RunID      string            `json:"run_id" yaml:"run_id"`
	Success    bool              `json:"success" yaml:"success"`
	Order      []shared.Identity `json:"order" yaml:"order"`
	PerService Outcomes          `json:"per_service" yaml:"per_service"`
	Duration   time.Duration     `json:"duration" yaml:"duration"`
}

// HealthReport is built on demand and never cached.
type HealthReport struct {
	Healthy    bool                                    `json:"healthy" yaml:"healthy"`
	PerService map[shared.Identity]shared.HealthStatus `json:"per_service" yaml:"per_service"`
	CheckedAt  time.Time                               `json:"checked_at" yaml:"checked_at"`
	Duration   time.Duration                           `json:"duration" yaml:"duration"`
}

// Unhealthy returns the unhealthy services, sorted.
func (r HealthReport) Unhealthy() []shared.Identity {
	var ids []shared.Identity

	for id, st := range r.PerService {
		if !st.Healthy {
			ids = append(ids, id)
		}
	}

	slices.Sort(ids)

	return ids
}
