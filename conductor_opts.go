package conductor

import (
	"fmt"

	"github.com/xraph/conductor/config"
	"github.com/xraph/conductor/internal/orchestrator"
	"github.com/xraph/conductor/logger"
	"github.com/xraph/conductor/observability"
)

type options struct {
	logger     logger.Logger
	metrics    observability.Metrics
	tracer     observability.Tracer
	ownsTracer bool
	config     orchestrator.Config
}

// Option configures a Conductor.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records lifecycle metrics into m.
func WithMetrics(m observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer traces orchestration calls and hooks with t. The caller keeps
// ownership of t and shuts it down.
func WithTracer(t observability.Tracer) Option {
	return func(o *options) {
		o.tracer = t
		o.ownsTracer = false
	}
}

// WithOrchestratorConfig sets concurrency limits and default hook timeouts.
func WithOrchestratorConfig(c orchestrator.Config) Option {
	return func(o *options) { o.config = c }
}

// WithConfig applies the orchestrator section of a loaded configuration and
// builds the logger and metrics it describes. Explicit WithLogger and
// WithMetrics options given after it take precedence.
//
// The tracing section is not applied here since building an exporter can
// fail. Use NewFromConfig, or pass a tracer through WithTracer.
func WithConfig(c config.Config) Option {
	return func(o *options) {
		o.config = c.Orchestrator
		o.logger = logger.NewLogger(c.Logging)
		o.metrics = observability.NewMetrics(c.Metrics)
	}
}

// NewFromConfig validates c and creates a Conductor with the logger, metrics
// and tracer it describes. The tracer is shut down by Dispose. opts are
// applied after the configuration.
func NewFromConfig(c config.Config, opts ...Option) (*Conductor, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	tracer, err := observability.NewTracer(c.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	owned := func(o *options) {
		o.tracer = tracer
		o.ownsTracer = true
	}

	return New(append([]Option{WithConfig(c), owned}, opts...)...), nil
}
