package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Metrics represents the metrics collection interface
type Metrics interface {
	Counter(name string, labels ...Label) Counter
	Gauge(name string, labels ...Label) Gauge
	Histogram(name string, buckets []float64, labels ...Label) Histogram

	// Handler serves the exposition format.
	Handler() http.Handler
	Gather() ([]*dto.MetricFamily, error)
	// Registry is nil when metrics are disabled.
	Registry() *prometheus.Registry
}

// Counter represents a monotonically increasing metric
type Counter interface {
	Inc()
	Add(value float64)
}

// Gauge represents a metric that can go up and down
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
}

// Histogram represents a metric that samples observations
type Histogram interface {
	Observe(value float64)
}

// Label is a metric label pair.
type Label struct {
	Name  string
	Value string
}

// L is shorthand for a Label.
func L(name, value string) Label {
	return Label{Name: name, Value: value}
}

// Tracer starts spans for orchestrator operations.
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)
	Shutdown(ctx context.Context) error
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace"`
	Subsystem string `json:"subsystem" yaml:"subsystem"`

	EnableGo      bool `json:"enable_go" yaml:"enable_go"`
	EnableProcess bool `json:"enable_process" yaml:"enable_process"`
}

// TracingConfig represents tracing configuration
type TracingConfig struct {
	Enabled        bool              `json:"enabled" yaml:"enabled"`
	ServiceName    string            `json:"service_name" yaml:"service_name"`
	ServiceVersion string            `json:"service_version" yaml:"service_version"`
	Environment    string            `json:"environment" yaml:"environment"`
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`
	Insecure       bool              `json:"insecure" yaml:"insecure"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	// SampleRate is the root sampling ratio; 0 samples nothing.
	SampleRate   float64       `json:"sample_rate" yaml:"sample_rate"`
	BatchTimeout time.Duration `json:"batch_timeout" yaml:"batch_timeout"`
}

// Default histogram buckets for lifecycle hook durations, in seconds.
var DurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
