package observability

import (
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// metrics implements the Metrics interface using Prometheus
type metrics struct {
	config   MetricsConfig
	registry *prometheus.Registry
	mu       sync.Mutex

	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewMetrics creates a new metrics instance
func NewMetrics(config MetricsConfig) Metrics {
	if !config.Enabled {
		return NewNoopMetrics()
	}

	m := &metrics{
		config:     config,
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}

	if config.EnableGo {
		m.registry.MustRegister(collectors.NewGoCollector())
	}

	if config.EnableProcess {
		m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	return m
}

// splitLabels returns label names in a stable order with matching values.
func splitLabels(labels []Label) ([]string, prometheus.Labels) {
	names := make([]string, 0, len(labels))
	values := make(prometheus.Labels, len(labels))

	for _, l := range labels {
		if _, dup := values[l.Name]; !dup {
			names = append(names, l.Name)
		}

		values[l.Name] = l.Value
	}

	sort.Strings(names)

	return names, values
}

func (m *metrics) Counter(name string, labels ...Label) Counter {
	names, values := splitLabels(labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	vec, ok := m.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: m.config.Subsystem,
			Name:      name,
			Help:      name,
		}, names)
		m.registry.MustRegister(vec)
		m.counters[name] = vec
	}

	return vec.With(values)
}

func (m *metrics) Gauge(name string, labels ...Label) Gauge {
	names, values := splitLabels(labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	vec, ok := m.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: m.config.Namespace,
			Subsystem: m.config.Subsystem,
			Name:      name,
			Help:      name,
		}, names)
		m.registry.MustRegister(vec)
		m.gauges[name] = vec
	}

	return vec.With(values)
}

func (m *metrics) Histogram(name string, buckets []float64, labels ...Label) Histogram {
	names, values := splitLabels(labels)

	if len(buckets) == 0 {
		buckets = DurationBuckets
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	vec, ok := m.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: m.config.Subsystem,
			Name:      name,
			Help:      name,
			Buckets:   buckets,
		}, names)
		m.registry.MustRegister(vec)
		m.histograms[name] = vec
	}

	return vec.With(values)
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *metrics) Gather() ([]*dto.MetricFamily, error) {
	return m.registry.Gather()
}

func (m *metrics) Registry() *prometheus.Registry {
	return m.registry
}

// noopMetrics is used when metrics are disabled.
type noopMetrics struct{}

// NewNoopMetrics returns metrics that record nothing.
func NewNoopMetrics() Metrics {
	return noopMetrics{}
}

func (noopMetrics) Counter(name string, labels ...Label) Counter { return noopCounter{} }
func (noopMetrics) Gauge(name string, labels ...Label) Gauge     { return noopGauge{} }
func (noopMetrics) Histogram(name string, buckets []float64, labels ...Label) Histogram {
	return noopHistogram{}
}
func (noopMetrics) Handler() http.Handler                { return http.NotFoundHandler() }
func (noopMetrics) Gather() ([]*dto.MetricFamily, error) { return nil, nil }
func (noopMetrics) Registry() *prometheus.Registry       { return nil }

type noopCounter struct{}

func (noopCounter) Inc()              {}
func (noopCounter) Add(value float64) {}

type noopGauge struct{}

func (noopGauge) Set(value float64) {}
func (noopGauge) Inc()              {}
func (noopGauge) Dec()              {}

type noopHistogram struct{}

func (noopHistogram) Observe(value float64) {}
