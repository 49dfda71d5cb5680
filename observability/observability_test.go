package observability

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestMetrics_CountersByLabel(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, Namespace: "conductor"})

	m.Counter("service_initializations_total", L("service", "db"), L("outcome", "initialized")).Inc()
	m.Counter("service_initializations_total", L("outcome", "initialized"), L("service", "db")).Add(2)
	m.Counter("service_initializations_total", L("service", "api"), L("outcome", "failed")).Inc()

	require.NotNil(t, m.Registry())
	count, err := testutil.GatherAndCount(m.Registry(), "conductor_service_initializations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	families, err := m.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)

	var total float64
	for _, metric := range families[0].GetMetric() {
		total += metric.GetCounter().GetValue()
	}

	assert.Equal(t, 4.0, total)
}

func TestMetrics_GaugeAndHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, Namespace: "conductor"})

	g := m.Gauge("services_running")
	g.Inc()
	g.Inc()
	g.Dec()

	m.Histogram("hook_duration_seconds", nil, L("hook", "initialize")).Observe(0.2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, "conductor_services_running 1")
	assert.Contains(t, body, `conductor_hook_duration_seconds_count{hook="initialize"} 1`)
}

func TestMetrics_DisabledIsNoop(t *testing.T) {
	m := NewMetrics(MetricsConfig{})

	m.Counter("anything").Inc()
	m.Gauge("g").Set(3)
	m.Histogram("h", nil).Observe(1)

	assert.Nil(t, m.Registry())

	families, err := m.Gather()
	assert.NoError(t, err)
	assert.Empty(t, families)
}

func TestTracer_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tr := NewTracerFromProvider(provider)

	_, span := tr.StartSpan(context.Background(), "conductor.initialize_all", attribute.Int("services", 3))
	span.End()

	require.NoError(t, tr.Shutdown(context.Background()))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "conductor.initialize_all", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.Int("services", 3))
}

func TestTracer_DisabledAndInvalid(t *testing.T) {
	tr, err := NewTracer(TracingConfig{})
	require.NoError(t, err)

	_, span := tr.StartSpan(context.Background(), "noop")
	assert.False(t, span.IsRecording())
	span.End()

	_, err = NewTracer(TracingConfig{Enabled: true})
	assert.Error(t, err)
}

func TestCreateSampler(t *testing.T) {
	low := trace.TraceID{}
	high := trace.TraceID{0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

	decide := func(rate float64, id trace.TraceID) sdktrace.SamplingDecision {
		s := createSampler(TracingConfig{SampleRate: rate})

		return s.ShouldSample(sdktrace.SamplingParameters{ParentContext: context.Background(), TraceID: id, Name: "span"}).Decision
	}

	assert.Equal(t, sdktrace.Drop, decide(0, low))
	assert.Equal(t, sdktrace.Drop, decide(-1, low))
	assert.Equal(t, sdktrace.RecordAndSample, decide(1, high))
	assert.Equal(t, sdktrace.RecordAndSample, decide(0.5, low))
	assert.Equal(t, sdktrace.Drop, decide(0.5, high))
}
