package observability

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/xraph/conductor"

// tracer implements the Tracer interface using OpenTelemetry
type tracer struct {
	provider trace.TracerProvider
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// NewTracer creates a tracer exporting over OTLP/HTTP. A disabled config
// yields a noop tracer.
func NewTracer(config TracingConfig) (Tracer, error) {
	if !config.Enabled {
		return NewNoopTracer(), nil
	}

	if config.Endpoint == "" {
		return nil, errors.New("tracing endpoint is required")
	}

	exporter, err := createOTLPHTTPExporter(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
	}

	var batchOpts []sdktrace.BatchSpanProcessorOption
	if config.BatchTimeout > 0 {
		batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(config.BatchTimeout))
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(createResource(config)),
		sdktrace.WithSampler(createSampler(config)),
		sdktrace.WithBatcher(exporter, batchOpts...),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &tracer{
		provider: provider,
		tracer:   provider.Tracer(instrumentationName, trace.WithInstrumentationVersion(config.ServiceVersion)),
		shutdown: provider.Shutdown,
	}, nil
}

// NewTracerFromProvider wraps an existing provider, e.g. one backed by an
// in-memory exporter in tests.
func NewTracerFromProvider(provider trace.TracerProvider) Tracer {
	t := &tracer{
		provider: provider,
		tracer:   provider.Tracer(instrumentationName),
		shutdown: func(context.Context) error { return nil },
	}

	if sp, ok := provider.(*sdktrace.TracerProvider); ok {
		t.shutdown = sp.Shutdown
	}

	return t
}

// NewNoopTracer returns a tracer whose spans record nothing.
func NewNoopTracer() Tracer {
	return NewTracerFromProvider(noop.NewTracerProvider())
}

func createOTLPHTTPExporter(config TracingConfig) (*otlptrace.Exporter, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.Endpoint),
	}

	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	if len(config.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(config.Headers))
	}

	return otlptracehttp.New(context.Background(), opts...)
}

func createResource(config TracingConfig) *resource.Resource {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", config.ServiceName),
	}

	if config.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", config.ServiceVersion))
	}

	if config.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", config.Environment))
	}

	return resource.NewSchemaless(attrs...)
}

// createSampler samples nothing at a rate of zero or below and everything at
// one or above. Parent decisions are honored either way.
func createSampler(config TracingConfig) sdktrace.Sampler {
	switch {
	case config.SampleRate <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case config.SampleRate >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}

	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SampleRate))
}

func (t *tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (t *tracer) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}
