package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/pipefy/logger"
	"github.com/kbukum/pipefy/version"
)

// Span and event names.
const (
	SpanPipelineRun      = "pipefy.run"
	EventStageError      = "stage.error"
	EventReconnect       = "connection.reconnect"
	EventReconnectRefuse = "connection.reconnect_refused"
)

// Common attribute keys.
const (
	AttrPipelineID = "pipefy.pipeline.id"
	AttrPolicy     = "pipefy.policy"
	AttrStages     = "pipefy.stages"
	AttrStage      = "pipefy.stage"
	AttrStageIndex = "pipefy.stage.index"
	AttrStageRole  = "pipefy.stage.role"
	AttrFatal      = "pipefy.fatal"
	AttrFrom       = "pipefy.connection.from"
	AttrTo         = "pipefy.connection.to"
	AttrStatus     = "status"
	AttrDurationMs = "duration_ms"
)

// InitTracer initializes the OpenTelemetry tracer provider and installs it
// globally. Returns a TracerProvider that should be shut down on
// application exit.
func InitTracer(ctx context.Context, config Config) (*sdktrace.TracerProvider, error) {
	tp, err := NewTracerProvider(ctx, config)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracer initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"sample_rate", config.SampleRate,
	))

	return tp, nil
}

// NewTracerProvider builds a tracer provider exporting over OTLP HTTP
// without installing it.
func NewTracerProvider(ctx context.Context, config Config) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	res, err := newResource(config)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case config.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SampleRate)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	), nil
}

// newResource creates an OpenTelemetry resource with service metadata.
func newResource(config Config) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", config.ServiceName),
			attribute.String("service.version", config.ServiceVersion),
			attribute.String("environment", config.Environment),
		),
	)
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name, trace.WithInstrumentationVersion(version.Short()))
}

// TracerFrom returns the pipefy tracer of tp, or of the global provider
// when tp is nil.
func TracerFrom(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName, trace.WithInstrumentationVersion(version.Short()))
}
