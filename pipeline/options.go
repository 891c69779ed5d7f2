package pipeline

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/pipefy/config"
	"github.com/kbukum/pipefy/logger"
	"github.com/kbukum/pipefy/observability"
	"github.com/kbukum/pipefy/resilience"
)

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	propagate      bool
	bufferSize     int
	eventBuffer    int
	id             string
	log            *logger.Logger
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	breaker        *resilience.CircuitBreakerConfig
	telemetry      *observability.Config
	err            error
}

func defaultOptions() options {
	return options{
		bufferSize:  DefaultBufferSize,
		eventBuffer: DefaultEventBuffer,
	}
}

// WithPropagateErrors selects reconnect-and-continue when true and
// fail-fast when false.
func WithPropagateErrors(propagate bool) Option {
	return func(o *options) { o.propagate = propagate }
}

// WithBufferSize sets the capacity of every Connection. Values below 1
// select DefaultBufferSize.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n <= 0 {
			n = DefaultBufferSize
		}
		o.bufferSize = n
	}
}

// WithEventBuffer sets the capacity of the event channel. Values below 1
// select DefaultEventBuffer.
func WithEventBuffer(n int) Option {
	return func(o *options) {
		if n <= 0 {
			n = DefaultEventBuffer
		}
		o.eventBuffer = n
	}
}

// WithID overrides the generated pipeline ID.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithReconnectBreaker limits reconnects under reconnect-and-continue.
// Each Connection gets its own breaker built from cfg; once it opens, the
// pipeline fails with RECONNECT_REFUSED. Without it, reconnects never stop.
// Only MaxFailures, Name and OnStateChange apply: an opened breaker is
// final, so Timeout and HalfOpenMaxCalls are ignored.
func WithReconnectBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(o *options) { o.breaker = &cfg }
}

// WithTelemetry makes each run export traces and metrics over OTLP with
// providers built from cfg and shut down when the run ends. Providers set
// with WithTracerProvider or WithMeterProvider take precedence. A disabled
// cfg is ignored.
func WithTelemetry(cfg observability.Config) Option {
	return func(o *options) {
		if !cfg.Enabled {
			o.telemetry = nil
			return
		}
		o.telemetry = &cfg
	}
}

// WithConfig applies a PipelineConfig. A config that fails validation makes
// Compose return the validation error. Options after WithConfig override it.
func WithConfig(cfg config.PipelineConfig) Option {
	return func(o *options) {
		// A logger is only built when the config names one.
		buildLogger := cfg.Logging.Level != "" || cfg.Logging.Format != ""

		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			o.err = err
			return
		}

		o.propagate = cfg.PropagateErrors
		o.bufferSize = cfg.BufferSize
		o.eventBuffer = cfg.EventBuffer
		if cfg.ID != "" {
			o.id = cfg.ID
		}
		if cfg.Breaker.Enabled {
			b := resilience.DefaultCircuitBreakerConfig(cfg.Name)
			b.MaxFailures = cfg.Breaker.MaxFailures
			o.breaker = &b
		}
		WithTelemetry(cfg.Telemetry)(o)
		if buildLogger {
			o.log = logger.New(&cfg.Logging, cfg.Name).WithComponent(logger.ComponentPipeline)
		}
	}
}
