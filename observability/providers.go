package observability

import (
	"context"
	"errors"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Providers is a tracer and meter provider pair owned by one user, such as
// a pipeline built from a config with telemetry enabled.
type Providers struct {
	Tracer *sdktrace.TracerProvider
	Meter  *sdkmetric.MeterProvider
}

// newMeterProvider is replaced in tests.
var newMeterProvider = NewMeterProvider

// NewProviders builds both providers from config without installing them
// globally. It returns nil when config.Enabled is false.
func NewProviders(ctx context.Context, config Config) (*Providers, error) {
	if !config.Enabled {
		return nil, nil
	}
	config.ApplyDefaults()

	tp, err := NewTracerProvider(ctx, config)
	if err != nil {
		return nil, err
	}
	mp, err := newMeterProvider(ctx, config)
	if err != nil {
		return nil, errors.Join(err, tp.Shutdown(ctx))
	}
	return &Providers{Tracer: tp, Meter: mp}, nil
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return errors.Join(p.Tracer.Shutdown(ctx), p.Meter.Shutdown(ctx))
}
