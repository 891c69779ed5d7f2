package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/pipefy/logger"
	"github.com/kbukum/pipefy/version"
)

// Metric names.
const (
	MetricItemsDelivered = "pipefy.items.delivered"
	MetricStageErrors    = "pipefy.stage.errors"
	MetricReconnects     = "pipefy.reconnects"
	MetricRuns           = "pipefy.runs"
	MetricRunsActive     = "pipefy.runs.active"
	MetricRunDuration    = "pipefy.run.duration"
)

// InitMeter initializes the OpenTelemetry meter provider and installs it
// globally. Returns a MeterProvider that should be shut down on application
// exit.
func InitMeter(ctx context.Context, config Config) (*sdkmetric.MeterProvider, error) {
	mp, err := NewMeterProvider(ctx, config)
	if err != nil {
		return nil, err
	}

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.MetricsInterval.String(),
	))

	return mp, nil
}

// NewMeterProvider builds a meter provider exporting over OTLP HTTP
// without installing it.
func NewMeterProvider(ctx context.Context, config Config) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.MetricsInterval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.MetricsInterval))
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	), nil
}

// Init sets up both providers when config.Enabled is true. The returned
// function shuts them down; it is a no-op when nothing was installed.
func Init(ctx context.Context, config Config) (func(context.Context) error, error) {
	if !config.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	config.ApplyDefaults()

	tp, err := InitTracer(ctx, config)
	if err != nil {
		return nil, err
	}
	mp, err := InitMeter(ctx, config)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name, metric.WithInstrumentationVersion(version.Short()))
}

// MeterFrom returns the pipefy meter of mp, or of the global provider
// when mp is nil.
func MeterFrom(mp metric.MeterProvider) metric.Meter {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	return mp.Meter(InstrumentationName, metric.WithInstrumentationVersion(version.Short()))
}

// Metrics holds the instruments a pipeline records on.
type Metrics struct {
	delivered   metric.Int64Counter
	stageErrors metric.Int64Counter
	reconnects  metric.Int64Counter
	runs        metric.Int64Counter
	runsActive  metric.Int64UpDownCounter
	runDuration metric.Float64Histogram
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	delivered, err := meter.Int64Counter(MetricItemsDelivered,
		metric.WithDescription("Items delivered across a connection"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricItemsDelivered, err)
	}

	stageErrors, err := meter.Int64Counter(MetricStageErrors,
		metric.WithDescription("Errors raised by pipeline stages"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricStageErrors, err)
	}

	reconnects, err := meter.Int64Counter(MetricReconnects,
		metric.WithDescription("Connections re-established after a stage error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricReconnects, err)
	}

	runs, err := meter.Int64Counter(MetricRuns,
		metric.WithDescription("Finished pipeline runs by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricRuns, err)
	}

	runsActive, err := meter.Int64UpDownCounter(MetricRunsActive,
		metric.WithDescription("Pipeline runs in progress"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s gauge: %w", MetricRunsActive, err)
	}

	runDuration, err := meter.Float64Histogram(MetricRunDuration,
		metric.WithDescription("Duration of pipeline runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricRunDuration, err)
	}

	return &Metrics{
		delivered:   delivered,
		stageErrors: stageErrors,
		reconnects:  reconnects,
		runs:        runs,
		runsActive:  runsActive,
		runDuration: runDuration,
	}, nil
}

// RecordDelivered counts one item handed from one stage to the next.
func (m *Metrics) RecordDelivered(ctx context.Context, from, to string) {
	m.delivered.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrFrom, from),
		attribute.String(AttrTo, to),
	))
}

// RecordStageError counts one stage error.
func (m *Metrics) RecordStageError(ctx context.Context, stage, role, policy string, fatal bool) {
	m.stageErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrStage, stage),
		attribute.String(AttrStageRole, role),
		attribute.String(AttrPolicy, policy),
		attribute.Bool(AttrFatal, fatal),
	))
}

// RecordReconnect counts one re-established connection.
func (m *Metrics) RecordReconnect(ctx context.Context, from, to string) {
	m.reconnects.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrFrom, from),
		attribute.String(AttrTo, to),
	))
}

// RecordRunStart increments the active run count.
func (m *Metrics) RecordRunStart(ctx context.Context, policy string) {
	m.runsActive.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrPolicy, policy)))
}

// RecordRunEnd decrements active runs and records the finished run.
func (m *Metrics) RecordRunEnd(ctx context.Context, policy, status string, duration time.Duration) {
	m.runsActive.Add(ctx, -1, metric.WithAttributes(attribute.String(AttrPolicy, policy)))
	m.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrPolicy, policy),
		attribute.String(AttrStatus, status),
	))
	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrPolicy, policy),
	))
}
