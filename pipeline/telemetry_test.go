package pipeline

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	colmetrics "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/protobuf/proto"

	"github.com/kbukum/pipefy/config"
	"github.com/kbukum/pipefy/observability"
)

func TestTelemetry_Reconnect(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	p, events := run(t, errorChain(NewCollector[string]()),
		WithPropagateErrors(true),
		WithMeterProvider(mp),
		WithTracerProvider(tp),
	)
	require.Equal(t, EventDone, events[len(events)-1].Kind)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, int64(9), sumInt64(t, rm, observability.MetricItemsDelivered))
	assert.Equal(t, int64(6), sumInt64(t, rm, observability.MetricStageErrors))
	assert.Equal(t, int64(6), sumInt64(t, rm, observability.MetricReconnects))
	assert.Equal(t, int64(1), sumInt64(t, rm, observability.MetricRuns))
	assert.Zero(t, sumInt64(t, rm, observability.MetricRunsActive))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, observability.SpanPipelineRun, span.Name())
	assert.Equal(t, codes.Ok, span.Status().Code)

	var stageErrors, reconnects int
	for _, ev := range span.Events() {
		switch ev.Name {
		case observability.EventStageError:
			stageErrors++
		case observability.EventReconnect:
			reconnects++
		}
	}
	assert.Equal(t, 6, stageErrors)
	assert.Equal(t, 6, reconnects)

	var idFound bool
	for _, kv := range span.Attributes() {
		if string(kv.Key) == observability.AttrPipelineID {
			idFound = kv.Value.AsString() == p.ID()
		}
	}
	assert.True(t, idFound)
}

func TestTelemetry_FailFast(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, events := run(t, errorChain(NewCollector[string]()), WithTracerProvider(tp))
	require.Len(t, events, 1)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Status().Description, "Error transform1")

	var fatal int
	for _, ev := range spans[0].Events() {
		if ev.Name == observability.EventStageError {
			fatal++
		}
	}
	assert.Equal(t, 1, fatal)
}

// otlpCollector records span and metric names posted over OTLP HTTP.
type otlpCollector struct {
	mu      sync.Mutex
	spans   []string
	metrics []string
}

func (c *otlpCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch r.URL.Path {
	case "/v1/traces":
		var req coltrace.ExportTraceServiceRequest
		if err := proto.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, rs := range req.GetResourceSpans() {
			for _, ss := range rs.GetScopeSpans() {
				for _, sp := range ss.GetSpans() {
					c.spans = append(c.spans, sp.GetName())
				}
			}
		}
	case "/v1/metrics":
		var req colmetrics.ExportMetricsServiceRequest
		if err := proto.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, rm := range req.GetResourceMetrics() {
			for _, sm := range rm.GetScopeMetrics() {
				for _, m := range sm.GetMetrics() {
					c.metrics = append(c.metrics, m.GetName())
				}
			}
		}
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(http.StatusOK)
}

func (c *otlpCollector) names() (spans, metrics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.spans...), append([]string(nil), c.metrics...)
}

func telemetryConfig(endpoint string) config.PipelineConfig {
	return config.PipelineConfig{
		Name:            "telemetry",
		PropagateErrors: true,
		Telemetry: observability.Config{
			Enabled:  true,
			Endpoint: strings.TrimPrefix(endpoint, "http://"),
			Insecure: true,
		},
	}
}

func TestTelemetry_FromConfigExports(t *testing.T) {
	collector := &otlpCollector{}
	srv := httptest.NewServer(collector)
	defer srv.Close()

	p, events := run(t, errorChain(NewCollector[string]()), WithConfig(telemetryConfig(srv.URL)))
	require.Equal(t, EventDone, events[len(events)-1].Kind)
	require.NoError(t, p.Wait())

	// The run's providers are shut down, and so flushed, before Wait returns.
	spans, metrics := collector.names()
	assert.Contains(t, spans, observability.SpanPipelineRun)
	assert.Contains(t, metrics, observability.MetricRuns)
	assert.Contains(t, metrics, observability.MetricItemsDelivered)
	assert.Contains(t, metrics, observability.MetricReconnects)
}

func TestTelemetry_ExplicitProviderWins(t *testing.T) {
	collector := &otlpCollector{}
	srv := httptest.NewServer(collector)
	defer srv.Close()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, events := run(t, errorChain(NewCollector[string]()),
		WithConfig(telemetryConfig(srv.URL)),
		WithTracerProvider(tp),
	)
	require.Equal(t, EventDone, events[len(events)-1].Kind)

	require.Len(t, recorder.Ended(), 1)
	spans, metrics := collector.names()
	assert.Empty(t, spans)
	assert.Contains(t, metrics, observability.MetricRuns)
}

func TestTelemetry_DisabledConfigBuildsNothing(t *testing.T) {
	cfg := telemetryConfig("127.0.0.1:1")
	cfg.Telemetry.Enabled = false

	p, err := Compose(errorChain(NewCollector[string]()), WithConfig(cfg))
	require.NoError(t, err)
	assert.Nil(t, p.telemetry)
}

func sumInt64(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is %T", name, m.Data)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
