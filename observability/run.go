package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Run statuses recorded on the run span and the runs counter.
const (
	StatusDone     = "done"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

// Run holds the observability state of one pipeline run.
// A nil Metrics skips metric recording.
type Run struct {
	PipelineID string
	Policy     string
	Stages     int
	StartTime  time.Time
	Metrics    *Metrics

	span trace.Span
}

type runKey struct{}

// WithRun stores a Run in the context.
func WithRun(ctx context.Context, r *Run) context.Context {
	return context.WithValue(ctx, runKey{}, r)
}

// RunFromContext retrieves the Run from context, or nil.
func RunFromContext(ctx context.Context) *Run {
	if r, ok := ctx.Value(runKey{}).(*Run); ok {
		return r
	}
	return nil
}

// StartRun starts the run span and records the run start metric. The
// returned context carries both the span and the Run.
func StartRun(ctx context.Context, tracer trace.Tracer, metrics *Metrics, pipelineID, policy string, stages int) (context.Context, *Run) {
	r := &Run{
		PipelineID: pipelineID,
		Policy:     policy,
		Stages:     stages,
		StartTime:  time.Now(),
		Metrics:    metrics,
	}
	ctx, r.span = tracer.Start(ctx, SpanPipelineRun,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrPipelineID, pipelineID),
			attribute.String(AttrPolicy, policy),
			attribute.Int(AttrStages, stages),
		),
	)
	if metrics != nil {
		metrics.RecordRunStart(ctx, policy)
	}
	return WithRun(ctx, r), r
}

// Span returns the run span.
func (r *Run) Span() trace.Span { return r.span }

// Delivered records one item handed across a connection.
func (r *Run) Delivered(ctx context.Context, from, to string) {
	if r.Metrics != nil {
		r.Metrics.RecordDelivered(ctx, from, to)
	}
}

// StageError adds a span event and counts the error.
func (r *Run) StageError(ctx context.Context, stage string, index int, role string, err error, fatal bool) {
	r.span.AddEvent(EventStageError, trace.WithAttributes(
		attribute.String(AttrStage, stage),
		attribute.Int(AttrStageIndex, index),
		attribute.String(AttrStageRole, role),
		attribute.Bool(AttrFatal, fatal),
		attribute.String("error.message", err.Error()),
	))
	if r.Metrics != nil {
		r.Metrics.RecordStageError(ctx, stage, role, r.Policy, fatal)
	}
}

// Reconnect adds a span event and counts the reconnect.
func (r *Run) Reconnect(ctx context.Context, from, to string) {
	r.span.AddEvent(EventReconnect, trace.WithAttributes(
		attribute.String(AttrFrom, from),
		attribute.String(AttrTo, to),
	))
	if r.Metrics != nil {
		r.Metrics.RecordReconnect(ctx, from, to)
	}
}

// ReconnectRefused adds a span event for a connection the breaker closed off.
func (r *Run) ReconnectRefused(from, to string) {
	r.span.AddEvent(EventReconnectRefuse, trace.WithAttributes(
		attribute.String(AttrFrom, from),
		attribute.String(AttrTo, to),
	))
}

// Duration returns the time elapsed since the run started.
func (r *Run) Duration() time.Duration {
	return time.Since(r.StartTime)
}

// End ends the run span and records the run end metrics.
func (r *Run) End(ctx context.Context, status string, err error) {
	duration := r.Duration()

	if err != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
	} else {
		r.span.SetStatus(codes.Ok, "")
	}
	r.span.SetAttributes(
		attribute.String(AttrStatus, status),
		attribute.Int64(AttrDurationMs, duration.Milliseconds()),
	)
	r.span.End()

	if r.Metrics != nil {
		r.Metrics.RecordRunEnd(ctx, r.Policy, status, duration)
	}
}
