// Package observability provides OpenTelemetry tracing and metrics for
// pipeline runs.
//
// Tracing and metrics export over OTLP HTTP:
//
//	shutdown, err := observability.Init(ctx, observability.DefaultConfig("ingest"))
//	defer shutdown(ctx)
//
// Pipelines record through a Run, which owns one "pipefy.run" span and the
// run-scoped metric attributes:
//
//	metrics, _ := observability.NewMetrics(observability.Meter(observability.InstrumentationName))
//	ctx, run := observability.StartRun(ctx, observability.Tracer(observability.InstrumentationName), metrics, id, "fail-fast", 3)
//	run.StageError(ctx, "transform1", 1, "transform", err, false)
//	run.End(ctx, observability.StatusDone, nil)
package observability
