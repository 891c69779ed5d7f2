package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kbukum/pipefy/errors"
	"github.com/kbukum/pipefy/logger"
	"github.com/kbukum/pipefy/observability"
	"github.com/kbukum/pipefy/resilience"
)

// Policy names, as logged and recorded on telemetry.
const (
	PolicyFailFast  = "fail-fast"
	PolicyReconnect = "reconnect"
)

// telemetryShutdownTimeout bounds the final export of a run's own
// telemetry providers.
const telemetryShutdownTimeout = 5 * time.Second

// Pipeline is a composed chain of stages. It runs once.
type Pipeline[T any] struct {
	id          string
	propagate   bool
	eventBuffer int
	log         *logger.Logger
	tracer      trace.Tracer
	metrics     *observability.Metrics

	// telemetry, when set, replaces the default providers for the run.
	telemetry *observability.Config
	ownTracer bool
	ownMeter  bool
	providers *observability.Providers

	mu     sync.Mutex
	stages []Stage[T]

	conns    []*Connection[T]
	breakers []*resilience.CircuitBreaker

	started     atomic.Bool
	done        chan struct{}
	err         error
	stageErrors atomic.Int64

	// Run state. reports is closed once every stage goroutine returned;
	// runErr is written before that. refused is owned by the supervisor.
	reports chan report[T]
	runErr  error
	refused error

	// fatals are the stage errors that ended the run, in the order raised.
	failing atomic.Bool
	fatalMu sync.Mutex
	fatals  []fatalRecord
}

// fatalRecord is a fatal stage error with the call that raised it.
type fatalRecord struct {
	err  *errors.StageError
	call callSpan
}

// causedBy reports whether f failed on a value that u emitted during the
// call that raised u's error.
func (f fatalRecord) causedBy(u fatalRecord) bool {
	return u.err.Index == f.err.Index-1 && f.call.in >= u.call.out && f.call.in < u.call.end
}

// report is a non-fatal stage error sent to the supervisor.
type report[T any] struct {
	err     *errors.StageError
	conn    *Connection[T]
	breaker *resilience.CircuitBreaker
}

// Stats aggregates the counters of a pipeline.
type Stats struct {
	// Delivered is the number of values received across all connections.
	Delivered int64
	// StageErrors counts every error raised by a stage.
	StageErrors int64
	// Reconnects counts re-established connections.
	Reconnects int64
}

// Compose validates stages and links them with one Connection per
// consecutive pair. The first stage must be a source, middle stages
// transforms, and the last stage (when there is more than one) a transform
// or a sink.
func Compose[T any](stages []Stage[T], opts ...Option) (*Pipeline[T], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.err != nil {
		return nil, o.err
	}

	named := make([]Stage[T], len(stages))
	for i, st := range stages {
		if st.name == "" {
			st.name = fmt.Sprintf("stage-%d", i)
		}
		named[i] = st
	}
	if err := validate(named); err != nil {
		return nil, err
	}

	id := o.id
	if id == "" {
		id = uuid.NewString()
	}

	p := &Pipeline[T]{
		id:          id,
		propagate:   o.propagate,
		eventBuffer: o.eventBuffer,
		stages:      named,
		done:        make(chan struct{}),
	}
	p.log = pipelineLogger(o.log).WithFields(logger.Fields(
		logger.FieldPipelineID, id,
		logger.FieldPolicy, p.Policy(),
	))

	for i := 0; i+1 < len(named); i++ {
		c := newConnection[T](named[i].name, named[i+1].name, i+1, o.bufferSize)
		p.conns = append(p.conns, c)
		if o.breaker != nil {
			cfg := *o.breaker
			cfg.Name = breakerName(cfg.Name, c)
			// An open reconnect breaker ends the run, so it never half-opens.
			cfg.Timeout = 0
			p.breakers = append(p.breakers, resilience.NewCircuitBreaker(cfg))
		}
	}

	p.tracer = observability.TracerFrom(o.tracerProvider)
	p.metrics = p.newMetrics(observability.MeterFrom(o.meterProvider))
	if o.telemetry != nil {
		p.telemetry = o.telemetry
		p.ownTracer = o.tracerProvider == nil
		p.ownMeter = o.meterProvider == nil
	}

	return p, nil
}

func (p *Pipeline[T]) newMetrics(m metric.Meter) *observability.Metrics {
	metrics, err := observability.NewMetrics(m)
	if err != nil {
		p.log.Warn("pipeline metrics disabled", logger.ErrorFields("new_metrics", err))
	}
	return metrics
}

// startTelemetry builds the run's own providers when telemetry is
// configured and no provider overrides it.
func (p *Pipeline[T]) startTelemetry(ctx context.Context) error {
	if p.telemetry == nil || (!p.ownTracer && !p.ownMeter) {
		return nil
	}
	providers, err := observability.NewProviders(ctx, *p.telemetry)
	if err != nil {
		return errors.InvalidConfig("telemetry setup failed").WithCause(err)
	}
	p.providers = providers
	if p.ownTracer {
		p.tracer = observability.TracerFrom(providers.Tracer)
	}
	if p.ownMeter {
		p.metrics = p.newMetrics(observability.MeterFrom(providers.Meter))
	}
	return nil
}

func (p *Pipeline[T]) stopTelemetry(ctx context.Context) {
	if p.providers == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, telemetryShutdownTimeout)
	defer cancel()
	if err := p.providers.Shutdown(ctx); err != nil {
		p.log.Warn("telemetry shutdown failed", logger.ErrorFields("shutdown", err))
	}
}

func validate[T any](stages []Stage[T]) error {
	n := len(stages)
	if n == 0 {
		return errors.InvalidPipeline("a pipeline needs at least one stage")
	}
	for i, st := range stages {
		switch {
		case st.empty():
			return errors.InvalidStage(i, st.name, "stage has no implementation")
		case i == 0 && st.role != RoleSource:
			return errors.InvalidStage(i, st.name, "the first stage must be a source")
		case i > 0 && st.role == RoleSource:
			return errors.InvalidStage(i, st.name, "a source can only be the first stage")
		case i < n-1 && st.role == RoleSink:
			return errors.InvalidStage(i, st.name, "a sink can only be the last stage")
		}
	}
	return nil
}

func pipelineLogger(l *logger.Logger) *logger.Logger {
	if l != nil {
		return l
	}
	if l, ok := logger.Lookup(logger.ComponentPipeline); ok {
		return l
	}
	return logger.NewNop()
}

func breakerName[T any](prefix string, c *Connection[T]) string {
	name := c.from + "->" + c.to
	if prefix == "" {
		return name
	}
	return prefix + ":" + name
}

// ID returns the pipeline ID.
func (p *Pipeline[T]) ID() string { return p.id }

// Policy returns PolicyReconnect or PolicyFailFast.
func (p *Pipeline[T]) Policy() string {
	if p.propagate {
		return PolicyReconnect
	}
	return PolicyFailFast
}

// Connections returns the connections in stage order.
func (p *Pipeline[T]) Connections() []*Connection[T] {
	return slices.Clone(p.conns)
}

// Stats returns the current counters. It is safe to call while running.
func (p *Pipeline[T]) Stats() Stats {
	s := Stats{StageErrors: p.stageErrors.Load()}
	for _, c := range p.conns {
		s.Delivered += c.Delivered()
		s.Reconnects += c.Reconnects()
	}
	return s
}

// Wait blocks until the run ends and returns its terminal error, nil on
// completion.
func (p *Pipeline[T]) Wait() error {
	<-p.done
	return p.err
}

// Start runs the pipeline. The returned channel yields progress events and
// then exactly one terminal event, after which it is closed. The run stops
// early with EventFailed when ctx is canceled.
func (p *Pipeline[T]) Start(ctx context.Context) (<-chan Event, error) {
	if !p.started.CompareAndSwap(false, true) {
		return nil, errors.AlreadyStarted(p.id)
	}

	p.mu.Lock()
	stages := p.stages
	p.mu.Unlock()

	if err := p.startTelemetry(ctx); err != nil {
		p.finish(err)
		return nil, err
	}

	events := make(chan Event, p.eventBuffer)
	p.reports = make(chan report[T])

	base, cancel := context.WithCancelCause(ctx)
	runCtx, run := observability.StartRun(base, p.tracer, p.metrics, p.id, p.Policy(), len(stages))
	g, gctx := errgroup.WithContext(runCtx)

	for _, c := range p.conns {
		c.Establish()
	}

	p.log.Info("pipeline started", logger.Fields(logger.FieldStages, len(stages)))

	for i, st := range stages {
		r := &runner[T]{p: p, obs: run, index: i, stage: st}
		if i > 0 {
			r.in = p.conns[i-1]
			if p.breakers != nil {
				r.breaker = p.breakers[i-1]
			}
		}
		if i < len(p.conns) {
			r.out = p.conns[i]
		}
		g.Go(func() error { return r.exec(gctx) })
	}

	go func() {
		p.runErr = g.Wait()
		close(p.reports)
	}()
	go p.supervise(gctx, base, context.WithoutCancel(runCtx), run, cancel, events)

	return events, nil
}

// supervise delivers every event and performs every reconnect.
func (p *Pipeline[T]) supervise(ctx, base, recCtx context.Context, run *observability.Run, cancel context.CancelCauseFunc, events chan<- Event) {
	defer close(events)
	defer cancel(nil)

	for r := range p.reports {
		if ctx.Err() != nil || p.refused != nil {
			continue
		}
		p.progress(ctx, recCtx, run, r, cancel, events)
	}

	err := p.outcome(base)

	kind, status := EventDone, observability.StatusDone
	if err != nil {
		kind, status = EventFailed, observability.StatusFailed
		if errors.HasCode(err, errors.ErrCodeCanceled) {
			status = observability.StatusCanceled
		}
		if serr, ok := errors.AsStageError(err); ok {
			run.StageError(recCtx, serr.Stage, serr.Index, serr.Role, serr, true)
		}
	}

	stats := p.Stats()
	fields := logger.Fields(
		logger.FieldStatus, status,
		logger.FieldDelivered, stats.Delivered,
		logger.FieldReconnects, stats.Reconnects,
		logger.FieldDuration, run.Duration().Milliseconds(),
	)
	if err != nil {
		p.log.WithError(err).Error("pipeline failed", fields)
	} else {
		p.log.Info("pipeline done", fields)
	}

	run.End(recCtx, status, err)
	p.stopTelemetry(recCtx)
	p.finish(err)
	events <- newEvent(kind, p.id, err)
}

func (p *Pipeline[T]) progress(ctx, recCtx context.Context, run *observability.Run, r report[T], cancel context.CancelCauseFunc, events chan<- Event) {
	serr := r.err
	from, to := r.conn.From(), r.conn.To()
	fields := logger.Fields(
		logger.FieldStage, serr.Stage,
		logger.FieldStageIndex, serr.Index,
		logger.FieldStageRole, serr.Role,
	)

	if r.breaker != nil {
		r.breaker.RecordFailure()
		if !r.breaker.Allow() {
			p.refused = errors.ReconnectRefused(from, to, serr)
			run.ReconnectRefused(from, to)
			p.log.WithError(serr).Error("reconnect refused", fields)
			cancel(p.refused)
			return
		}
	}

	run.StageError(recCtx, serr.Stage, serr.Index, serr.Role, serr, false)
	p.log.WithError(serr).Warn("stage error", fields)

	select {
	case events <- newEvent(EventProgress, p.id, serr):
	case <-ctx.Done():
		return
	}

	r.conn.Reconnect()
	run.Reconnect(recCtx, from, to)
	p.log.Debug("connection re-established", logger.Fields(
		logger.FieldFrom, from,
		logger.FieldTo, to,
		logger.FieldReconnects, r.conn.Reconnects(),
	))
}

func (p *Pipeline[T]) recordFatal(rec fatalRecord) {
	p.fatalMu.Lock()
	defer p.fatalMu.Unlock()
	p.fatals = append(p.fatals, rec)
	p.failing.Store(true)
}

// fatalErr returns the first stage error raised. A downstream stage can
// fail on a value before its producer returns the error raised while
// emitting that value; the producer's error wins, transitively upstream.
func (p *Pipeline[T]) fatalErr() *errors.StageError {
	p.fatalMu.Lock()
	defer p.fatalMu.Unlock()
	if len(p.fatals) == 0 {
		return nil
	}
	cur := p.fatals[0]
	for {
		i := slices.IndexFunc(p.fatals, cur.causedBy)
		if i < 0 {
			return cur.err
		}
		cur = p.fatals[i]
	}
}

// outcome maps the result of the stage group to the terminal error.
func (p *Pipeline[T]) outcome(base context.Context) error {
	switch {
	case p.refused != nil:
		return p.refused
	case p.runErr == nil:
		return nil
	case len(p.fatals) > 0:
		return p.fatalErr()
	case errors.IsStageError(p.runErr):
		return p.runErr
	case stderrors.Is(p.runErr, context.Canceled), stderrors.Is(p.runErr, context.DeadlineExceeded):
		cause := context.Cause(base)
		if cause == nil {
			cause = p.runErr
		}
		return errors.Canceled(cause)
	default:
		return errors.Internal(p.runErr)
	}
}

// finish records the result and drops the stage references.
func (p *Pipeline[T]) finish(err error) {
	p.mu.Lock()
	p.stages = nil
	p.mu.Unlock()

	p.err = err
	close(p.done)
}
