package pipeline

import (
	"context"
	stderrors "errors"

	"github.com/kbukum/pipefy/errors"
	"github.com/kbukum/pipefy/observability"
	"github.com/kbukum/pipefy/resilience"
)

// runner drives one stage in its own goroutine. in is nil for the source,
// out is nil for the last stage.
type runner[T any] struct {
	p       *Pipeline[T]
	obs     *observability.Run
	index   int
	stage   Stage[T]
	in      *Connection[T]
	out     *Connection[T]
	breaker *resilience.CircuitBreaker

	// call tracks the input being handled and the output it produced, so a
	// fatal error can be traced to the upstream call that emitted its input.
	call callSpan
}

// callSpan is the input sequence number of one stage call and the range of
// sequence numbers it sent on the output Connection.
type callSpan struct {
	in       int64
	out, end int64
}

func (r *runner[T]) exec(ctx context.Context) error {
	switch r.stage.role {
	case RoleSource:
		return r.source(ctx)
	case RoleTransform:
		return r.transform(ctx)
	default:
		return r.sink(ctx)
	}
}

func (r *runner[T]) source(ctx context.Context) error {
	r.call = callSpan{in: -1}
	for {
		v, ok, err := r.stage.source.Next(ctx)
		if err != nil {
			return r.fatal(ctx, err)
		}
		if !ok {
			break
		}
		if r.out == nil {
			continue
		}
		if err := r.out.Send(ctx, v); err != nil {
			return err
		}
	}
	if r.out != nil {
		r.out.CloseSend()
	}
	return nil
}

func (r *runner[T]) transform(ctx context.Context) error {
	emit := r.emitter(ctx)

	for {
		v, ok, err := r.receive(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		r.begin()
		err = r.stage.transform.Transform(ctx, v, emit)
		r.end()
		if err != nil {
			if err := r.fail(ctx, err); err != nil {
				return err
			}
			continue
		}
		r.succeed()
	}

	if f, ok := r.stage.transform.(TransformFlusher[T]); ok {
		r.call.in = -1
		r.begin()
		err := f.Flush(ctx, emit)
		r.end()
		if err != nil {
			return r.fatal(ctx, err)
		}
	}
	if r.out != nil {
		r.out.CloseSend()
	}
	return nil
}

func (r *runner[T]) sink(ctx context.Context) error {
	for {
		v, ok, err := r.receive(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.stage.sink.Write(ctx, v); err != nil {
			if err := r.fail(ctx, err); err != nil {
				return err
			}
			continue
		}
		r.succeed()
	}

	if f, ok := r.stage.sink.(Flusher); ok {
		r.call = callSpan{in: -1}
		if err := f.Flush(ctx); err != nil {
			return r.fatal(ctx, err)
		}
	}
	return nil
}

// emitter returns the Emit passed to a transform. The last stage discards
// its output.
func (r *runner[T]) emitter(ctx context.Context) Emit[T] {
	if r.out == nil {
		return func(T) error { return ctx.Err() }
	}
	return func(v T) error { return r.out.Send(ctx, v) }
}

func (r *runner[T]) receive(ctx context.Context) (T, bool, error) {
	v, ok, err := r.in.Receive(ctx)
	if ok {
		r.call.in = r.in.Delivered() - 1
		r.obs.Delivered(ctx, r.in.from, r.in.to)
	}
	return v, ok, err
}

func (r *runner[T]) begin() {
	r.call.out = r.sent()
	r.call.end = r.call.out
}

func (r *runner[T]) end() { r.call.end = r.sent() }

func (r *runner[T]) sent() int64 {
	if r.out == nil {
		return 0
	}
	return r.out.Sent()
}

func (r *runner[T]) succeed() {
	if r.breaker != nil {
		r.breaker.RecordSuccess()
	}
}

// fatal ends the run with a stage error. Once the run is canceled, only
// stage errors racing an earlier stage error are kept; anything else is
// reported as the cancellation.
func (r *runner[T]) fatal(ctx context.Context, cause error) error {
	if err := ctx.Err(); err != nil && (!r.p.failing.Load() || isContextError(cause)) {
		return err
	}
	r.p.stageErrors.Add(1)
	serr := r.stageError(cause)
	r.p.recordFatal(fatalRecord{err: serr, call: r.call})
	return serr
}

func isContextError(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

// fail handles an error raised while processing one input. Under
// reconnect-and-continue the input connection is torn down and the error
// is handed to the supervisor, which reconnects it.
func (r *runner[T]) fail(ctx context.Context, cause error) error {
	if !r.p.propagate {
		return r.fatal(ctx, cause)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.p.stageErrors.Add(1)

	r.in.Teardown()
	select {
	case r.p.reports <- report[T]{err: r.stageError(cause), conn: r.in, breaker: r.breaker}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *runner[T]) stageError(cause error) *errors.StageError {
	return errors.NewStageError(r.stage.name, r.index, r.stage.role.String(), cause)
}
