package pipeline

import (
	"context"
	"time"
)

// Map transforms each value using fn.
func Map[T any](fn func(context.Context, T) (T, error)) Transform[T] {
	return TransformFunc[T](func(ctx context.Context, in T, emit Emit[T]) error {
		out, err := fn(ctx, in)
		if err != nil {
			return err
		}
		return emit(out)
	})
}

// FlatMap transforms each value into a Source and emits everything it
// yields. An error from the inner Source is raised after the values
// already emitted.
func FlatMap[T any](fn func(context.Context, T) (Source[T], error)) Transform[T] {
	return TransformFunc[T](func(ctx context.Context, in T, emit Emit[T]) error {
		inner, err := fn(ctx, in)
		if err != nil {
			return err
		}
		for {
			v, ok, err := inner.Next(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if err := emit(v); err != nil {
				return err
			}
		}
	})
}

// Filter keeps only values that satisfy the predicate.
func Filter[T any](fn func(T) bool) Transform[T] {
	return TransformFunc[T](func(_ context.Context, in T, emit Emit[T]) error {
		if !fn(in) {
			return nil
		}
		return emit(in)
	})
}

// Tap calls fn as a side-effect for each value, then passes the value through unchanged.
// A value fn fails on is not passed on.
func Tap[T any](fn func(context.Context, T) error) Transform[T] {
	return TransformFunc[T](func(ctx context.Context, in T, emit Emit[T]) error {
		if err := fn(ctx, in); err != nil {
			return err
		}
		return emit(in)
	})
}

// Identity passes every value through.
func Identity[T any]() Transform[T] {
	return TransformFunc[T](func(_ context.Context, in T, emit Emit[T]) error {
		return emit(in)
	})
}

// Throttle drops values that arrive faster than the given interval.
// Only the first value in each interval window is emitted.
// The returned Transform keeps state and belongs to one pipeline.
func Throttle[T any](interval time.Duration) Transform[T] {
	return &throttle[T]{interval: interval}
}

type throttle[T any] struct {
	interval time.Duration
	lastEmit time.Time
}

func (t *throttle[T]) Transform(_ context.Context, in T, emit Emit[T]) error {
	now := time.Now()
	if !t.lastEmit.IsZero() && now.Sub(t.lastEmit) < t.interval {
		return nil
	}
	t.lastEmit = now
	return emit(in)
}
