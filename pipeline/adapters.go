package pipeline

import (
	"context"
	"iter"
	"slices"
	"sync"
)

// SourceFunc adapts a function to a Source.
type SourceFunc[T any] func(ctx context.Context) (T, bool, error)

func (f SourceFunc[T]) Next(ctx context.Context) (T, bool, error) { return f(ctx) }

// TransformFunc adapts a function to a Transform.
type TransformFunc[T any] func(ctx context.Context, in T, emit Emit[T]) error

func (f TransformFunc[T]) Transform(ctx context.Context, in T, emit Emit[T]) error {
	return f(ctx, in, emit)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc[T any] func(ctx context.Context, v T) error

func (f SinkFunc[T]) Write(ctx context.Context, v T) error { return f(ctx, v) }

// --- Sources ---

// FromSlice returns a Source yielding items in order.
func FromSlice[T any](items []T) Source[T] {
	return &sliceSource[T]{items: items}
}

type sliceSource[T any] struct {
	items []T
	index int
}

func (s *sliceSource[T]) Next(_ context.Context) (T, bool, error) {
	if s.index >= len(s.items) {
		var zero T
		return zero, false, nil
	}
	v := s.items[s.index]
	s.index++
	return v, true, nil
}

// FromChannel returns a Source reading ch until it is closed.
func FromChannel[T any](ch <-chan T) Source[T] {
	return SourceFunc[T](func(ctx context.Context) (T, bool, error) {
		select {
		case v, ok := <-ch:
			return v, ok, nil
		case <-ctx.Done():
			var zero T
			return zero, false, ctx.Err()
		}
	})
}

// SeqSource pulls values from an iter.Seq. Close releases the iterator
// when the sequence was not consumed to the end.
type SeqSource[T any] struct {
	seq  iter.Seq[T]
	next func() (T, bool)
	stop func()
}

// FromSeq returns a Source pulling from seq.
func FromSeq[T any](seq iter.Seq[T]) *SeqSource[T] {
	return &SeqSource[T]{seq: seq}
}

func (s *SeqSource[T]) Next(ctx context.Context) (T, bool, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, false, err
	}
	if s.next == nil {
		s.next, s.stop = iter.Pull(s.seq)
	}
	v, ok := s.next()
	if !ok {
		s.stop()
	}
	return v, ok, nil
}

// Close stops the underlying iterator.
func (s *SeqSource[T]) Close() error {
	if s.stop != nil {
		s.stop()
	}
	return nil
}

// --- Sinks ---

// Collector is a Sink that keeps every value it receives.
type Collector[T any] struct {
	mu    sync.Mutex
	items []T
}

// NewCollector creates an empty Collector.
func NewCollector[T any]() *Collector[T] {
	return &Collector[T]{}
}

func (c *Collector[T]) Write(_ context.Context, v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, v)
	return nil
}

// Items returns a copy of the collected values in arrival order.
func (c *Collector[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.items)
}

// Len returns the number of collected values.
func (c *Collector[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Discard returns a Sink that drops every value.
func Discard[T any]() Sink[T] {
	return SinkFunc[T](func(context.Context, T) error { return nil })
}
