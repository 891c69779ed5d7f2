package pipeline

import "context"

// Role is the position a stage can take in a pipeline.
type Role int

const (
	roleUnknown Role = iota
	// RoleSource produces values. Only the first stage is a source.
	RoleSource
	// RoleTransform consumes and produces values.
	RoleTransform
	// RoleSink consumes values. Only the last stage may be a sink.
	RoleSink
)

func (r Role) String() string {
	switch r {
	case RoleSource:
		return "source"
	case RoleTransform:
		return "transform"
	case RoleSink:
		return "sink"
	default:
		return "unknown"
	}
}

// Source produces the values of a pipeline.
type Source[T any] interface {
	// Next returns the next value. Returns (zero, false, nil) when exhausted.
	Next(ctx context.Context) (T, bool, error)
}

// Emit pushes a value downstream. It blocks while the downstream
// Connection is full or torn down, and returns the context error once the
// run is canceled.
type Emit[T any] func(T) error

// Transform turns each input into zero or more outputs. A returned error
// is raised after whatever was emitted before it.
type Transform[T any] interface {
	Transform(ctx context.Context, in T, emit Emit[T]) error
}

// TransformFlusher is implemented by transforms that emit buffered output
// once their input ends.
type TransformFlusher[T any] interface {
	Flush(ctx context.Context, emit Emit[T]) error
}

// Sink consumes the values of a pipeline.
type Sink[T any] interface {
	Write(ctx context.Context, v T) error
}

// Flusher is implemented by sinks that need to finish work once their
// input ends. The pipeline completes after Flush returns nil.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Stage is a named source, transform or sink.
type Stage[T any] struct {
	name      string
	role      Role
	source    Source[T]
	transform Transform[T]
	sink      Sink[T]
}

// FromSource wraps a Source as the first stage of a pipeline.
func FromSource[T any](name string, s Source[T]) Stage[T] {
	return Stage[T]{name: name, role: RoleSource, source: s}
}

// Through wraps a Transform as a middle or final stage.
func Through[T any](name string, t Transform[T]) Stage[T] {
	return Stage[T]{name: name, role: RoleTransform, transform: t}
}

// Into wraps a Sink as the final stage.
func Into[T any](name string, s Sink[T]) Stage[T] {
	return Stage[T]{name: name, role: RoleSink, sink: s}
}

// Name returns the stage name.
func (s Stage[T]) Name() string { return s.name }

// Role returns the stage role.
func (s Stage[T]) Role() Role { return s.role }

func (s Stage[T]) empty() bool {
	switch s.role {
	case RoleSource:
		return s.source == nil
	case RoleTransform:
		return s.transform == nil
	case RoleSink:
		return s.sink == nil
	default:
		return true
	}
}
