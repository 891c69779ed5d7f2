package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the capacity of a Connection when none is configured.
const DefaultBufferSize = 16

// Connection is the directed edge between two consecutive stages. Exactly
// one Connection exists per pair for the lifetime of a Pipeline; it is
// torn down and re-established, never replaced.
//
// While torn down, Send and Receive block. Values already buffered stay
// buffered and are delivered once the Connection is re-established.
type Connection[T any] struct {
	from  string
	to    string
	index int

	buf       chan T
	closeOnce sync.Once

	mu          sync.Mutex
	gate        chan struct{} // closed while established
	established bool

	sent       atomic.Int64
	delivered  atomic.Int64
	reconnects atomic.Int64
}

func newConnection[T any](from, to string, index, size int) *Connection[T] {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Connection[T]{
		from:  from,
		to:    to,
		index: index,
		buf:   make(chan T, size),
		gate:  make(chan struct{}),
	}
}

// From returns the name of the producing stage.
func (c *Connection[T]) From() string { return c.from }

// To returns the name of the consuming stage.
func (c *Connection[T]) To() string { return c.to }

// Index returns the position of the consuming stage.
func (c *Connection[T]) Index() int { return c.index }

// Cap returns the buffer capacity.
func (c *Connection[T]) Cap() int { return cap(c.buf) }

// Len returns the number of buffered values.
func (c *Connection[T]) Len() int { return len(c.buf) }

// Establish lets data flow. It is a no-op on an established Connection.
func (c *Connection[T]) Establish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.established {
		close(c.gate)
		c.established = true
	}
}

// Teardown stops data flow. It is a no-op on a torn down Connection.
func (c *Connection[T]) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.established {
		c.gate = make(chan struct{})
		c.established = false
	}
}

// Reconnect tears the Connection down and establishes it again.
func (c *Connection[T]) Reconnect() {
	c.Teardown()
	c.Establish()
	c.reconnects.Add(1)
}

// Established reports whether data can flow.
func (c *Connection[T]) Established() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.established
}

// Delivered returns the number of values received by the consuming stage.
func (c *Connection[T]) Delivered() int64 { return c.delivered.Load() }

// Sent returns the number of values the producing stage sent. Values are
// numbered from zero in send order; the n-th value received is the n-th sent.
func (c *Connection[T]) Sent() int64 { return c.sent.Load() }

// Reconnects returns how many times the Connection was re-established.
func (c *Connection[T]) Reconnects() int64 { return c.reconnects.Load() }

// Send buffers v, blocking while the Connection is torn down or full.
func (c *Connection[T]) Send(ctx context.Context, v T) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	select {
	case c.buf <- v:
		c.sent.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next value. It returns ok=false once the producer
// closed its side and the buffer is drained.
func (c *Connection[T]) Receive(ctx context.Context) (v T, ok bool, err error) {
	if err := c.wait(ctx); err != nil {
		return v, false, err
	}
	select {
	case v, ok = <-c.buf:
		if ok {
			c.delivered.Add(1)
		}
		return v, ok, nil
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
}

// CloseSend signals the end of input. Only the producer calls it.
func (c *Connection[T]) CloseSend() {
	c.closeOnce.Do(func() { close(c.buf) })
}

func (c *Connection[T]) wait(ctx context.Context) error {
	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()

	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
