package pipeline

import (
	"context"
	stderrors "errors"
	"strconv"
	"testing"
	"time"
)

func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var got []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("pipeline did not finish, events so far: %v", got)
			return got
		}
	}
}

func count(events []Event, kind EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func forwardThenFail(msg string) Transform[string] {
	return TransformFunc[string](func(_ context.Context, in string, emit Emit[string]) error {
		if err := emit(in); err != nil {
			return err
		}
		return stderrors.New(msg)
	})
}

func alwaysFail[T any](msg string) Transform[T] {
	return TransformFunc[T](func(context.Context, T, Emit[T]) error {
		return stderrors.New(msg)
	})
}

func testItems(n int) []string {
	items := make([]string, n)
	for i := range items {
		items[i] = "TEST" + strconv.Itoa(i+1)
	}
	return items
}

func run[T any](t *testing.T, stages []Stage[T], opts ...Option) (*Pipeline[T], []Event) {
	t.Helper()
	p, err := Compose(stages, opts...)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	events, err := p.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return p, drain(t, events)
}
