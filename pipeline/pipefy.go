package pipeline

import "context"

// Pipefy composes and starts stages, reporting through onDone instead of
// an event channel. Under fail-fast onDone is called once, with the error
// or nil. Under reconnect-and-continue it is called with each stage error
// as it occurs and finally once with nil, or with the fatal error.
//
// onDone runs on a single goroutine owned by the pipeline; a slow onDone
// slows the pipeline down.
func Pipefy[T any](ctx context.Context, stages []Stage[T], onDone func(error), opts ...Option) (*Pipeline[T], error) {
	p, err := Compose(stages, opts...)
	if err != nil {
		return nil, err
	}
	events, err := p.Start(ctx)
	if err != nil {
		return nil, err
	}

	go func() {
		for ev := range events {
			if onDone == nil {
				continue
			}
			switch ev.Kind {
			case EventDone:
				onDone(nil)
			default:
				onDone(ev.Err)
			}
		}
	}()
	return p, nil
}
