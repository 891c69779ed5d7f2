// Package pipeline composes a Source, zero or more Transforms and an
// optional Sink into one running Pipeline.
//
// Each stage runs in its own goroutine. Consecutive stages are linked by a
// Connection, a bounded buffer that pauses the producer when full. The
// pipeline reports on a channel of Events; the channel is closed after the
// terminal event.
//
// # Policies
//
// Fail-fast (the default): the first stage error cancels the run and is
// reported once as EventFailed. If several stages fail before the run has
// stopped, the most upstream error is reported.
//
// Reconnect-and-continue (WithPropagateErrors): an error at a Transform or
// Sink tears down that stage's input Connection, is reported as
// EventProgress, and the Connection is re-established so data keeps
// flowing. A Source error is fatal. EventDone follows the last progress
// event once the final stage has consumed and flushed everything.
//
// # Usage
//
//	sink := pipeline.NewCollector[string]()
//	p, err := pipeline.Compose([]pipeline.Stage[string]{
//	    pipeline.FromSource("lines", pipeline.FromSlice([]string{"a", "b"})),
//	    pipeline.Through("upper", pipeline.Map(func(_ context.Context, s string) (string, error) {
//	        return strings.ToUpper(s), nil
//	    })),
//	    pipeline.Into("collect", sink),
//	}, pipeline.WithPropagateErrors(true))
//	if err != nil {
//	    return err
//	}
//	events, err := p.Start(ctx)
//	for ev := range events {
//	    log.Println(ev)
//	}
//
// The event channel must be drained. A caller that stops reading stalls
// the pipeline once the channel buffer is full.
//
// Callback form:
//
//	pipeline.Pipefy(ctx, stages, func(err error) {
//	    // called once per progress event and once at the end
//	}, pipeline.WithPropagateErrors(true))
package pipeline
