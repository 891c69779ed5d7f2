package pipeline

import (
	"fmt"
	"time"

	"github.com/kbukum/pipefy/errors"
)

// DefaultEventBuffer is the capacity of the event channel when none is
// configured.
const DefaultEventBuffer = 64

// EventKind tags an Event.
type EventKind int

const (
	// EventProgress carries a non-fatal stage error. The pipeline keeps running.
	EventProgress EventKind = iota + 1
	// EventFailed carries the error that ended the run.
	EventFailed
	// EventDone reports that the final stage consumed and flushed all data.
	EventDone
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventFailed:
		return "failed"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event is delivered on the channel returned by Pipeline.Start.
type Event struct {
	Kind EventKind
	// Err is nil for EventDone.
	Err error
	// Stage and Index identify the stage that raised Err; Index is -1 when
	// Err did not come from a stage.
	Stage string
	Index int
	// Pipeline is the pipeline ID.
	Pipeline string
	At       time.Time
}

// Terminal reports whether e is the last event of a run.
func (e Event) Terminal() bool {
	return e.Kind == EventFailed || e.Kind == EventDone
}

func (e Event) String() string {
	if e.Err == nil {
		return fmt.Sprintf("%s [%s]", e.Kind, e.Pipeline)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Kind, e.Pipeline, e.Err)
}

func newEvent(kind EventKind, pipelineID string, err error) Event {
	ev := Event{
		Kind:     kind,
		Err:      err,
		Index:    -1,
		Pipeline: pipelineID,
		At:       time.Now(),
	}
	if serr, ok := errors.AsStageError(err); ok {
		ev.Stage = serr.Stage
		ev.Index = serr.Index
	}
	return ev
}
