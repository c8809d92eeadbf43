package stream

import (
	"errors"
	"io"
)

// EventKind classifies inbound session events.
type EventKind int

const (
	EventData EventKind = iota
	EventError
	EventEnd
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventData:
		return "data"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event is one item read from a session.
type Event struct {
	Kind    EventKind
	Message map[string]any
	Err     error
}

// classify maps a Recv error to its event kind.
func classify(err error) EventKind {
	switch {
	case err == nil:
		return EventData
	case errors.Is(err, io.EOF):
		return EventEnd
	case errors.Is(err, ErrSessionClosed):
		return EventClose
	default:
		return EventError
	}
}
