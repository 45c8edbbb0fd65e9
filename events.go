package ocirepo

// EventKind is the stage of a transfer.
type EventKind int

const (
	EventStarted EventKind = iota
	EventProgress
	EventCompleted
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventProgress:
		return "progress"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event reports transfer state to the invoking tool.
type Event struct {
	Kind EventKind
	Op   string
	Path string
	Ref  string

	// Bytes is the size of the chunk for EventProgress.
	Bytes int64

	// Err is set for EventFailed.
	Err error
}

// EventSink receives transfer events. Calls are made synchronously from the
// goroutine running the operation.
type EventSink interface {
	TransferEvent(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) TransferEvent(e Event) { f(e) }

// progressWriter turns writes into EventProgress events.
type progressWriter struct {
	sink  EventSink
	event Event
}

func (p *progressWriter) Write(b []byte) (int, error) {
	e := p.event
	e.Kind = EventProgress
	e.Bytes = int64(len(b))
	p.sink.TransferEvent(e)
	return len(b), nil
}
