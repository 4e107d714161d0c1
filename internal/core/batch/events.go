package batch

// EventKind tags progress events emitted during a batch run.
type EventKind int

const (
	// EventProgress reports per-file activity. Index/Total reflect dispatch
	// order even when files complete out of order.
	EventProgress EventKind = iota
	// EventError is the terminal event for a fatal failure (model load,
	// output directory, mid-batch reload).
	EventError
	// EventComplete is the terminal event after every file was attempted.
	EventComplete
	// EventCancelled is the terminal event when the caller cancelled and
	// in-flight files drained.
	EventCancelled
)

// Event is one progress notification. Listeners receive events from worker
// goroutines and must return quickly; the core never waits on a listener.
type Event struct {
	Kind    EventKind
	Index   int
	Total   int
	Label   string
	Message string
}

// Listener consumes progress events. A nil listener is valid.
type Listener func(Event)

func (l Listener) emit(e Event) {
	if l != nil {
		l(e)
	}
}

// FileOutcome is the terminal per-file record of a batch run.
// Error is empty exactly when Success is true.
type FileOutcome struct {
	Path    string
	Success bool
	Error   string
}
