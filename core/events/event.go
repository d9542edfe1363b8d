package events

import "sync"

// Event represents a structured state change emitted by the pool service.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder is an append-only, in-memory event log. Entries are only ever
// appended after a state transition has fully committed.
type Recorder struct {
	mu      sync.Mutex
	entries []Event
}

// NewRecorder constructs an empty event log.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	r.entries = append(r.entries, evt)
	r.mu.Unlock()
}

// Events returns a snapshot of the recorded log in emission order.
func (r *Recorder) Events() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.entries...)
}
