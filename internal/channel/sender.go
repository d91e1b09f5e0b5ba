package channel

import "sync"

// Sender delivers events toward the controller. Implementations must be
// fire-and-forget: the engine never awaits a round-trip before proceeding.
type Sender interface {
	Send(event Event)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(Event)

// Send implements Sender.
func (f SenderFunc) Send(event Event) { f(event) }

// Recorder is a Sender that captures events for assertions in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Send implements Sender.
func (r *Recorder) Send(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything sent so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns sent events matching the given type, in order.
func (r *Recorder) OfType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
