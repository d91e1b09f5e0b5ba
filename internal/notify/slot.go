// Package notify provides the ack-gated single-slot send primitive.
//
// A Slot guarantees the controller never has more than one unacknowledged
// message of a given kind in flight. Updates arriving while a send is
// unacknowledged coalesce: the pending value is overwritten, never queued,
// bounding renderer-to-controller volume under high-frequency events
// (mouse movement over links, incremental find tallies) to one in-flight
// message plus one pending value.
package notify

import "sync"

type state int

const (
	idle state = iota
	inFlight
	pending
)

// Slot is a single-pending-value mailbox parameterized over the payload.
type Slot[T any] struct {
	mu    sync.Mutex
	state state
	value T

	send func(T)

	// OnDrop, if set, observes values superseded before they were sent.
	OnDrop func(T)
}

// NewSlot creates a slot that delivers through send. Update never blocks
// on the controller; send must be fire-and-forget.
func NewSlot[T any](send func(T)) *Slot[T] {
	return &Slot[T]{send: send}
}

// Update offers a value. Sent immediately when idle; otherwise it becomes
// the pending value, replacing any previous one.
func (s *Slot[T]) Update(v T) {
	s.mu.Lock()

	switch s.state {
	case idle:
		s.state = inFlight
		s.mu.Unlock()
		s.send(v)
	case inFlight:
		s.state = pending
		s.value = v
		s.mu.Unlock()
	case pending:
		dropped := s.value
		s.value = v
		s.mu.Unlock()
		if s.OnDrop != nil {
			s.OnDrop(dropped)
		}
	}
}

// Ack handles the controller's acknowledgment of the previous send,
// releasing the pending value if there is one.
func (s *Slot[T]) Ack() {
	s.mu.Lock()

	if s.state != pending {
		s.state = idle
		s.mu.Unlock()
		return
	}

	v := s.value
	var zero T
	s.value = zero
	s.state = inFlight
	s.mu.Unlock()
	s.send(v)
}

// Reset discards slot state. Used on page teardown; a late ack for a
// message of a torn-down generation is then a no-op.
func (s *Slot[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.value = zero
	s.state = idle
}

// Busy reports whether a send is unacknowledged.
func (s *Slot[T]) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != idle
}
