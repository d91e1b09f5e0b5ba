// Package correlate issues and tracks per-document identifiers and
// per-request navigation metadata.
//
// Every navigable document the process commits is assigned a DocumentID
// from a Ledger. The controller uses these ids to correlate commit, history
// and capture events without sharing memory with the renderer. Request
// metadata lives in a side-table keyed by request id rather than being
// attached to request objects, so nothing needs a downcast to recover it.
package correlate

import (
	"fmt"
	"sync"

	"github.com/pagehost/renderer/internal/logging"
	"go.uber.org/zap"
)

// DocumentID identifies a committed document within this process's lifetime.
// Ids are strictly increasing and never reused.
type DocumentID int32

// None is the sentinel for "no document" (nothing committed yet) and, in
// request metadata, for "new navigation".
const None DocumentID = -1

// Ledger is the process-wide DocumentID allocator. It is an injectable
// value: constructors receive it explicitly, there is no ambient global.
type Ledger struct {
	mu        sync.Mutex
	next      DocumentID
	allocated bool
	pinned    bool

	strict bool
	log    *logging.Logger
}

// NewLedger creates a ledger whose first allocation returns 1.
//
// When strict is set, protocol invariant violations panic; otherwise they
// are logged and ignored, since they indicate a controller/renderer version
// mismatch that cannot be recovered locally.
func NewLedger(strict bool, log *logging.Logger) *Ledger {
	if log == nil {
		log = logging.NewNop()
	}
	return &Ledger{next: 1, strict: strict, log: log.Named("ledger")}
}

// Allocate returns the current counter value and advances it by one.
func (l *Ledger) Allocate() DocumentID {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.next
	l.next++
	l.allocated = true
	return id
}

// Peek returns the value the next allocation would produce, without
// advancing the counter.
func (l *Ledger) Peek() DocumentID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next
}

// Reserve advances the counter by span+1, pre-allocating a contiguous
// identifier block for a cooperating process. Callable only by the
// controller.
func (l *Ledger) Reserve(span uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.next += DocumentID(span) + 1
}

// SetInitial sets the counter's starting value. Allowed exactly once,
// only before any allocation, and only to a value at or above the current
// counter.
func (l *Ledger) SetInitial(id DocumentID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.allocated:
		return l.violation("SetInitial after Allocate", id)
	case l.pinned:
		return l.violation("SetInitial called twice", id)
	case id < l.next:
		return l.violation("SetInitial below current counter", id)
	}

	l.next = id
	l.pinned = true
	return nil
}

// violation handles a protocol invariant break: fatal in strict mode,
// logged and ignored otherwise. Caller holds the lock.
func (l *Ledger) violation(msg string, id DocumentID) error {
	err := fmt.Errorf("ledger invariant violated: %s (id=%d, next=%d)", msg, id, l.next)
	if l.strict {
		panic(err)
	}
	l.log.Error("ignoring ledger invariant violation",
		zap.String("reason", msg),
		zap.Int32("id", int32(id)),
		zap.Int32("next", int32(l.next)))
	return err
}
