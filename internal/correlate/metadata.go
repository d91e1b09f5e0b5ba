package correlate

import (
	"strings"
	"sync"
	"time"

	"github.com/pagehost/renderer/internal/shared/id"
)

// Transition classifies why a navigation occurred. Kinds compose as a
// bitset: a subframe load finished by a client redirect is
// TransitionManualSubframe | TransitionClientRedirect.
type Transition uint32

const (
	TransitionLink Transition = 1 << iota
	TransitionTyped
	TransitionFormSubmit
	TransitionAutoSubframe
	TransitionManualSubframe
	TransitionStartPage
	TransitionClientRedirect
)

// coreMask strips qualifier bits, leaving the base navigation kind.
const coreMask = TransitionLink | TransitionTyped | TransitionFormSubmit |
	TransitionAutoSubframe | TransitionManualSubframe | TransitionStartPage

// Core returns the transition without qualifier bits.
func (t Transition) Core() Transition { return t & coreMask }

// IsMainFrame reports whether the base kind describes a top-level
// navigation. Subframe kinds must not be reported for main-frame commits.
func (t Transition) IsMainFrame() bool {
	switch t.Core() {
	case TransitionAutoSubframe, TransitionManualSubframe:
		return false
	}
	return true
}

// Has reports whether all bits of q are set.
func (t Transition) Has(q Transition) bool { return t&q == q }

func (t Transition) String() string {
	names := []struct {
		bit  Transition
		name string
	}{
		{TransitionLink, "link"},
		{TransitionTyped, "typed"},
		{TransitionFormSubmit, "form_submit"},
		{TransitionAutoSubframe, "auto_subframe"},
		{TransitionManualSubframe, "manual_subframe"},
		{TransitionStartPage, "start_page"},
		{TransitionClientRedirect, "client_redirect"},
	}

	var parts []string
	for _, n := range names {
		if t&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}

// Metadata travels with an in-flight navigation request. It is owned by
// the side-table for exactly as long as the request is in flight; anything
// needing its fields after commit must copy them out.
type Metadata struct {
	// PendingDocumentID is the id to resume if this is a session-history
	// navigation, or None for a new navigation.
	PendingDocumentID DocumentID

	// IssuedAt is when the controller dispatched the navigation, used to
	// backdate the load's reported start time.
	IssuedAt time.Time

	// Committed is set on the first commit callback so a second callback
	// for the same request (same-document navigations) is a history no-op.
	Committed bool

	transition Transition
}

// NewMetadata creates metadata for a navigation request.
func NewMetadata(pending DocumentID, transition Transition, issuedAt time.Time) *Metadata {
	return &Metadata{
		PendingDocumentID: pending,
		IssuedAt:          issuedAt,
		transition:        transition,
	}
}

// IsNewNavigation reports whether this request is a new navigation rather
// than a session-history one.
func (m *Metadata) IsNewNavigation() bool { return m.PendingDocumentID == None }

// Transition returns the transition without consuming it.
func (m *Metadata) Transition() Transition { return m.transition }

// TakeTransition returns the transition and resets it to link, so a reused
// request (an in-page fragment click, say) does not report a stale kind.
func (m *Metadata) TakeTransition() Transition {
	t := m.transition
	m.transition = TransitionLink
	return t
}

// Table is the request-id -> metadata side-table. Attaching a new record
// for a frame's next navigation and detaching the old one is the caller's
// responsibility; a record must never be read after it is detached.
type Table struct {
	mu      sync.Mutex
	records map[id.RequestID]*Metadata
}

// NewTable creates an empty metadata table.
func NewTable() *Table {
	return &Table{records: make(map[id.RequestID]*Metadata)}
}

// Attach registers metadata for an in-flight request.
func (t *Table) Attach(req id.RequestID, m *Metadata) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[req] = m
}

// Lookup returns the metadata for a request, if still attached.
func (t *Table) Lookup(req id.RequestID) (*Metadata, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.records[req]
	return m, ok
}

// Detach discards a request's metadata. Called when the request is
// superseded by a new navigation on the same frame or on frame teardown.
func (t *Table) Detach(req id.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, req)
}

// Len returns the number of in-flight records.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}
