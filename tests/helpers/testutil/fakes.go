// Package testutil provides fakes for the collaborator interfaces used
// across engine tests.
package testutil

import (
	"time"

	"github.com/pagehost/renderer/internal/frame"
)

// FrameOp records one call against a FakeFrame, for order assertions.
type FrameOp struct {
	Frame string
	Op    string // "find", "find_wrap", "clear", "scope", "cancel_scope", "recount", "stop"
}

// FakeFrame is a scripted frame: it matches when HasMatch is set, or when
// MatchOnWrap is set and the search is allowed to wrap within the frame.
type FakeFrame struct {
	Name        string
	IsVisible   bool
	HasMatch    bool
	MatchOnWrap bool
	Rect        frame.Rect

	tree *FakeTree
}

// Visible implements frame.Frame.
func (f *FakeFrame) Visible() bool { return f.IsVisible }

// Find implements frame.Frame.
func (f *FakeFrame) Find(req frame.FindRequest, wrap bool) (bool, frame.Rect) {
	op := "find"
	if wrap {
		op = "find_wrap"
	}
	f.tree.record(f, op)
	return f.HasMatch || (wrap && f.MatchOnWrap), f.Rect
}

// ScopeMatches implements frame.Frame.
func (f *FakeFrame) ScopeMatches(req frame.FindRequest, resetTickmarks bool) {
	f.tree.record(f, "scope")
}

// CancelScoping implements frame.Frame.
func (f *FakeFrame) CancelScoping() { f.tree.record(f, "cancel_scope") }

// RecountMatches implements frame.Frame.
func (f *FakeFrame) RecountMatches(requestID int32) { f.tree.record(f, "recount") }

// StopFinding implements frame.Frame.
func (f *FakeFrame) StopFinding(clearSelection bool) { f.tree.record(f, "stop") }

// ClearSelection implements frame.Frame.
func (f *FakeFrame) ClearSelection() { f.tree.record(f, "clear") }

// FakeTree is an ordered list of fake frames; index 0 is the main frame.
type FakeTree struct {
	Frames  []*FakeFrame
	Focused frame.Frame

	// FocusLog records every SetFocusedFrame call ("" for nil).
	FocusLog []string

	Ops []FrameOp
}

// NewFakeTree builds a tree from the given frames, focusing the first.
func NewFakeTree(frames ...*FakeFrame) *FakeTree {
	t := &FakeTree{Frames: frames}
	for _, f := range frames {
		f.tree = t
	}
	if len(frames) > 0 {
		t.Focused = frames[0]
	}
	return t
}

func (t *FakeTree) record(f *FakeFrame, op string) {
	t.Ops = append(t.Ops, FrameOp{Frame: f.Name, Op: op})
}

// OpsOf returns the recorded operation names filtered to one kind.
func (t *FakeTree) OpsOf(op string) []string {
	var out []string
	for _, o := range t.Ops {
		if o.Op == op {
			out = append(out, o.Frame)
		}
	}
	return out
}

func (t *FakeTree) indexOf(f frame.Frame) int {
	for i, candidate := range t.Frames {
		if frame.Frame(candidate) == f {
			return i
		}
	}
	return -1
}

// MainFrame implements frame.Tree.
func (t *FakeTree) MainFrame() frame.Frame {
	if len(t.Frames) == 0 {
		return nil
	}
	return t.Frames[0]
}

// FocusedFrame implements frame.Tree.
func (t *FakeTree) FocusedFrame() frame.Frame { return t.Focused }

// NextFrame implements frame.Tree.
func (t *FakeTree) NextFrame(f frame.Frame, wrap bool) frame.Frame {
	i := t.indexOf(f)
	if i < 0 {
		return nil
	}
	if i+1 < len(t.Frames) {
		return t.Frames[i+1]
	}
	if wrap {
		return t.Frames[0]
	}
	return nil
}

// PreviousFrame implements frame.Tree.
func (t *FakeTree) PreviousFrame(f frame.Frame, wrap bool) frame.Frame {
	i := t.indexOf(f)
	if i < 0 {
		return nil
	}
	if i > 0 {
		return t.Frames[i-1]
	}
	if wrap {
		return t.Frames[len(t.Frames)-1]
	}
	return nil
}

// SetFocusedFrame implements frame.Tree. The real input focus is left
// alone; only the log records the cursor movement.
func (t *FakeTree) SetFocusedFrame(f frame.Frame) {
	if f == nil {
		t.FocusLog = append(t.FocusLog, "")
		return
	}
	t.FocusLog = append(t.FocusLog, f.(*FakeFrame).Name)
}

// FakeDocument is a scripted frame.Document.
type FakeDocument struct {
	DocURL        string
	DocText       string
	ViewSource    bool
	Unreachable   bool
	UnreachURL    string
	MIME          string
	Redirects     []string
	Security      string
	ReferrerURL   string
	Post          bool
	FormSubmitted bool
}

func (d *FakeDocument) URL() string             { return d.DocURL }
func (d *FakeDocument) Text() string            { return d.DocText }
func (d *FakeDocument) InViewSourceMode() bool  { return d.ViewSource }
func (d *FakeDocument) HasUnreachableURL() bool { return d.Unreachable }
func (d *FakeDocument) UnreachableURL() string  { return d.UnreachURL }
func (d *FakeDocument) MIMEType() string        { return d.MIME }
func (d *FakeDocument) RedirectChain() []string { return d.Redirects }
func (d *FakeDocument) SecurityInfo() string    { return d.Security }
func (d *FakeDocument) Referrer() string        { return d.ReferrerURL }
func (d *FakeDocument) IsPost() bool            { return d.Post }
func (d *FakeDocument) IsFormSubmit() bool      { return d.FormSubmitted }

// FakeView combines the fake tree with scripted history/document state
// into a frame.View.
type FakeView struct {
	*FakeTree

	Doc       *FakeDocument
	PrevState []byte
	CurState  []byte

	Loads []frame.LoadRequest
	Stops int
}

// NewFakeView wraps a tree with a default document.
func NewFakeView(tree *FakeTree) *FakeView {
	return &FakeView{
		FakeTree: tree,
		Doc:      &FakeDocument{DocURL: "http://example.test/", MIME: "text/html"},
	}
}

// PreviousState implements frame.History.
func (v *FakeView) PreviousState() ([]byte, bool) {
	return v.PrevState, v.PrevState != nil
}

// CurrentState implements frame.History.
func (v *FakeView) CurrentState() ([]byte, bool) {
	return v.CurState, v.CurState != nil
}

// HasCurrentState implements frame.History.
func (v *FakeView) HasCurrentState() bool { return v.CurState != nil }

// Load implements frame.Loader.
func (v *FakeView) Load(req frame.LoadRequest) { v.Loads = append(v.Loads, req) }

// StopLoading implements frame.Loader.
func (v *FakeView) StopLoading() { v.Stops++ }

// Document implements frame.View.
func (v *FakeView) Document() frame.Document {
	if v.Doc == nil {
		return nil
	}
	return v.Doc
}

// ManualScheduler is a runloop.Scheduler that runs immediate tasks inline
// and holds delayed tasks until the test fires them.
type ManualScheduler struct {
	Delayed []DelayedTask
}

// DelayedTask is a captured PostDelayed call.
type DelayedTask struct {
	Delay time.Duration
	Task  func()
}

// Post implements runloop.Scheduler.
func (s *ManualScheduler) Post(task func()) { task() }

// PostDelayed implements runloop.Scheduler.
func (s *ManualScheduler) PostDelayed(delay time.Duration, task func()) {
	s.Delayed = append(s.Delayed, DelayedTask{Delay: delay, Task: task})
}

// Fire runs the i-th captured delayed task.
func (s *ManualScheduler) Fire(i int) {
	s.Delayed[i].Task()
}

// FireAll runs every captured delayed task in scheduling order.
func (s *ManualScheduler) FireAll() {
	for _, d := range s.Delayed {
		d.Task()
	}
	s.Delayed = nil
}
