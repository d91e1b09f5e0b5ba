// Package static provides an in-memory rendering collaborator backed by
// parsed HTML documents.
//
// It is not a layout engine: each frame is one HTML document whose
// visible text is extracted at construction, and the find primitive is a
// substring scan over that text. It exists to exercise every capability
// interface the engine consumes; package tests and the demo wiring in
// cmd run against it.
package static

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pagehost/renderer/internal/frame"
)

// Delegate receives the load lifecycle callbacks a real rendering engine
// would deliver. The page engine implements it.
type Delegate interface {
	DidStartProvisionalLoad(mainFrame bool, url string)
	DidStartLoading()
	DidCommitLoad(mainFrame bool, isNewNavigation bool)
	DidStopLoading()
}

// Reporter receives incremental find results, matching the engine's
// report hooks.
type Reporter interface {
	ReportFindMatchCount(requestID int32, count int, final bool)
	ReportFindSelection(requestID int32, ordinal int, selection frame.Rect)
}

// FrameSpec describes one frame of a static view.
type FrameSpec struct {
	HTML    string
	Visible bool
}

// View implements frame.View over a fixed list of static frames.
type View struct {
	frames  []*Frame
	focused int

	doc       *Document
	curState  []byte
	prevState []byte

	delegate Delegate
	reporter Reporter

	// scopeTotal accumulates per-frame match counts during a scoping
	// pass; reset when the pass restarts at the main frame.
	scopeTotal int
}

// NewView parses the given frames into a view. Index 0 is the main
// frame; it starts focused.
func NewView(specs ...FrameSpec) (*View, error) {
	v := &View{}
	for i, spec := range specs {
		text, err := extractText(spec.HTML)
		if err != nil {
			return nil, err
		}
		v.frames = append(v.frames, &Frame{
			view:    v,
			index:   i,
			visible: spec.Visible,
			text:    text,
			active:  -1,
		})
	}

	if len(v.frames) > 0 {
		v.doc = &Document{url: "about:blank", mime: "text/html", text: v.frames[0].text}
	}
	return v, nil
}

// extractText pulls the indexable text out of an HTML document, with
// scripts and styles removed and whitespace collapsed.
func extractText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}

// SetDelegate wires the load lifecycle receiver.
func (v *View) SetDelegate(d Delegate) { v.delegate = d }

// SetReporter wires the find result receiver.
func (v *View) SetReporter(r Reporter) { v.reporter = r }

// MainFrame implements frame.Tree.
func (v *View) MainFrame() frame.Frame {
	if len(v.frames) == 0 {
		return nil
	}
	return v.frames[0]
}

// FocusedFrame implements frame.Tree.
func (v *View) FocusedFrame() frame.Frame {
	if len(v.frames) == 0 {
		return nil
	}
	return v.frames[v.focused]
}

// FocusFrame moves real input focus to frame i. Out-of-range is ignored.
func (v *View) FocusFrame(i int) {
	if i >= 0 && i < len(v.frames) {
		v.focused = i
	}
}

// NextFrame implements frame.Tree.
func (v *View) NextFrame(f frame.Frame, wrap bool) frame.Frame {
	i := v.indexOf(f)
	if i < 0 {
		return nil
	}
	if i+1 < len(v.frames) {
		return v.frames[i+1]
	}
	if wrap {
		return v.frames[0]
	}
	return nil
}

// PreviousFrame implements frame.Tree.
func (v *View) PreviousFrame(f frame.Frame, wrap bool) frame.Frame {
	i := v.indexOf(f)
	if i < 0 {
		return nil
	}
	if i > 0 {
		return v.frames[i-1]
	}
	if wrap {
		return v.frames[len(v.frames)-1]
	}
	return nil
}

// SetFocusedFrame implements frame.Tree. The search cursor is visual
// only; real input focus is untouched.
func (v *View) SetFocusedFrame(f frame.Frame) {}

func (v *View) indexOf(f frame.Frame) int {
	for i, candidate := range v.frames {
		if frame.Frame(candidate) == f {
			return i
		}
	}
	return -1
}

// PreviousState implements frame.History.
func (v *View) PreviousState() ([]byte, bool) {
	return v.prevState, v.prevState != nil
}

// CurrentState implements frame.History.
func (v *View) CurrentState() ([]byte, bool) {
	return v.curState, v.curState != nil
}

// HasCurrentState implements frame.History.
func (v *View) HasCurrentState() bool { return v.curState != nil }

// Load implements frame.Loader by simulating the full load lifecycle
// synchronously: provisional, loading, commit, stopped.
func (v *View) Load(req frame.LoadRequest) {
	if v.doc == nil {
		return
	}

	if v.delegate != nil {
		v.delegate.DidStartProvisionalLoad(true, req.URL)
		v.delegate.DidStartLoading()
	}

	v.prevState = v.curState
	if req.Reload {
		// State carries over on reload.
	} else if req.HistoryState != nil {
		v.curState = req.HistoryState
	} else {
		v.curState = []byte(req.URL)
	}
	v.doc.url = req.URL

	if v.delegate != nil {
		// A load carrying restore state is a session-history
		// navigation; so is a reload.
		isNew := !req.Reload && req.HistoryState == nil
		v.delegate.DidCommitLoad(true, isNew)
		v.delegate.DidStopLoading()
	}
}

// StopLoading implements frame.Loader. Loads are synchronous here, so
// there is never anything in flight.
func (v *View) StopLoading() {}

// Document implements frame.View.
func (v *View) Document() frame.Document {
	if v.doc == nil {
		return nil
	}
	return v.doc
}

// Document is the static main-frame document.
type Document struct {
	url  string
	mime string
	text string
}

func (d *Document) URL() string             { return d.url }
func (d *Document) Text() string            { return d.text }
func (d *Document) InViewSourceMode() bool  { return false }
func (d *Document) HasUnreachableURL() bool { return false }
func (d *Document) UnreachableURL() string  { return "" }
func (d *Document) MIMEType() string        { return d.mime }
func (d *Document) RedirectChain() []string { return nil }
func (d *Document) SecurityInfo() string    { return "" }
func (d *Document) Referrer() string        { return "" }
func (d *Document) IsPost() bool            { return false }
func (d *Document) IsFormSubmit() bool      { return false }
