// Package frame declares the capability interfaces the engine consumes
// from the rendering collaborator.
//
// The collaborator (frame tree, text search primitives, history state
// serialization) is out of scope for this process's core; it is reached
// only through these narrow interfaces, selected at construction time.
// Platform- or engine-specific behavior lives behind an implementation,
// never behind build tags.
//
// Frame values must be comparable by identity (pointer implementations):
// the find engine detects wrap-around with == against the origin frame.
package frame

// Rect is a viewport rectangle, used for find-match selection bounds.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsEmpty reports whether the rect has no area.
func (r Rect) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// FindOptions control a text search.
type FindOptions struct {
	// Forward searches toward the end of the document.
	Forward bool `json:"forward"`

	// MatchCase makes the search case-sensitive.
	MatchCase bool `json:"match_case"`

	// FindNext advances within the existing match set instead of
	// starting a new session.
	FindNext bool `json:"find_next"`
}

// FindRequest is one controller-issued search.
type FindRequest struct {
	ID      int32
	Text    string
	Options FindOptions
}

// Frame is a single navigable frame in the collaborator's tree.
type Frame interface {
	// Visible reports whether the frame has visible area. Invisible
	// frames are excluded from search and scoping.
	Visible() bool

	// Find attempts an in-frame match. wrap controls whether the search
	// may wrap within this frame; with multiple frames present the
	// engine handles wrapping itself and passes false.
	Find(req FindRequest, wrap bool) (found bool, selection Rect)

	// ScopeMatches starts the asynchronous per-frame match enumeration
	// for the request. Results arrive through the engine's report hooks.
	ScopeMatches(req FindRequest, resetTickmarks bool)

	// CancelScoping cancels any in-flight scoping for this frame.
	CancelScoping()

	// RecountMatches forces the frame to re-report the authoritative
	// accumulated match count for the request.
	RecountMatches(requestID int32)

	// StopFinding ends the find session in this frame, optionally
	// clearing the selection it produced.
	StopFinding(clearSelection bool)

	// ClearSelection drops any selection so it cannot affect a search
	// continuing in another frame.
	ClearSelection()
}

// Tree is the collaborator's frame-tree traversal surface.
type Tree interface {
	// MainFrame returns the top-level frame, or nil for an empty tree.
	MainFrame() Frame

	// FocusedFrame returns the frame holding input focus, or nil.
	FocusedFrame() Frame

	// NextFrame returns the frame after f in frame-tree order. With
	// wrap, traversal restarts at the main frame instead of returning
	// nil at the end.
	NextFrame(f Frame, wrap bool) Frame

	// PreviousFrame is NextFrame's backward counterpart.
	PreviousFrame(f Frame, wrap bool) Frame

	// SetFocusedFrame moves the search focus cursor. This is a visual
	// cursor, not real input focus; nil clears it so stale focus never
	// persists across frame changes.
	SetFocusedFrame(f Frame)
}

// History serializes session-history state for the current page.
type History interface {
	// PreviousState serializes the history entry being navigated away
	// from. ok is false when there is no previous entry.
	PreviousState() (state []byte, ok bool)

	// CurrentState serializes the active history entry.
	CurrentState() (state []byte, ok bool)

	// HasCurrentState reports whether an active entry exists. A reload
	// without one downgrades to an ordinary load.
	HasCurrentState() bool
}

// Document describes the main frame's committed document.
type Document interface {
	URL() string

	// Text extracts the document's indexable text content.
	Text() string

	// InViewSourceMode and HasUnreachableURL mark documents excluded
	// from content capture.
	InViewSourceMode() bool
	HasUnreachableURL() bool
	UnreachableURL() string

	MIMEType() string
	RedirectChain() []string
	SecurityInfo() string
	Referrer() string

	// IsPost reports whether the committing request used POST.
	IsPost() bool

	// IsFormSubmit reports whether the load came from a form submission.
	IsFormSubmit() bool
}

// LoadRequest is the engine's instruction to the collaborator to start a
// navigation on the main frame.
type LoadRequest struct {
	URL          string
	Reload       bool
	HistoryState []byte
	Referrer     string
}

// Loader starts navigations on the collaborator.
type Loader interface {
	Load(req LoadRequest)

	// StopLoading aborts the in-flight provisional load, if any.
	StopLoading()
}

// View aggregates the collaborator surfaces the page engine holds.
type View interface {
	Tree
	History
	Loader

	// Document returns the main frame's committed document, or nil
	// before first commit.
	Document() Document
}
