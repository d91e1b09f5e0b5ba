// Package find runs the cross-frame text-search protocol.
//
// A search starts at the focused frame, walks visible frames in tree
// order (wrapping across frames handled here, not inside frames), and
// emits exactly one final tally per request through an ack-gated slot.
// An incremental scoping pass computes the authoritative count per frame
// in the background; a new search cancels any scoping it supersedes.
package find

import (
	"github.com/pagehost/renderer/internal/channel"
	"github.com/pagehost/renderer/internal/frame"
	"github.com/pagehost/renderer/internal/logging"
	"github.com/pagehost/renderer/internal/notify"
	"go.uber.org/zap"
)

// Session tracks one find request's state. A new non-find-next command
// replaces the session; find-next reuses the existing match set.
type Session struct {
	RequestID int32
	Text      string
	Options   frame.FindOptions

	// Origin is the frame the search started from.
	Origin frame.Frame

	// Wrapped records that the cross-frame traversal returned to Origin.
	Wrapped bool
}

// Engine drives the multi-frame find protocol for one page.
type Engine struct {
	tree  frame.Tree
	reply *notify.Slot[channel.FindReplyPayload]

	session *Session
	log     *logging.Logger
}

// NewEngine creates a find engine emitting replies through send. Replies
// are ack-gated: Ack must be called for each delivered reply.
func NewEngine(tree frame.Tree, send func(channel.FindReplyPayload), log *logging.Logger) *Engine {
	if log == nil {
		log = logging.NewNop()
	}
	return &Engine{
		tree:  tree,
		reply: notify.NewSlot(send),
		log:   log.Named("find"),
	}
}

// Session returns the active find session, or nil.
func (e *Engine) ActiveSession() *Session {
	return e.session
}

// Ack handles the controller's acknowledgment of the last find reply.
func (e *Engine) Ack() {
	e.reply.Ack()
}

// Find runs one search command.
func (e *Engine) Find(req frame.FindRequest) {
	main := e.tree.MainFrame()
	if main == nil {
		// Pathological empty frame tree: terminate with an empty final
		// reply and no scoping pass.
		e.reply.Update(channel.FindReplyPayload{
			RequestID:     req.ID,
			ActiveOrdinal: 0,
			Final:         true,
		})
		return
	}

	focused := e.tree.FocusedFrame()
	if focused == nil {
		focused = main
	}
	searchFrame := focused

	// With multiple frames the per-frame search must not wrap; this
	// engine walks the frame chain itself.
	multiFrame := e.tree.NextFrame(main, true) != main
	wrapWithinFrame := !multiFrame

	var selection frame.Rect
	found := false
	wrapped := false

	for {
		found, selection = searchFrame.Find(req, wrapWithinFrame)

		if !found {
			// Don't leave text selected as the search moves on.
			searchFrame.ClearSelection()

			// Advance to the next visible frame, in search direction.
			// Traversal wraps so searchFrame never becomes nil.
			for {
				if req.Options.Forward {
					searchFrame = e.tree.NextFrame(searchFrame, true)
				} else {
					searchFrame = e.tree.PreviousFrame(searchFrame, true)
				}
				if searchFrame.Visible() || searchFrame == focused {
					break
				}
			}
			searchFrame.ClearSelection()

			// Back at the origin with nothing found: one more attempt
			// with wrapping forced on, so a lone match in the origin
			// frame is never missed by the cross-frame walk.
			if multiFrame && searchFrame == focused {
				wrapped = true
				found, selection = searchFrame.Find(req, true)
			}
		}

		// Search cursor, not real input focus.
		e.tree.SetFocusedFrame(searchFrame)

		if found || searchFrame == focused {
			break
		}
	}

	// Never leave a frame visually focused once the walk ends.
	e.tree.SetFocusedFrame(nil)

	if req.Options.FindNext {
		if e.session != nil {
			e.session.Wrapped = e.session.Wrapped || wrapped
		}
		// The corpus-wide count is tracked incrementally; only the
		// frame chain's owner re-reports the authoritative total.
		main.RecountMatches(req.ID)
		return
	}

	e.session = &Session{
		RequestID: req.ID,
		Text:      req.Text,
		Options:   req.Options,
		Origin:    focused,
		Wrapped:   wrapped,
	}

	// Interim tally: (-1, 1) when anything matched ("more may follow"),
	// (0, 0) final when nothing did.
	ordinal, count := 0, 0
	if found {
		ordinal, count = -1, 1
	}
	e.reply.Update(channel.FindReplyPayload{
		RequestID:     req.ID,
		MatchCount:    count,
		SelectionRect: selection,
		ActiveOrdinal: ordinal,
		Final:         !found,
	})

	e.log.Debug("find walk complete",
		zap.Int32("request_id", req.ID),
		zap.Bool("found", found),
		zap.Bool("multi_frame", multiFrame))

	e.startScoping(main, req, found)
}

// startScoping runs one full scoping pass from the main frame back to the
// main frame. Prior in-flight scoping is canceled per frame before new
// work starts; frames only scope once a match has been confirmed
// globally.
func (e *Engine) startScoping(main frame.Frame, req frame.FindRequest, matchConfirmed bool) {
	scope := main
	for {
		scope.CancelScoping()

		if matchConfirmed {
			scope.ScopeMatches(req, true)
		}

		scope = e.tree.NextFrame(scope, true)
		if scope == main {
			break
		}
	}
}

// StopFind ends the active session in every frame.
func (e *Engine) StopFind(clearSelection bool) {
	if clearSelection {
		if focused := e.tree.FocusedFrame(); focused != nil {
			focused.ClearSelection()
		}
	}

	for f := e.tree.MainFrame(); f != nil; f = e.tree.NextFrame(f, false) {
		f.StopFinding(clearSelection)
	}

	e.session = nil
	e.reply.Reset()
}

// CancelScoping cancels in-flight scoping on every frame. Called when a
// navigation supersedes the page's content: stale scoping results must
// never be reported after that.
func (e *Engine) CancelScoping() {
	for f := e.tree.MainFrame(); f != nil; f = e.tree.NextFrame(f, false) {
		f.CancelScoping()
	}
}

// ReportMatchCount delivers a scoping tally from the collaborator. The
// ordinal is unchanged; coalescing drops superseded intermediate counts.
func (e *Engine) ReportMatchCount(requestID int32, count int, final bool) {
	e.reply.Update(channel.FindReplyPayload{
		RequestID:     requestID,
		MatchCount:    count,
		ActiveOrdinal: -1,
		Final:         final,
	})
}

// ReportSelection delivers an active-match change from the collaborator.
// The count is marked "do not update".
func (e *Engine) ReportSelection(requestID int32, ordinal int, selection frame.Rect) {
	e.reply.Update(channel.FindReplyPayload{
		RequestID:     requestID,
		MatchCount:    -1,
		SelectionRect: selection,
		ActiveOrdinal: ordinal,
		Final:         false,
	})
}
