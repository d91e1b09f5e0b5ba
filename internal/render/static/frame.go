package static

import (
	"strings"

	"github.com/pagehost/renderer/internal/frame"
)

// Frame is one static HTML frame. The active match is tracked as a
// cursor into the frame's match offsets.
type Frame struct {
	view    *View
	index   int
	visible bool
	text    string

	// active is the index into matches() of the current tickmark, or
	// -1 when the frame holds no active match.
	active int
}

// Visible implements frame.Frame.
func (f *Frame) Visible() bool { return f.visible }

// matches returns the byte offsets of every case-folded occurrence of
// text in the frame.
func (f *Frame) matches(text string, matchCase bool) []int {
	if text == "" {
		return nil
	}
	haystack, needle := f.text, text
	if !matchCase {
		haystack = strings.ToLower(haystack)
		needle = strings.ToLower(needle)
	}
	var offs []int
	for from := 0; ; {
		i := strings.Index(haystack[from:], needle)
		if i < 0 {
			return offs
		}
		offs = append(offs, from+i)
		from += i + 1
	}
}

// Find implements frame.Frame. It moves the active-match cursor one
// step in the requested direction, wrapping within the frame only when
// wrap is set.
func (f *Frame) Find(req frame.FindRequest, wrap bool) (bool, frame.Rect) {
	offs := f.matches(req.Text, req.Options.MatchCase)
	if len(offs) == 0 {
		return false, frame.Rect{}
	}

	next := f.active
	if req.Options.Forward {
		next++
	} else if next == -1 {
		next = len(offs) - 1
	} else {
		next--
	}

	if next < 0 || next >= len(offs) {
		if !wrap {
			f.active = -1
			return false, frame.Rect{}
		}
		if next < 0 {
			next = len(offs) - 1
		} else {
			next = 0
		}
	}

	f.active = next
	rect := f.rectFor(offs[next], len(req.Text))
	if f.view.reporter != nil {
		f.view.reporter.ReportFindSelection(req.ID, next+1, rect)
	}
	return true, rect
}

// rectFor synthesizes a selection rectangle from a text offset. There
// is no real layout, so offsets map to a fixed-metric line grid.
func (f *Frame) rectFor(off, length int) frame.Rect {
	const cols, charW, lineH = 80, 8, 16
	return frame.Rect{
		X:      (off % cols) * charW,
		Y:      (off / cols) * lineH,
		Width:  length * charW,
		Height: lineH,
	}
}

// ScopeMatches implements frame.Frame. Counting is immediate; the view
// accumulates the running total across the pass and reports it after
// every frame, final once the last frame has been counted. A pass starts
// at the main frame, which resets the accumulator. Frames with no
// visible area contribute nothing: the user cannot step to their
// matches, so they must not appear in the tally either.
func (f *Frame) ScopeMatches(req frame.FindRequest, resetTickmarks bool) {
	if f.index == 0 {
		f.view.scopeTotal = 0
	}
	if f.visible {
		f.view.scopeTotal += len(f.matches(req.Text, req.Options.MatchCase))
	}
	if f.view.reporter != nil {
		final := f.index == len(f.view.frames)-1
		f.view.reporter.ReportFindMatchCount(req.ID, f.view.scopeTotal, final)
	}
}

// CancelScoping implements frame.Frame.
func (f *Frame) CancelScoping() {}

// RecountMatches implements frame.Frame. Scoping is synchronous here,
// so the accumulated total is already complete.
func (f *Frame) RecountMatches(requestID int32) {
	if f.view.reporter != nil {
		f.view.reporter.ReportFindMatchCount(requestID, f.view.scopeTotal, true)
	}
}

// StopFinding implements frame.Frame.
func (f *Frame) StopFinding(clearSelection bool) {
	f.active = -1
}

// ClearSelection implements frame.Frame.
func (f *Frame) ClearSelection() {
	f.active = -1
}
