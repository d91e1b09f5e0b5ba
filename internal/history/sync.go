// Package history keeps the controller's session-history view of a page
// synchronized with what the rendering collaborator has committed.
//
// The ordering invariant everything here serves: the history snapshot for
// a document is pushed to the controller before the current document id
// advances past it. Sending after the advance would serialize the wrong
// document's state.
package history

import (
	"bytes"
	"fmt"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/pagehost/renderer/internal/channel"
	"github.com/pagehost/renderer/internal/correlate"
	"github.com/pagehost/renderer/internal/frame"
	"github.com/pagehost/renderer/internal/logging"
	"github.com/pagehost/renderer/internal/monitoring"
	"github.com/pagehost/renderer/internal/runloop"
	"go.uber.org/zap"
)

// Config holds the synchronizer's deferred-capture timing.
type Config struct {
	// CaptureDelay runs after the page reports it stopped loading.
	CaptureDelay time.Duration

	// ForcedCaptureDelay is the fallback for pages that never reach a
	// quiescent stopped-loading signal.
	ForcedCaptureDelay time.Duration
}

// DefaultConfig returns the standard capture delays.
func DefaultConfig() Config {
	return Config{
		CaptureDelay:       500 * time.Millisecond,
		ForcedCaptureDelay: 6 * time.Second,
	}
}

// Synchronizer is the per-page session-history state machine. All methods
// must be called on the page's run loop.
type Synchronizer struct {
	cfg     Config
	view    frame.View
	sched   runloop.Scheduler
	sender  channel.Sender
	log     *logging.Logger
	metrics *monitoring.Metrics

	// current is the last committed document id, None before the first
	// commit.
	current correlate.DocumentID

	// lastReported is the highest id ever sent to the controller; it
	// classifies subframe commits as manual vs automatic.
	lastReported correlate.DocumentID

	// lastIndexed dedups content capture.
	lastIndexed correlate.DocumentID

	ledger *correlate.Ledger

	loading bool

	// completedClientRedirectSrc is the source URL of a client redirect
	// that finished with the current commit, cleared on each new
	// provisional load and after each commit report.
	completedClientRedirectSrc string

	// requestIssuedAt backdates the load start to the moment the
	// controller dispatched it.
	requestIssuedAt time.Time
}

// NewSynchronizer wires a synchronizer to its collaborators.
func NewSynchronizer(cfg Config, ledger *correlate.Ledger, view frame.View, sched runloop.Scheduler, sender channel.Sender, log *logging.Logger, metrics *monitoring.Metrics) *Synchronizer {
	if log == nil {
		log = logging.NewNop()
	}
	return &Synchronizer{
		cfg:          cfg,
		ledger:       ledger,
		view:         view,
		sched:        sched,
		sender:       sender,
		log:          log.Named("history"),
		metrics:      metrics,
		current:      correlate.None,
		lastReported: correlate.None,
		lastIndexed:  correlate.None,
	}
}

// CurrentDocumentID returns the last committed document id.
func (s *Synchronizer) CurrentDocumentID() correlate.DocumentID { return s.current }

// OnStartedLoading reports the page's transition into the loading state.
func (s *Synchronizer) OnStartedLoading() {
	if s.loading {
		s.log.Warn("started loading while already loading")
		return
	}
	s.loading = true
	s.sender.Send(channel.Event{
		Type:    channel.EventDidStartLoading,
		Payload: channel.LoadingPayload{DocumentID: s.current},
	})
}

// OnStoppedLoading reports quiescence and schedules the short-delay
// content capture. The forced fallback capture keeps running regardless;
// the dedup marker makes the overlap idempotent.
func (s *Synchronizer) OnStoppedLoading() {
	if !s.loading {
		s.log.Warn("stopped loading while not loading")
		return
	}
	s.loading = false
	s.sender.Send(channel.Event{
		Type:    channel.EventDidStopLoading,
		Payload: channel.LoadingPayload{DocumentID: s.current},
	})

	s.scheduleCapture(s.current, s.cfg.CaptureDelay, false)
}

// OnProvisionalLoadStarted handles the start of a provisional load. For
// the top-level frame the client-redirect marker is cleared and the load
// start time is backdated to the controller's dispatch time.
func (s *Synchronizer) OnProvisionalLoadStarted(mainFrame bool, url string, meta *correlate.Metadata) {
	if mainFrame {
		s.completedClientRedirectSrc = ""
		if meta != nil {
			s.requestIssuedAt = meta.IssuedAt
		}
	}

	s.sender.Send(channel.Event{
		Type:    channel.EventDidStartProvisionalLoad,
		Payload: channel.ProvisionalLoadPayload{MainFrame: mainFrame, URL: url},
	})
}

// OnCompletedClientRedirect records that the current load finished a
// client redirect originating at src.
func (s *Synchronizer) OnCompletedClientRedirect(mainFrame bool, src string) {
	if mainFrame {
		s.completedClientRedirectSrc = src
	}
}

// OnCommit handles a provisional load becoming the active document.
//
// meta is the main-frame request's metadata (may be nil for loads the
// page initiated itself); the first committed frame suffices for history
// purposes even when frame is a subframe.
func (s *Synchronizer) OnCommit(mainFrame bool, meta *correlate.Metadata, isNewNavigation bool) {
	if isNewNavigation {
		// Push the outgoing document's snapshot before the id advances.
		s.snapshotPreviousDocument()
		s.current = s.ledger.Allocate()

		s.scheduleCapture(s.current, s.cfg.ForcedCaptureDelay, true)
	} else if meta != nil && !meta.IsNewNavigation() && !meta.Committed &&
		s.current != meta.PendingDocumentID {
		// A session-history navigation. The id comparison matters for
		// reloads: their id does not change, and snapshotting then
		// would pair the previous URL with the current id.
		s.snapshotPreviousDocument()
		s.current = meta.PendingDocumentID
	}

	// Mark the request processed regardless, so the second commit
	// callback a same-document navigation produces is a history no-op.
	if meta != nil {
		meta.Committed = true
	}

	if s.metrics != nil {
		s.metrics.DocumentsCommitted.Inc()
	}

	s.reportNavigation(mainFrame, meta)

	// A committed load ends any client redirect in progress.
	s.completedClientRedirectSrc = ""
}

// ShouldReplaceOnFailedLoad decides replace-vs-new history semantics for
// a failed provisional load: a request that carried a session-history
// target replaces, a new navigation does not.
func (s *Synchronizer) ShouldReplaceOnFailedLoad(meta *correlate.Metadata) bool {
	return meta != nil && !meta.IsNewNavigation()
}

// snapshotPreviousDocument emits the history snapshot for the document
// being navigated away from. No-op before the first commit.
func (s *Synchronizer) snapshotPreviousDocument() {
	if s.current == correlate.None {
		return
	}

	state, ok := s.view.PreviousState()
	if !ok {
		return
	}

	compressed, err := compress(state)
	if err != nil {
		s.log.Error("failed to compress history state", zap.Error(err))
		return
	}

	s.sender.Send(channel.Event{
		Type: channel.EventHistoryStateUpdated,
		Payload: channel.HistoryStatePayload{
			DocumentID: s.current,
			State:      compressed,
		},
	})
	if s.metrics != nil {
		s.metrics.HistorySnapshots.Inc()
	}
}

// reportNavigation emits FrameNavigated for the committed document.
func (s *Synchronizer) reportNavigation(mainFrame bool, meta *correlate.Metadata) {
	doc := s.view.Document()
	if doc == nil {
		return
	}

	payload := channel.FrameNavigatedPayload{
		DocumentID:          s.current,
		URL:                 doc.URL(),
		RedirectChain:       doc.RedirectChain(),
		SecurityInfo:        doc.SecurityInfo(),
		IsPost:              doc.IsPost(),
		Referrer:            doc.Referrer(),
		ShouldUpdateHistory: !doc.HasUnreachableURL(),
	}
	if doc.HasUnreachableURL() {
		payload.URL = doc.UnreachableURL()
	}

	if mainFrame {
		payload.ContentMIMEType = doc.MIMEType()
		payload.Transition = s.mainFrameTransition(meta, doc)
	} else {
		// Subframe commits classify by whether this navigation created
		// a session-history entry: an id the controller has not seen
		// yet means the user drove it. Computed before lastReported
		// advances.
		if s.current > s.lastReported {
			payload.Transition = correlate.TransitionManualSubframe
		} else {
			payload.Transition = correlate.TransitionAutoSubframe
		}
	}

	s.sender.Send(channel.Event{Type: channel.EventFrameNavigated, Payload: payload})

	if s.current > s.lastReported {
		s.lastReported = s.current
	}
}

// mainFrameTransition derives the reported transition for a top-level
// commit, copying metadata fields out before they are reset.
func (s *Synchronizer) mainFrameTransition(meta *correlate.Metadata, doc frame.Document) correlate.Transition {
	// Loads the page initiated itself are treated as link clicks.
	transition := correlate.TransitionLink
	if meta != nil {
		transition = meta.TakeTransition()
	}

	// A subframe kind can reach a main-frame commit through session
	// history (navigate in a subframe, leave, come back); anything that
	// changes the top-level frame reports as a top-level kind.
	if !transition.IsMainFrame() {
		transition = correlate.TransitionLink
	}

	if transition.Core() == correlate.TransitionLink && doc.IsFormSubmit() {
		transition = correlate.TransitionFormSubmit | (transition &^ correlate.TransitionLink)
	}

	if s.completedClientRedirectSrc != "" {
		transition |= correlate.TransitionClientRedirect
	}

	return transition
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("compress history state: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress history state: %w", err)
	}
	return buf.Bytes(), nil
}
