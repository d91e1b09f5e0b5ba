// Package page integrates the engine components for one top-level page:
// the correlation ledger and metadata table, the session-history
// synchronizer, the find engine and the ack-gated target-URL slot, all
// driven from a single run loop.
//
// Controller commands arrive through HandleCommand and are posted onto
// the loop; collaborator callbacks (Did* methods) are expected on the
// loop already. Nothing here blocks on the controller.
package page

import (
	"encoding/json"
	"time"

	"github.com/pagehost/renderer/internal/channel"
	"github.com/pagehost/renderer/internal/correlate"
	"github.com/pagehost/renderer/internal/find"
	"github.com/pagehost/renderer/internal/frame"
	"github.com/pagehost/renderer/internal/history"
	"github.com/pagehost/renderer/internal/logging"
	"github.com/pagehost/renderer/internal/monitoring"
	"github.com/pagehost/renderer/internal/notify"
	"github.com/pagehost/renderer/internal/runloop"
	"github.com/pagehost/renderer/internal/shared/id"
	"go.uber.org/zap"
)

// Config holds per-page settings.
type Config struct {
	Capture history.Config
}

// DefaultConfig returns standard page settings.
func DefaultConfig() Config {
	return Config{Capture: history.DefaultConfig()}
}

// Page is the per-page engine front end.
type Page struct {
	id    id.PageID
	loop  runloop.Scheduler
	view  frame.View
	table *correlate.Table

	ledger  *correlate.Ledger
	history *history.Synchronizer
	find    *find.Engine

	targetURL     *notify.Slot[channel.TargetURLPayload]
	lastTargetURL string

	// currentRequest identifies the main frame's in-flight navigation
	// request; its metadata lives in the table until superseded.
	currentRequest id.RequestID

	sender  channel.Sender
	metrics *monitoring.Metrics
	log     *logging.Logger
}

// New wires a page. The ledger is shared process-wide and injected; the
// rest of the state is per page.
func New(cfg Config, ledger *correlate.Ledger, view frame.View, loop runloop.Scheduler, sender channel.Sender, log *logging.Logger, metrics *monitoring.Metrics) *Page {
	if log == nil {
		log = logging.NewNop()
	}
	pageID := id.NewPageID()
	log = log.WithPage(pageID.String())

	p := &Page{
		id:      pageID,
		loop:    loop,
		view:    view,
		table:   correlate.NewTable(),
		ledger:  ledger,
		sender:  sender,
		metrics: metrics,
		log:     log.Named("page"),
	}

	p.history = history.NewSynchronizer(cfg.Capture, ledger, view, loop, sender, log, metrics)

	p.find = find.NewEngine(view, func(reply channel.FindReplyPayload) {
		sender.Send(channel.Event{Type: channel.EventFindReply, Payload: reply})
	}, log)

	p.targetURL = notify.NewSlot(func(payload channel.TargetURLPayload) {
		sender.Send(channel.Event{Type: channel.EventTargetURLChanged, Payload: payload})
	})
	if metrics != nil {
		p.targetURL.OnDrop = func(channel.TargetURLPayload) {
			metrics.CoalescedDrops.WithLabelValues("target_url").Inc()
		}
	}

	return p
}

// ID returns the page identifier.
func (p *Page) ID() id.PageID { return p.id }

// History exposes the session-history synchronizer, mainly for tests.
func (p *Page) History() *history.Synchronizer { return p.history }

// HandleCommand decodes a controller command and posts it onto the page
// run loop. Implements channel.CommandHandler.
func (p *Page) HandleCommand(cmd channel.Command) {
	switch cmd.Type {
	case channel.CommandNavigate:
		var payload channel.NavigatePayload
		if !p.decode(cmd, &payload) {
			return
		}
		p.loop.Post(func() { p.navigate(payload) })

	case channel.CommandReserveIDRange:
		var payload channel.ReserveIDRangePayload
		if !p.decode(cmd, &payload) {
			return
		}
		p.loop.Post(func() { p.ledger.Reserve(payload.Span) })

	case channel.CommandSetNextDocumentID:
		var payload channel.SetNextDocumentIDPayload
		if !p.decode(cmd, &payload) {
			return
		}
		p.loop.Post(func() {
			if err := p.ledger.SetInitial(payload.Next); err != nil {
				p.log.Warn("set_next_document_id rejected", zap.Error(err))
			}
		})

	case channel.CommandAckTargetURL:
		p.loop.Post(p.targetURL.Ack)

	case channel.CommandAckFindReply:
		p.loop.Post(p.find.Ack)

	case channel.CommandFind:
		var payload channel.FindPayload
		if !p.decode(cmd, &payload) {
			return
		}
		p.loop.Post(func() {
			if !payload.Options.FindNext && p.metrics != nil {
				p.metrics.FindSessions.Inc()
			}
			p.find.Find(frame.FindRequest{
				ID:      payload.RequestID,
				Text:    payload.Text,
				Options: payload.Options,
			})
		})

	case channel.CommandStopFind:
		var payload channel.StopFindPayload
		if !p.decode(cmd, &payload) {
			return
		}
		p.loop.Post(func() { p.find.StopFind(payload.ClearSelection) })

	case channel.CommandStop:
		p.loop.Post(p.view.StopLoading)

	default:
		p.log.Warn("unknown command", zap.String("type", string(cmd.Type)))
	}
}

func (p *Page) decode(cmd channel.Command, out any) bool {
	if err := json.Unmarshal(cmd.Payload, out); err != nil {
		p.log.Warn("malformed command payload",
			zap.String("type", string(cmd.Type)), zap.Error(err))
		return false
	}
	return true
}

// navigate issues a main-frame load for a controller Navigate command.
func (p *Page) navigate(cmd channel.NavigatePayload) {
	reload := cmd.Reload
	if reload && !p.view.HasCurrentState() {
		// No history state to validate against (first load after a
		// crash recovery): downgrade to an ordinary load.
		p.log.Debug("reload without history state downgraded", zap.String("url", cmd.URL))
		reload = false
	}

	// The new navigation supersedes the previous in-flight request and
	// any scoping pass still running against the outgoing content.
	if p.currentRequest != "" {
		p.table.Detach(p.currentRequest)
	}
	p.find.CancelScoping()

	req := id.NewRequestID()
	p.table.Attach(req, correlate.NewMetadata(cmd.DocumentID, cmd.Transition, time.Now()))
	p.currentRequest = req

	load := frame.LoadRequest{
		URL:      cmd.URL,
		Reload:   reload,
		Referrer: cmd.Referrer,
	}
	// A reload reuses the collaborator's current state; otherwise the
	// controller supplies the state to navigate to.
	if !reload {
		load.HistoryState = cmd.HistoryState
	}

	p.view.Load(load)
}

// currentMetadata returns the main frame's in-flight request metadata.
func (p *Page) currentMetadata() *correlate.Metadata {
	if p.currentRequest == "" {
		return nil
	}
	meta, ok := p.table.Lookup(p.currentRequest)
	if !ok {
		return nil
	}
	return meta
}

// Collaborator callbacks. All run on the page loop.

// DidStartProvisionalLoad reports that a frame began a provisional load.
func (p *Page) DidStartProvisionalLoad(mainFrame bool, url string) {
	p.history.OnProvisionalLoadStarted(mainFrame, url, p.currentMetadata())
}

// DidCommitLoad reports that a frame's provisional load committed.
func (p *Page) DidCommitLoad(mainFrame bool, isNewNavigation bool) {
	p.history.OnCommit(mainFrame, p.currentMetadata(), isNewNavigation)
}

// DidNavigateWithinPage handles same-document navigations, which commit
// but reuse the in-flight request.
func (p *Page) DidNavigateWithinPage(mainFrame bool, isNewNavigation bool) {
	p.DidCommitLoad(mainFrame, isNewNavigation)
}

// DidStartLoading reports the loading state edge.
func (p *Page) DidStartLoading() { p.history.OnStartedLoading() }

// DidStopLoading reports quiescence.
func (p *Page) DidStopLoading() { p.history.OnStoppedLoading() }

// DidCompleteClientRedirect records a finished client redirect.
func (p *Page) DidCompleteClientRedirect(mainFrame bool, sourceURL string) {
	p.history.OnCompletedClientRedirect(mainFrame, sourceURL)
}

// DidFailProvisionalLoad decides replace-vs-new history semantics for the
// collaborator's error page. The failed request's metadata stays attached
// until a new navigation supersedes it.
func (p *Page) DidFailProvisionalLoad() (replaceEntry bool) {
	return p.history.ShouldReplaceOnFailedLoad(p.currentMetadata())
}

// UpdateTargetURL reports the link target under the pointer. Ack-gated:
// at most one unacknowledged notification, newer targets coalesce.
func (p *Page) UpdateTargetURL(url string) {
	if url == p.lastTargetURL {
		return
	}
	p.lastTargetURL = url
	p.targetURL.Update(channel.TargetURLPayload{
		DocumentID: p.history.CurrentDocumentID(),
		URL:        url,
	})
}

// ReportFindMatchCount forwards a scoping tally from the collaborator.
func (p *Page) ReportFindMatchCount(requestID int32, count int, final bool) {
	p.find.ReportMatchCount(requestID, count, final)
}

// ReportFindSelection forwards an active-match change.
func (p *Page) ReportFindSelection(requestID int32, ordinal int, selection frame.Rect) {
	p.find.ReportSelection(requestID, ordinal, selection)
}

// Close tears the page down. Late acks and delayed captures become
// no-ops through the usual state checks.
func (p *Page) Close() {
	if p.currentRequest != "" {
		p.table.Detach(p.currentRequest)
		p.currentRequest = ""
	}
	p.targetURL.Reset()
	p.log.Info("page closed")
}
