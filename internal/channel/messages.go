// Package channel defines the message surface between this renderer host
// and its controller, plus the websocket transport carrying it.
//
// The channel is ordered, reliable and asynchronous: events are
// fire-and-forget from the engine's perspective, and acknowledgments
// arrive later as separate commands. Flow control for high-frequency
// event kinds lives in internal/notify, not here.
package channel

import (
	"encoding/json"

	"github.com/pagehost/renderer/internal/correlate"
	"github.com/pagehost/renderer/internal/frame"
)

// EventType enumerates renderer-to-controller notifications.
type EventType string

const (
	EventDidStartLoading         EventType = "did_start_loading"
	EventDidStopLoading          EventType = "did_stop_loading"
	EventDidStartProvisionalLoad EventType = "did_start_provisional_load"
	EventFrameNavigated          EventType = "frame_navigated"
	EventHistoryStateUpdated     EventType = "history_state_updated"
	EventTargetURLChanged        EventType = "target_url_changed"
	EventFindReply               EventType = "find_reply"
	EventPageContentCaptured     EventType = "page_content_captured"
)

// Event is the outbound envelope.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// LoadingPayload accompanies DidStartLoading / DidStopLoading.
type LoadingPayload struct {
	DocumentID correlate.DocumentID `json:"document_id"`
}

// ProvisionalLoadPayload accompanies DidStartProvisionalLoad.
type ProvisionalLoadPayload struct {
	MainFrame bool   `json:"main_frame"`
	URL       string `json:"url"`
}

// FrameNavigatedPayload reports a committed navigation.
type FrameNavigatedPayload struct {
	DocumentID          correlate.DocumentID `json:"document_id"`
	URL                 string               `json:"url"`
	Transition          correlate.Transition `json:"transition"`
	IsPost              bool                 `json:"is_post"`
	RedirectChain       []string             `json:"redirect_chain,omitempty"`
	Referrer            string               `json:"referrer,omitempty"`
	SecurityInfo        string               `json:"security_info,omitempty"`
	ContentMIMEType     string               `json:"content_mime_type,omitempty"`
	ShouldUpdateHistory bool                 `json:"should_update_history"`
}

// HistoryStatePayload carries a gzip-compressed history snapshot for the
// document being navigated away from.
type HistoryStatePayload struct {
	DocumentID correlate.DocumentID `json:"document_id"`
	State      []byte               `json:"state"`
}

// TargetURLPayload is the ack-gated hover-target notification.
type TargetURLPayload struct {
	DocumentID correlate.DocumentID `json:"document_id"`
	URL        string               `json:"url"`
}

// FindReplyPayload is the ack-gated find tally.
//
// ActiveOrdinal -1 means "unknown/unchanged"; MatchCount -1 means "do not
// update the count".
type FindReplyPayload struct {
	RequestID     int32      `json:"request_id"`
	MatchCount    int        `json:"match_count"`
	SelectionRect frame.Rect `json:"selection_rect"`
	ActiveOrdinal int        `json:"active_ordinal"`
	Final         bool       `json:"final"`
}

// PageContentPayload delivers captured page text for indexing.
type PageContentPayload struct {
	URL        string               `json:"url"`
	DocumentID correlate.DocumentID `json:"document_id"`
	Text       string               `json:"text"`
}

// CommandType enumerates controller-to-renderer commands.
type CommandType string

const (
	CommandNavigate          CommandType = "navigate"
	CommandReserveIDRange    CommandType = "reserve_document_id_range"
	CommandSetNextDocumentID CommandType = "set_next_document_id"
	CommandAckTargetURL      CommandType = "ack_target_url"
	CommandAckFindReply      CommandType = "ack_find_reply"
	CommandFind              CommandType = "find"
	CommandStopFind          CommandType = "stop_find"
	CommandStop              CommandType = "stop"
)

// Command is the inbound envelope. Payload decoding is deferred until the
// dispatcher knows the type.
type Command struct {
	Type    CommandType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NavigatePayload instructs a main-frame load.
type NavigatePayload struct {
	URL string `json:"url"`

	// Reload requests a cache-bypassing reload. Downgraded to an
	// ordinary load when no current history state exists.
	Reload bool `json:"reload"`

	// DocumentID is the session-history target, or correlate.None for a
	// new navigation.
	DocumentID correlate.DocumentID `json:"document_id"`

	Transition   correlate.Transition `json:"transition"`
	HistoryState []byte               `json:"history_state,omitempty"`
	Referrer     string               `json:"referrer,omitempty"`
}

// UnmarshalJSON defaults an absent document_id to None, so a controller
// that omits the field gets a new navigation, not session-history
// document 0.
func (p *NavigatePayload) UnmarshalJSON(data []byte) error {
	type plain NavigatePayload
	decoded := plain{DocumentID: correlate.None}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*p = NavigatePayload(decoded)
	return nil
}

// ReserveIDRangePayload pre-allocates a contiguous DocumentID block.
type ReserveIDRangePayload struct {
	Span uint32 `json:"span"`
}

// SetNextDocumentIDPayload seeds the ledger at process start.
type SetNextDocumentIDPayload struct {
	Next correlate.DocumentID `json:"next"`
}

// FindPayload starts or continues a text search.
type FindPayload struct {
	RequestID int32             `json:"request_id"`
	Text      string            `json:"text"`
	Options   frame.FindOptions `json:"options"`
}

// StopFindPayload ends the active find session.
type StopFindPayload struct {
	ClearSelection bool `json:"clear_selection"`
}
