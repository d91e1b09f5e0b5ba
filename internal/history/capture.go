package history

import (
	"time"

	"github.com/pagehost/renderer/internal/channel"
	"github.com/pagehost/renderer/internal/correlate"
	"go.uber.org/zap"
)

// scheduleCapture queues a deferred content capture keyed to docID. The
// id travels by value: validity is re-checked when the task fires, so a
// timer outliving its navigation is harmless rather than canceled.
func (s *Synchronizer) scheduleCapture(docID correlate.DocumentID, delay time.Duration, preliminary bool) {
	s.sched.PostDelayed(delay, func() {
		s.capturePage(docID, preliminary)
	})
}

// capturePage extracts and emits the page's text content for indexing.
// preliminary captures (the forced fallback) do not set the dedup marker,
// so the definitive post-load capture can still run.
func (s *Synchronizer) capturePage(docID correlate.DocumentID, preliminary bool) {
	if docID != s.current {
		// Superseded by a newer navigation.
		s.skipCapture("superseded")
		return
	}
	if docID == s.lastIndexed {
		s.skipCapture("already_indexed")
		return
	}

	doc := s.view.Document()
	if doc == nil {
		s.skipCapture("no_document")
		return
	}
	if doc.InViewSourceMode() {
		s.skipCapture("view_source")
		return
	}
	if doc.HasUnreachableURL() {
		// Failed loads are not indexed.
		s.skipCapture("unreachable")
		return
	}

	url := doc.URL()
	if url == "" {
		s.skipCapture("empty_url")
		return
	}

	text := doc.Text()
	if text == "" {
		s.skipCapture("empty_text")
		return
	}

	if !preliminary {
		s.lastIndexed = docID
	}

	s.sender.Send(channel.Event{
		Type: channel.EventPageContentCaptured,
		Payload: channel.PageContentPayload{
			URL:        url,
			DocumentID: docID,
			Text:       text,
		},
	})
	if s.metrics != nil {
		s.metrics.PageCaptures.Inc()
	}

	s.log.Debug("captured page content",
		zap.Int32("document_id", int32(docID)),
		zap.Bool("preliminary", preliminary),
		zap.Int("text_len", len(text)))
}

func (s *Synchronizer) skipCapture(reason string) {
	if s.metrics != nil {
		s.metrics.CapturesSkipped.WithLabelValues(reason).Inc()
	}
}
