package history

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/pagehost/renderer/internal/channel"
	"github.com/pagehost/renderer/internal/correlate"
	"github.com/pagehost/renderer/internal/logging"
	"github.com/pagehost/renderer/internal/monitoring"
	"github.com/pagehost/renderer/tests/helpers/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	sync     *Synchronizer
	view     *testutil.FakeView
	sched    *testutil.ManualScheduler
	recorder *channel.Recorder
	ledger   *correlate.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tree := testutil.NewFakeTree(&testutil.FakeFrame{Name: "main", IsVisible: true})
	view := testutil.NewFakeView(tree)
	view.PrevState = []byte("previous-entry")

	sched := &testutil.ManualScheduler{}
	recorder := channel.NewRecorder()
	ledger := correlate.NewLedger(false, logging.NewNop())

	sync := NewSynchronizer(DefaultConfig(), ledger, view, sched, recorder,
		logging.NewNop(), monitoring.NewForTest())

	return &fixture{sync: sync, view: view, sched: sched, recorder: recorder, ledger: ledger}
}

func gunzip(t *testing.T, data []byte) []byte {
	t.Helper()
	r, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return out
}

func newNavMeta(transition correlate.Transition) *correlate.Metadata {
	return correlate.NewMetadata(correlate.None, transition, time.Now())
}

func TestFirstCommitAssignsIDWithoutSnapshot(t *testing.T) {
	f := newFixture(t)

	f.sync.OnCommit(true, newNavMeta(correlate.TransitionTyped), true)

	// Nothing committed before, so there is no outgoing state to push.
	assert.Empty(t, f.recorder.OfType(channel.EventHistoryStateUpdated))
	assert.Equal(t, correlate.DocumentID(1), f.sync.CurrentDocumentID())

	navs := f.recorder.OfType(channel.EventFrameNavigated)
	require.Len(t, navs, 1)
	payload := navs[0].Payload.(channel.FrameNavigatedPayload)
	assert.Equal(t, correlate.DocumentID(1), payload.DocumentID)
	assert.Equal(t, correlate.TransitionTyped, payload.Transition)
}

func TestSnapshotSentBeforeIDAdvances(t *testing.T) {
	f := newFixture(t)

	f.sync.OnCommit(true, newNavMeta(correlate.TransitionTyped), true)
	f.recorder.Reset()

	f.sync.OnCommit(true, newNavMeta(correlate.TransitionLink), true)

	events := f.recorder.Events()
	require.NotEmpty(t, events)

	// The snapshot for document 1 precedes the FrameNavigated for
	// document 2.
	assert.Equal(t, channel.EventHistoryStateUpdated, events[0].Type)
	snap := events[0].Payload.(channel.HistoryStatePayload)
	assert.Equal(t, correlate.DocumentID(1), snap.DocumentID)
	assert.Equal(t, []byte("previous-entry"), gunzip(t, snap.State))

	assert.Equal(t, correlate.DocumentID(2), f.sync.CurrentDocumentID())
}

func TestHistoryNavigationRestoresPendingID(t *testing.T) {
	f := newFixture(t)

	f.sync.OnCommit(true, newNavMeta(correlate.TransitionTyped), true)
	f.sync.OnCommit(true, newNavMeta(correlate.TransitionLink), true)
	f.recorder.Reset()

	// Back to document 1.
	meta := correlate.NewMetadata(1, correlate.TransitionTyped, time.Now())
	f.sync.OnCommit(true, meta, false)

	snaps := f.recorder.OfType(channel.EventHistoryStateUpdated)
	require.Len(t, snaps, 1)
	assert.Equal(t, correlate.DocumentID(2), snaps[0].Payload.(channel.HistoryStatePayload).DocumentID)

	assert.Equal(t, correlate.DocumentID(1), f.sync.CurrentDocumentID())
	assert.True(t, meta.Committed)
}

func TestSecondCommitForSameRequestIsHistoryNoop(t *testing.T) {
	f := newFixture(t)

	f.sync.OnCommit(true, newNavMeta(correlate.TransitionTyped), true)
	f.sync.OnCommit(true, newNavMeta(correlate.TransitionLink), true)

	meta := correlate.NewMetadata(1, correlate.TransitionTyped, time.Now())
	f.sync.OnCommit(true, meta, false)
	f.recorder.Reset()

	// Same-document navigation delivers a second commit callback for
	// the same request.
	f.sync.OnCommit(true, meta, false)

	assert.Empty(t, f.recorder.OfType(channel.EventHistoryStateUpdated))
	assert.Equal(t, correlate.DocumentID(1), f.sync.CurrentDocumentID())
}

func TestReloadDoesNotSnapshot(t *testing.T) {
	f := newFixture(t)

	f.sync.OnCommit(true, newNavMeta(correlate.TransitionTyped), true)
	f.recorder.Reset()

	// A reload commits with the current id as its pending id; the
	// snapshot would pair the previous URL with the current id.
	meta := correlate.NewMetadata(1, correlate.TransitionTyped, time.Now())
	f.sync.OnCommit(true, meta, false)

	assert.Empty(t, f.recorder.OfType(channel.EventHistoryStateUpdated))
	assert.Equal(t, correlate.DocumentID(1), f.sync.CurrentDocumentID())
}

func TestSubframeCommitClassification(t *testing.T) {
	f := newFixture(t)

	// Main frame commit reports id 1; lastReported becomes 1.
	f.sync.OnCommit(true, newNavMeta(correlate.TransitionTyped), true)
	f.recorder.Reset()

	// Subframe commit without an id advance: automatic.
	f.sync.OnCommit(false, nil, false)
	navs := f.recorder.OfType(channel.EventFrameNavigated)
	require.Len(t, navs, 1)
	assert.Equal(t, correlate.TransitionAutoSubframe,
		navs[0].Payload.(channel.FrameNavigatedPayload).Transition)
	f.recorder.Reset()

	// Subframe commit that created a history entry: manual.
	f.sync.OnCommit(false, nil, true)
	navs = f.recorder.OfType(channel.EventFrameNavigated)
	require.Len(t, navs, 1)
	assert.Equal(t, correlate.TransitionManualSubframe,
		navs[0].Payload.(channel.FrameNavigatedPayload).Transition)
}

func TestSubframeTransitionDemotedOnMainFrame(t *testing.T) {
	f := newFixture(t)

	// A main-frame commit carrying a subframe kind (back-navigation to
	// a page whose entry was created by a subframe load) reports link.
	f.sync.OnCommit(true, newNavMeta(correlate.TransitionManualSubframe), true)

	navs := f.recorder.OfType(channel.EventFrameNavigated)
	require.Len(t, navs, 1)
	assert.Equal(t, correlate.TransitionLink,
		navs[0].Payload.(channel.FrameNavigatedPayload).Transition)
}

func TestFormSubmitUpgradesLinkTransition(t *testing.T) {
	f := newFixture(t)
	f.view.Doc.FormSubmitted = true

	f.sync.OnCommit(true, newNavMeta(correlate.TransitionLink), true)

	navs := f.recorder.OfType(channel.EventFrameNavigated)
	require.Len(t, navs, 1)
	assert.Equal(t, correlate.TransitionFormSubmit,
		navs[0].Payload.(channel.FrameNavigatedPayload).Transition)
}

func TestClientRedirectComposesTransition(t *testing.T) {
	f := newFixture(t)

	f.sync.OnCompletedClientRedirect(true, "http://example.test/from")
	f.sync.OnCommit(true, newNavMeta(correlate.TransitionTyped), true)

	navs := f.recorder.OfType(channel.EventFrameNavigated)
	require.Len(t, navs, 1)
	tr := navs[0].Payload.(channel.FrameNavigatedPayload).Transition
	assert.Equal(t, correlate.TransitionTyped, tr.Core())
	assert.True(t, tr.Has(correlate.TransitionClientRedirect))

	// The marker clears with the commit; the next commit is plain.
	f.recorder.Reset()
	f.sync.OnCommit(true, newNavMeta(correlate.TransitionTyped), true)
	navs = f.recorder.OfType(channel.EventFrameNavigated)
	require.Len(t, navs, 1)
	assert.False(t, navs[0].Payload.(channel.FrameNavigatedPayload).Transition.
		Has(correlate.TransitionClientRedirect))
}

func TestProvisionalLoadClearsRedirectMarker(t *testing.T) {
	f := newFixture(t)

	f.sync.OnCompletedClientRedirect(true, "http://example.test/from")
	f.sync.OnProvisionalLoadStarted(true, "http://example.test/next", nil)
	f.sync.OnCommit(true, newNavMeta(correlate.TransitionTyped), true)

	navs := f.recorder.OfType(channel.EventFrameNavigated)
	require.Len(t, navs, 1)
	assert.False(t, navs[0].Payload.(channel.FrameNavigatedPayload).Transition.
		Has(correlate.TransitionClientRedirect))
}

func TestLoadingNotifications(t *testing.T) {
	f := newFixture(t)

	f.sync.OnCommit(true, newNavMeta(correlate.TransitionTyped), true)
	f.sync.OnStartedLoading()
	f.sync.OnStartedLoading() // double start is ignored

	starts := f.recorder.OfType(channel.EventDidStartLoading)
	require.Len(t, starts, 1)
	assert.Equal(t, correlate.DocumentID(1), starts[0].Payload.(channel.LoadingPayload).DocumentID)

	f.sync.OnStoppedLoading()
	f.sync.OnStoppedLoading() // double stop is ignored

	stops := f.recorder.OfType(channel.EventDidStopLoading)
	require.Len(t, stops, 1)
}

func TestCaptureAfterStoppedLoading(t *testing.T) {
	f := newFixture(t)
	f.view.Doc.DocText = "indexable text"

	f.sync.OnCommit(true, newNavMeta(correlate.TransitionTyped), true)
	f.sync.OnStartedLoading()
	f.sync.OnStoppedLoading()

	// Forced capture (commit) plus short-delay capture (stop).
	require.Len(t, f.sched.Delayed, 2)
	assert.Equal(t, DefaultConfig().ForcedCaptureDelay, f.sched.Delayed[0].Delay)
	assert.Equal(t, DefaultConfig().CaptureDelay, f.sched.Delayed[1].Delay)

	// Short-delay capture delivers the content.
	f.sched.Fire(1)
	captures := f.recorder.OfType(channel.EventPageContentCaptured)
	require.Len(t, captures, 1)
	payload := captures[0].Payload.(channel.PageContentPayload)
	assert.Equal(t, "indexable text", payload.Text)
	assert.Equal(t, correlate.DocumentID(1), payload.DocumentID)

	// The forced fallback then dedups against the indexed marker.
	f.sched.Fire(0)
	assert.Len(t, f.recorder.OfType(channel.EventPageContentCaptured), 1)
}

func TestCaptureNoopAfterSupersedingNavigation(t *testing.T) {
	f := newFixture(t)
	f.view.Doc.DocText = "text"

	f.sync.OnCommit(true, newNavMeta(correlate.TransitionTyped), true)
	f.sync.OnStartedLoading()
	f.sync.OnStoppedLoading()

	// Navigate away before the delayed capture fires.
	f.sync.OnCommit(true, newNavMeta(correlate.TransitionLink), true)

	// The capture keyed to document 1 is now a no-op.
	f.sched.Fire(1)
	assert.Empty(t, f.recorder.OfType(channel.EventPageContentCaptured))
}

func TestPreliminaryCaptureDoesNotSetDedupMarker(t *testing.T) {
	f := newFixture(t)
	f.view.Doc.DocText = "text"

	f.sync.OnCommit(true, newNavMeta(correlate.TransitionTyped), true)

	// Forced (preliminary) capture fires first.
	require.Len(t, f.sched.Delayed, 1)
	f.sched.Fire(0)
	require.Len(t, f.recorder.OfType(channel.EventPageContentCaptured), 1)

	// The definitive capture after loading still runs.
	f.sync.OnStartedLoading()
	f.sync.OnStoppedLoading()
	f.sched.Fire(1)
	assert.Len(t, f.recorder.OfType(channel.EventPageContentCaptured), 2)
}

func TestCaptureSkipsExcludedDocuments(t *testing.T) {
	for name, mutate := range map[string]func(*testutil.FakeDocument){
		"view_source": func(d *testutil.FakeDocument) { d.ViewSource = true },
		"unreachable": func(d *testutil.FakeDocument) { d.Unreachable = true },
		"empty_text":  func(d *testutil.FakeDocument) { d.DocText = "" },
		"empty_url":   func(d *testutil.FakeDocument) { d.DocURL = "" },
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.view.Doc.DocText = "text"
			mutate(f.view.Doc)

			f.sync.OnCommit(true, newNavMeta(correlate.TransitionTyped), true)
			f.sched.FireAll()

			assert.Empty(t, f.recorder.OfType(channel.EventPageContentCaptured))
		})
	}
}

func TestShouldReplaceOnFailedLoad(t *testing.T) {
	f := newFixture(t)

	assert.False(t, f.sync.ShouldReplaceOnFailedLoad(nil))
	assert.False(t, f.sync.ShouldReplaceOnFailedLoad(newNavMeta(correlate.TransitionLink)))
	assert.True(t, f.sync.ShouldReplaceOnFailedLoad(
		correlate.NewMetadata(3, correlate.TransitionLink, time.Now())))
}

func TestUnreachableURLReported(t *testing.T) {
	f := newFixture(t)
	f.view.Doc.Unreachable = true
	f.view.Doc.UnreachURL = "http://example.test/missing"

	f.sync.OnCommit(true, newNavMeta(correlate.TransitionTyped), true)

	navs := f.recorder.OfType(channel.EventFrameNavigated)
	require.Len(t, navs, 1)
	payload := navs[0].Payload.(channel.FrameNavigatedPayload)
	assert.Equal(t, "http://example.test/missing", payload.URL)
	assert.False(t, payload.ShouldUpdateHistory)
}
