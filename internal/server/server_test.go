package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagehost/renderer/internal/channel"
	"github.com/pagehost/renderer/internal/config"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	cfg := config.Default()
	cfg.Logging.Level = "error"
	s, err := NewServer(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func dialChannel(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/channel"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendCommand(t *testing.T, ws *websocket.Conn, typ channel.CommandType, payload any) {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(channel.Command{Type: typ, Payload: raw}))
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNavigateOverChannel(t *testing.T) {
	_, ts := newTestServer(t)
	ws := dialChannel(t, ts)

	sendCommand(t, ws, channel.CommandNavigate, map[string]any{
		"url":         "http://example.test/page",
		"document_id": -1,
	})

	// The static collaborator loads synchronously, so the full commit
	// sequence arrives without further prompting.
	seen := make(map[channel.EventType]bool)
	deadline := time.Now().Add(5 * time.Second)
	for !seen[channel.EventDidStopLoading] {
		require.NoError(t, ws.SetReadDeadline(deadline))

		var event struct {
			Type    channel.EventType `json:"type"`
			Payload json.RawMessage   `json:"payload"`
		}
		require.NoError(t, ws.ReadJSON(&event))
		seen[event.Type] = true

		if event.Type == channel.EventFrameNavigated {
			var nav channel.FrameNavigatedPayload
			require.NoError(t, json.Unmarshal(event.Payload, &nav))
			assert.Equal(t, "http://example.test/page", nav.URL)
			assert.Greater(t, int32(nav.DocumentID), int32(0))
		}
	}

	assert.True(t, seen[channel.EventDidStartProvisionalLoad])
	assert.True(t, seen[channel.EventDidStartLoading])
	assert.True(t, seen[channel.EventFrameNavigated])
}

func TestConnectionGaugeTracksChannel(t *testing.T) {
	s, ts := newTestServer(t)
	ws := dialChannel(t, ts)

	sendCommand(t, ws, channel.CommandNavigate, map[string]any{
		"url":         "http://example.test/",
		"document_id": -1,
	})

	// Reading one event proves the connection is fully wired.
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var event channel.Event
	require.NoError(t, ws.ReadJSON(&event))

	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.Connections))
}
