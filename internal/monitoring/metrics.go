// Package monitoring collects Prometheus metrics for the renderer host.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Channel metrics
	EventsSent      *prometheus.CounterVec
	CommandsTotal   *prometheus.CounterVec
	CommandsDropped prometheus.Counter
	Connections     prometheus.Gauge

	// Notifier metrics
	CoalescedDrops *prometheus.CounterVec

	// History metrics
	HistorySnapshots   prometheus.Counter
	DocumentsCommitted prometheus.Counter

	// Capture metrics
	PageCaptures    prometheus.Counter
	CapturesSkipped *prometheus.CounterVec

	// Find metrics
	FindSessions prometheus.Counter
}

// New creates a metrics collector registered against reg. Tests pass a
// fresh registry so collectors never collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renderhost_events_sent_total",
				Help: "Events sent to the controller, by type",
			},
			[]string{"type"},
		),
		CommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renderhost_commands_total",
				Help: "Controller commands received, by type",
			},
			[]string{"type"},
		),
		CommandsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "renderhost_commands_dropped_total",
				Help: "Controller commands dropped by rate limiting",
			},
		),
		Connections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "renderhost_channel_connections",
				Help: "Active controller channel connections",
			},
		),
		CoalescedDrops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renderhost_coalesced_drops_total",
				Help: "Pending notifications overwritten before send, by kind",
			},
			[]string{"kind"},
		),
		HistorySnapshots: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "renderhost_history_snapshots_total",
				Help: "History-state snapshots pushed to the controller",
			},
		),
		DocumentsCommitted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "renderhost_documents_committed_total",
				Help: "Navigations committed",
			},
		),
		PageCaptures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "renderhost_page_captures_total",
				Help: "Page content captures delivered",
			},
		),
		CapturesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "renderhost_captures_skipped_total",
				Help: "Capture tasks skipped at fire time, by reason",
			},
			[]string{"reason"},
		),
		FindSessions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "renderhost_find_sessions_total",
				Help: "Find sessions started",
			},
		),
	}
}

// NewForTest creates metrics on a throwaway registry.
func NewForTest() *Metrics {
	return New(prometheus.NewRegistry())
}
