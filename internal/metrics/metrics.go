// Package metrics collects Prometheus metrics for the sync core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	Registry *prometheus.Registry

	// Socket metrics
	FramesTotal     *prometheus.CounterVec
	FramesDropped   prometheus.Counter
	Reconnects      prometheus.Counter
	SendsDropped    prometheus.Counter
	ConnectionState prometheus.Gauge

	// Mutation metrics
	MutationsTotal *prometheus.CounterVec
	Rollbacks      prometheus.Counter

	// Cache metrics
	CachedChats    prometheus.Gauge
	CachedMessages prometheus.Gauge
}

// New creates a metrics collector backed by its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		FramesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_frames_total",
				Help: "Total number of server frames received, by event type",
			},
			[]string{"type"},
		),
		FramesDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chatsync_frames_dropped_total",
				Help: "Total number of malformed frames dropped",
			},
		),
		Reconnects: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chatsync_reconnects_total",
				Help: "Total number of reconnect attempts scheduled",
			},
		),
		SendsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chatsync_sends_dropped_total",
				Help: "Total number of outbound frames dropped while the socket was not open",
			},
		),
		ConnectionState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatsync_connection_state",
				Help: "Current connection state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting)",
			},
		),
		MutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_mutations_total",
				Help: "Total number of mutations issued, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		Rollbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chatsync_optimistic_rollbacks_total",
				Help: "Total number of optimistic updates rolled back after a failed mutation",
			},
		),
		CachedChats: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatsync_cached_chats",
				Help: "Number of chats in the in-memory read model",
			},
		),
		CachedMessages: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatsync_cached_messages",
				Help: "Number of messages in the in-memory read model",
			},
		),
	}
}
