// Package metrics exposes the Prometheus metrics the stream server updates
// during operation:
//   - stream_connections: open WebSocket connections (gauge)
//   - stream_subscriptions{channel}: live subscriptions per channel (gauge)
//   - stream_publishes_total{channel}: envelopes published per channel
//   - stream_fetch_errors_total{channel}: upstream fetch failures (tick skipped)
//   - stream_send_failures_total: sends that triggered a disconnect
//   - stream_dropped_messages_total: messages dropped on slow consumers
//
// Served by the HTTP handler at /metrics (Prometheus text exposition format).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_connections",
			Help: "Open WebSocket connections",
		},
	)

	Subscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stream_subscriptions",
			Help: "Live subscriptions per channel",
		},
		[]string{"channel"},
	)

	Publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_publishes_total",
			Help: "Envelopes published per channel",
		},
		[]string{"channel"},
	)

	FetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_fetch_errors_total",
			Help: "Upstream fetch failures, each one a skipped tick",
		},
		[]string{"channel"},
	)

	SendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_send_failures_total",
			Help: "Sends that failed and triggered a disconnect",
		},
	)

	DroppedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_dropped_messages_total",
			Help: "Messages dropped because a consumer was too slow",
		},
	)
)

func init() {
	prometheus.MustRegister(
		Connections,
		Subscriptions,
		Publishes,
		FetchErrors,
		SendFailures,
		DroppedMessages,
	)
}
