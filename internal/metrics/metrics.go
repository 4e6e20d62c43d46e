// Package metrics provides Prometheus instrumentation for the chat client. It
// exposes gauges for transport and unread state, counters for frame and
// message throughput, and a histogram for REST latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TransportConnected is 1 while the STOMP session is established.
	TransportConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatclient_transport_connected",
		Help: "Whether the push transport is currently connected",
	})

	// TransportReconnects counts reconnect attempts after a dropped or failed
	// connection.
	TransportReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatclient_transport_reconnects_total",
		Help: "Total number of transport reconnect attempts",
	})

	// FramesTotal counts STOMP frames, labeled by direction: "in" or "out".
	FramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatclient_frames_total",
		Help: "Total number of STOMP frames exchanged",
	}, []string{"direction"})

	// MessagesTotal counts chat messages, labeled by type: "sent" or
	// "received".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatclient_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"type"})

	// SendFailures counts rejected outbound messages by reason:
	// "invalid_payload" or "not_connected".
	SendFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatclient_send_failures_total",
		Help: "Total number of outbound messages that were not published",
	}, []string{"reason"})

	// InboundDropped counts pushed frames that did not reach the store, by
	// reason: decode, no_handler, inactive, self_echo, unknown_peer.
	InboundDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatclient_inbound_dropped_total",
		Help: "Total number of inbound messages dropped",
	}, []string{"reason"})

	// UnreadMessages tracks the unread total across the conversation list.
	UnreadMessages = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatclient_unread_messages",
		Help: "Current number of unread messages across all conversations",
	})

	// RequestDuration records REST latency in seconds per operation and
	// outcome ("ok", "auth_expired", "failed").
	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatclient_api_request_duration_seconds",
		Help:    "REST request latency in seconds",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"operation", "outcome"})
)

func init() {
	prometheus.MustRegister(
		TransportConnected,
		TransportReconnects,
		FramesTotal,
		MessagesTotal,
		SendFailures,
		InboundDropped,
		UnreadMessages,
		RequestDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
