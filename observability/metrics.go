// Package observability exposes the core's Prometheus collectors.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OnlineUsers tracks the size of the presence registry.
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "realtime",
		Name:      "online_users",
		Help:      "Identities currently holding a live connection.",
	})

	// MessagesTotal counts accepted messages by the status they were
	// persisted with.
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realtime",
		Name:      "messages_total",
		Help:      "Messages accepted by the delivery pipeline.",
	}, []string{"status"})

	// CallsTotal counts call records by terminal or current status.
	CallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realtime",
		Name:      "calls_total",
		Help:      "Call state transitions applied by the coordinator.",
	}, []string{"status"})

	// RateLimited counts sends rejected by the rate guard.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "realtime",
		Name:      "rate_limited_total",
		Help:      "Chat events rejected by the per-connection rate guard.",
	})

	// EventsTotal counts inbound session events by name.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realtime",
		Name:      "events_total",
		Help:      "Inbound session events dispatched by the router.",
	}, []string{"event"})
)
