// Package server instruments the relay with Prometheus metrics exposed on
// the /metrics endpoint.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections_active",
		Help: "Number of currently open websocket connections.",
	})

	connectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_connections_total",
		Help: "Total websocket connections accepted since start.",
	})

	messagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Total chat messages appended to the in-memory store.",
	})

	authFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_auth_failures_total",
		Help: "Total failed authentication attempts.",
	})

	eventsDiscardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_events_discarded_total",
		Help: "Total inbound events discarded due to rate limiting or rejection.",
	})
)
