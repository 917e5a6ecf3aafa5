// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wagate_sessions",
		Help: "Registered sessions by lifecycle state",
	}, []string{"state"})

	sessionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagate_session_transitions_total",
		Help: "Session lifecycle transitions",
	}, []string{"from", "to"})

	reconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wagate_session_reconnect_attempts_total",
		Help: "Total automatic reconnect attempts scheduled",
	})

	sessionsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagate_sessions_failed_total",
		Help: "Sessions that entered FAILED by error code",
	}, []string{"code"})
)

// RecordSessionTransition moves one session between state gauges and counts the edge.
// An empty from registers a new session; an empty to removes it.
func RecordSessionTransition(from, to string) {
	if from == to {
		return
	}
	if from != "" {
		sessionsByState.WithLabelValues(from).Dec()
	}
	if to != "" {
		sessionsByState.WithLabelValues(to).Inc()
	}
	if from != "" && to != "" {
		sessionTransitionsTotal.WithLabelValues(from, to).Inc()
	}
}

func IncReconnectAttempt() {
	reconnectAttemptsTotal.Inc()
}

func IncSessionFailed(code string) {
	if code == "" {
		code = "unknown"
	}
	sessionsFailedTotal.WithLabelValues(code).Inc()
}
