// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagate_bus_dropped_total",
		Help: "Total number of pub/sub messages dropped by transport and reason",
	}, []string{"transport", "reason"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagate_events_published_total",
		Help: "Session events relayed to subscribers by event type and outcome",
	}, []string{"event", "outcome"}) // outcome=success|failure
)

// IncBusDrop records a dropped bus message.
func IncBusDrop(transport, reason string) {
	if transport == "" {
		transport = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	BusDroppedTotal.WithLabelValues(transport, reason).Inc()
}

// RecordEventPublished counts a relay attempt.
func RecordEventPublished(event string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	EventsPublishedTotal.WithLabelValues(event, outcome).Inc()
}
