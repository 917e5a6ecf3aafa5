// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wagate_http_request_duration_seconds",
		Help:    "Ops API request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wagate_http_requests_in_flight",
		Help: "Ops API requests currently being served",
	})
)

// HTTPRequestStarted marks a request in flight and returns the func that completes it.
func HTTPRequestStarted() func(method, route string, status int, d time.Duration) {
	httpRequestsInFlight.Inc()
	return func(method, route string, status int, d time.Duration) {
		httpRequestsInFlight.Dec()
		if route == "" {
			route = "unmatched"
		}
		httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
	}
}
