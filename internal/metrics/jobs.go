// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagate_jobs_processed_total",
		Help: "Queue jobs processed by command and result",
	}, []string{"command", "result"}) // result=completed|retry|failed

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wagate_job_duration_seconds",
		Help:    "Time spent handling one queue job",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"command"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wagate_queue_jobs",
		Help: "Jobs in the durable queue by list",
	}, []string{"list"})
)

// RecordJob counts one job outcome and observes its duration.
func RecordJob(command, result string, d time.Duration) {
	if command == "" {
		command = "unknown"
	}
	jobsProcessedTotal.WithLabelValues(command, result).Inc()
	jobDuration.WithLabelValues(command).Observe(d.Seconds())
}

// SetQueueDepth publishes the size of one queue list.
func SetQueueDepth(list string, n int64) {
	queueDepth.WithLabelValues(list).Set(float64(n))
}
