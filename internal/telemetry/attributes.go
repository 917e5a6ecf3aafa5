// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by wagate spans.
const (
	SessionIDKey    = "session.id"
	SessionStateKey = "session.state"

	JobIDKey       = "job.id"
	JobTypeKey     = "job.type"
	JobStatusKey   = "job.status"
	JobAttemptKey  = "job.attempt"
	JobDurationKey = "job.duration_ms"

	ErrorTypeKey = "error.type"
)

// JobAttributes describes a job at span start.
func JobAttributes(jobID, jobType, sessionID string, attempt int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(JobIDKey, jobID),
		attribute.String(JobTypeKey, jobType),
		attribute.Int(JobAttemptKey, attempt),
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	return attrs
}

// JobOutcomeAttributes describes how a job ended.
func JobOutcomeAttributes(status string, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobStatusKey, status),
		attribute.Int64(JobDurationKey, durationMS),
	}
}

// ErrorAttributes classifies a failed span.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ErrorTypeKey, errorType),
	}
}
