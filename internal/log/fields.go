// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Field names shared by every wagate log line.
const (
	FieldService   = "service"
	FieldVersion   = "version"
	FieldComponent = "component"
	FieldEvent     = "event"

	FieldSessionID = "session_id"
	FieldJobID     = "job_id"
	FieldCommand   = "command"
	FieldTraceID   = "trace_id"
	FieldQueue     = "queue"
	FieldChannel   = "channel"

	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldAttempt  = "attempt"
	FieldDelay    = "delay"
)
