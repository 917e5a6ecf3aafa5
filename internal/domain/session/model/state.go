// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

// SessionState is the orchestrator-owned lifecycle state of a session record.
type SessionState string

const (
	SessionIdle         SessionState = "IDLE"
	SessionStarting     SessionState = "STARTING"
	SessionConnected    SessionState = "CONNECTED"
	SessionReconnecting SessionState = "RECONNECTING"
	SessionStopping     SessionState = "STOPPING"
	SessionStopped      SessionState = "STOPPED"
	SessionFailed       SessionState = "FAILED"
)

// AllStates lists every state in declaration order (used for gauges and validation).
var AllStates = []SessionState{
	SessionIdle,
	SessionStarting,
	SessionConnected,
	SessionReconnecting,
	SessionStopping,
	SessionStopped,
	SessionFailed,
}

// IsTerminal returns true if no automatic transition leaves the state.
func (s SessionState) IsTerminal() bool {
	switch s {
	case SessionFailed, SessionStopped:
		return true
	}
	return false
}

// IsActive returns true while the session owns a live actor that is connecting or connected.
func (s SessionState) IsActive() bool {
	switch s {
	case SessionStarting, SessionConnected, SessionReconnecting:
		return true
	}
	return false
}

// Valid reports whether s is a known state.
func (s SessionState) Valid() bool {
	for _, st := range AllStates {
		if st == s {
			return true
		}
	}
	return false
}

// ErrorInfo is the last error recorded for a session.
type ErrorInfo struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// SessionInfo is a point-in-time snapshot of a session record.
type SessionInfo struct {
	SessionID         string       `json:"sessionId"`
	State             SessionState `json:"state"`
	ReconnectAttempts uint         `json:"reconnectAttempts"`
	LastError         *ErrorInfo   `json:"lastError,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}
