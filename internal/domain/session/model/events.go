// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

// EventType names a session event as published to subscribers.
type EventType string

const (
	EventQR            EventType = "qr"
	EventConnected     EventType = "connected"
	EventDisconnected  EventType = "disconnected"
	EventMessage       EventType = "message"
	EventMessageUpdate EventType = "message.update"
	EventError         EventType = "error"
)

// Event is a single lifecycle or message notification originating from a session.
type Event struct {
	Type      EventType `json:"event"`
	SessionID string    `json:"sessionId"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DisconnectInfo is the payload of a disconnected event.
// LoggedOut marks a disconnect the network will not let the session recover from.
type DisconnectInfo struct {
	Reason    string `json:"reason,omitempty"`
	LoggedOut bool   `json:"loggedOut,omitempty"`
}

// QRInfo is the payload of a qr event.
type QRInfo struct {
	Code string `json:"code"`
}

// ErrorEventData is the payload of the terminal error event.
type ErrorEventData struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Attempts uint   `json:"attempts"`
}
