// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "encoding/json"

// CommandKind is the job name carried by the durable queue.
type CommandKind string

const (
	CmdStartSession  CommandKind = "START_SESSION"
	CmdStopSession   CommandKind = "STOP_SESSION"
	CmdSendMessage   CommandKind = "SEND_MESSAGE"
	CmdSendMedia     CommandKind = "SEND_MEDIA"
	CmdSendReaction  CommandKind = "SEND_REACTION"
	CmdSendPoll      CommandKind = "SEND_POLL"
	CmdEditMessage   CommandKind = "EDIT_MESSAGE"
	CmdDeleteMessage CommandKind = "DELETE_MESSAGE"
)

// Command is a unit of work addressed to one session.
// Payload is opaque to the orchestrator and interpreted by the protocol client.
type Command struct {
	Kind      CommandKind     `json:"kind"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// CommandResult is what a protocol client returns for a routed command.
type CommandResult struct {
	MessageID string `json:"messageId,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// SessionTarget is the envelope shared by every job payload.
type SessionTarget struct {
	SessionID string `json:"sessionId"`
}

// SendMessagePayload is the data of a SEND_MESSAGE job.
type SendMessagePayload struct {
	SessionID string          `json:"sessionId"`
	JID       string          `json:"jid"`
	Content   json.RawMessage `json:"content"`
	Options   json.RawMessage `json:"options,omitempty"`
}
