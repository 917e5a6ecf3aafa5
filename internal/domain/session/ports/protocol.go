// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ports

import (
	"context"

	"github.com/ManuGH/wagate/internal/domain/session/model"
)

// ClientEvent is a raw lifecycle or message event reported by a protocol client.
type ClientEvent struct {
	Type model.EventType
	Data any
}

// ProtocolClient is the capability surface of the messaging-network client.
// Implementations own handshake, encryption and media encoding; the orchestrator only
// drives connect/disconnect and forwards commands.
type ProtocolClient interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SendCommand(ctx context.Context, cmd model.Command) (model.CommandResult, error)
	// Subscribe registers fn for client events and returns an unsubscribe func.
	Subscribe(fn func(ClientEvent)) (unsubscribe func())
}

// ClientFactory builds a protocol client for one session id.
type ClientFactory func(sessionID string) (ProtocolClient, error)
