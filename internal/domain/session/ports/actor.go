// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ports

import (
	"context"

	"github.com/ManuGH/wagate/internal/domain/session/model"
)

// Actor is the per-session handle owned by the orchestrator.
type Actor interface {
	SessionID() string
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SendCommand(ctx context.Context, cmd model.Command) (model.CommandResult, error)
	// Events yields the session's events in emission order. It is closed after Disconnect.
	Events() <-chan model.Event
}

// ActorFactory creates an actor for a session id.
type ActorFactory interface {
	NewActor(sessionID string) (Actor, error)
}

// ActorFactoryFunc adapts a function to ActorFactory.
type ActorFactoryFunc func(sessionID string) (Actor, error)

func (f ActorFactoryFunc) NewActor(sessionID string) (Actor, error) { return f(sessionID) }
