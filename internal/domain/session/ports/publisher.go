// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ports

import (
	"context"

	"github.com/ManuGH/wagate/internal/domain/session/model"
)

// EventPublisher relays session events to external subscribers.
// Publish must be safe for concurrent use and must not block indefinitely.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.Event) error
}
