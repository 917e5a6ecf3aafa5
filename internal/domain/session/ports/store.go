// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ports

import (
	"context"

	"github.com/ManuGH/wagate/internal/domain/session/model"
)

// StateStore persists session snapshots so a restarted process can restore them.
type StateStore interface {
	PutSession(ctx context.Context, info model.SessionInfo) error
	GetSession(ctx context.Context, id string) (*model.SessionInfo, error)
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context) ([]model.SessionInfo, error)
	Close() error
}
