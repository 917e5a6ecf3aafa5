// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package store persists session snapshots.
package store

import (
	"errors"
	"fmt"

	"github.com/ManuGH/wagate/internal/domain/session/ports"
)

var ErrNotFound = errors.New("store: session not found")

// StateStore is the persistence contract used by the orchestrator.
type StateStore = ports.StateStore

// OpenStateStore creates a StateStore for the configured backend.
func OpenStateStore(backend, path string) (StateStore, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if path == "" {
			return nil, fmt.Errorf("sqlite backend requires a path")
		}
		return NewSqliteStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
