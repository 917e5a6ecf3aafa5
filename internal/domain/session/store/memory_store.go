// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/ManuGH/wagate/internal/domain/session/model"
)

// MemoryStore keeps snapshots in process memory. Values are copied on the way in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]model.SessionInfo
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]model.SessionInfo)}
}

func (m *MemoryStore) PutSession(_ context.Context, info model.SessionInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[info.SessionID] = cloneInfo(info)
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*model.SessionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneInfo(info)
	return &out, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) ListSessions(_ context.Context) ([]model.SessionInfo, error) {
	m.mu.RLock()
	out := make([]model.SessionInfo, 0, len(m.sessions))
	for _, info := range m.sessions {
		out = append(out, cloneInfo(info))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

func cloneInfo(in model.SessionInfo) model.SessionInfo {
	if in.LastError != nil {
		e := *in.LastError
		in.LastError = &e
	}
	return in
}
