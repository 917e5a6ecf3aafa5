// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/wagate/internal/domain/session/model"
)

func openStores(t *testing.T) map[string]StateStore {
	t.Helper()
	sq, err := NewSqliteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]StateStore{
		"memory": NewMemoryStore(),
		"sqlite": sq,
	}
}

func sampleInfo(id string) model.SessionInfo {
	now := time.UnixMilli(time.Now().UnixMilli()).UTC()
	return model.SessionInfo{
		SessionID:         id,
		State:             model.SessionFailed,
		ReconnectAttempts: 5,
		LastError: &model.ErrorInfo{
			Code:    "connect_failure",
			Message: "dial tcp: refused",
			At:      now,
		},
		CreatedAt: now.Add(-time.Minute),
		UpdatedAt: now,
	}
}

func TestStateStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			want := sampleInfo("s1")
			require.NoError(t, s.PutSession(ctx, want))

			got, err := s.GetSession(ctx, "s1")
			require.NoError(t, err)
			if diff := cmp.Diff(want, *got); diff != "" {
				t.Fatalf("session mismatch (-want +got):\n%s", diff)
			}

			_, err = s.GetSession(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStateStoreUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			info := sampleInfo("b")
			require.NoError(t, s.PutSession(ctx, info))
			require.NoError(t, s.PutSession(ctx, sampleInfo("a")))

			info.State = model.SessionConnected
			info.ReconnectAttempts = 0
			info.LastError = nil
			require.NoError(t, s.PutSession(ctx, info))

			list, err := s.ListSessions(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "a", list[0].SessionID)
			assert.Equal(t, model.SessionConnected, list[1].State)
			assert.Nil(t, list[1].LastError)

			require.NoError(t, s.DeleteSession(ctx, "a"))
			require.NoError(t, s.DeleteSession(ctx, "never-existed"))
			list, err = s.ListSessions(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.PutSession(ctx, sampleInfo("s1")))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	got.LastError.Code = "mutated"

	again, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "connect_failure", again.LastError.Code)
}

func TestSqliteStoreReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	s1, err := NewSqliteStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.PutSession(ctx, sampleInfo("persist")))
	require.NoError(t, s1.Close())

	s2, err := NewSqliteStore(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	got, err := s2.GetSession(ctx, "persist")
	require.NoError(t, err)
	assert.Equal(t, model.SessionFailed, got.State)
	require.NoError(t, s2.Verify(ctx))
}

func TestOpenStateStore(t *testing.T) {
	s, err := OpenStateStore("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = OpenStateStore("sqlite", "")
	assert.Error(t, err)

	_, err = OpenStateStore("bolt", "/tmp/x")
	assert.ErrorContains(t, err, "unknown store backend")
}
