// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/wagate/internal/domain/session/model"
)

func TestTransitionsTableHasNoDuplicates(t *testing.T) {
	seen := make(map[string]struct{}, len(transitionsTable))
	for _, tr := range transitionsTable {
		key := fmt.Sprintf("%s|%d", tr.From, tr.Event)
		_, dup := seen[key]
		require.False(t, dup, "duplicate transition %s", key)
		seen[key] = struct{}{}
		require.True(t, tr.From.Valid())
		require.True(t, tr.To.Valid())
	}
}

func TestDispatchAllowedEdges(t *testing.T) {
	cases := []struct {
		from model.SessionState
		ev   EventKind
		want model.SessionState
	}{
		{model.SessionIdle, EvStartRequested, model.SessionStarting},
		{model.SessionFailed, EvStartRequested, model.SessionStarting},
		{model.SessionStarting, EvConnected, model.SessionConnected},
		{model.SessionConnected, EvConnectionLost, model.SessionReconnecting},
		{model.SessionReconnecting, EvConnectionLost, model.SessionReconnecting},
		{model.SessionReconnecting, EvTerminalFailure, model.SessionFailed},
		{model.SessionFailed, EvStopRequested, model.SessionStopping},
		{model.SessionStopping, EvStopped, model.SessionStopped},
	}
	for _, tc := range cases {
		got, err := Dispatch(tc.from, tc.ev)
		require.NoError(t, err, "%s + %s", tc.from, tc.ev)
		assert.Equal(t, tc.want, got)
	}
}

func TestDispatchRejectsIllegalEdges(t *testing.T) {
	cases := []struct {
		from model.SessionState
		ev   EventKind
	}{
		{model.SessionConnected, EvStartRequested},
		{model.SessionStopping, EvConnected},
		{model.SessionStopped, EvConnectionLost},
		{model.SessionFailed, EvConnected},
		{model.SessionIdle, EvStopped},
	}
	for _, tc := range cases {
		got, err := Dispatch(tc.from, tc.ev)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrIllegalTransition))
		assert.Equal(t, tc.from, got)
	}
}

func TestNotReadyErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", &NotReadyError{SessionID: "s1", State: model.SessionStarting})
	assert.ErrorIs(t, err, ErrSessionNotReady)
	assert.NotErrorIs(t, err, ErrSessionNotFound)

	st, ok := StateOf(err)
	require.True(t, ok)
	assert.Equal(t, model.SessionStarting, st)
	assert.Equal(t, "session_not_ready", ErrorCode(err))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, "connect_failure", ErrorCode(fmt.Errorf("dial: %w", ErrConnectFailure)))
	assert.Equal(t, "actor_crash", ErrorCode(ErrActorCrash))
	assert.Equal(t, "unknown", ErrorCode(errors.New("boom")))
}
