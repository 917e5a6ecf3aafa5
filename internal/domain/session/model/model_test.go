// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSafeSessionID(t *testing.T) {
	cases := map[string]bool{
		"s1":                     true,
		"session-test-01":        true,
		"tenant_a.primary":       true,
		"":                       false,
		"../etc":                 false,
		"with space":             false,
		"colon:sep":              false,
		strings.Repeat("a", 129): false,
	}
	for id, want := range cases {
		assert.Equal(t, want, IsSafeSessionID(id), "id=%q", id)
	}
}

func TestSessionStatePredicates(t *testing.T) {
	assert.True(t, SessionFailed.IsTerminal())
	assert.True(t, SessionStopped.IsTerminal())
	assert.False(t, SessionReconnecting.IsTerminal())

	assert.True(t, SessionStarting.IsActive())
	assert.True(t, SessionReconnecting.IsActive())
	assert.False(t, SessionStopping.IsActive())

	for _, s := range AllStates {
		assert.True(t, s.Valid(), "state %s", s)
	}
	assert.False(t, SessionState("BOGUS").Valid())
}
