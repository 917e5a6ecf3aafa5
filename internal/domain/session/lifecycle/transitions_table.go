// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"fmt"

	"github.com/ManuGH/wagate/internal/domain/session/model"
)

// Transition is a single allowed edge in the lifecycle state machine.
type Transition struct {
	From  model.SessionState
	To    model.SessionState
	Event EventKind
}

var transitionsTable = []Transition{
	// Start path (restart is allowed from terminal states)
	{From: model.SessionIdle, To: model.SessionStarting, Event: EvStartRequested},
	{From: model.SessionFailed, To: model.SessionStarting, Event: EvStartRequested},
	{From: model.SessionStopped, To: model.SessionStarting, Event: EvStartRequested},
	{From: model.SessionStarting, To: model.SessionConnected, Event: EvConnected},
	{From: model.SessionReconnecting, To: model.SessionConnected, Event: EvConnected},

	// Reconnection
	{From: model.SessionStarting, To: model.SessionReconnecting, Event: EvConnectionLost},
	{From: model.SessionConnected, To: model.SessionReconnecting, Event: EvConnectionLost},
	{From: model.SessionReconnecting, To: model.SessionReconnecting, Event: EvConnectionLost},

	// Failure escalation
	{From: model.SessionStarting, To: model.SessionFailed, Event: EvTerminalFailure},
	{From: model.SessionConnected, To: model.SessionFailed, Event: EvTerminalFailure},
	{From: model.SessionReconnecting, To: model.SessionFailed, Event: EvTerminalFailure},

	// Stop path
	{From: model.SessionIdle, To: model.SessionStopping, Event: EvStopRequested},
	{From: model.SessionStarting, To: model.SessionStopping, Event: EvStopRequested},
	{From: model.SessionConnected, To: model.SessionStopping, Event: EvStopRequested},
	{From: model.SessionReconnecting, To: model.SessionStopping, Event: EvStopRequested},
	{From: model.SessionFailed, To: model.SessionStopping, Event: EvStopRequested},
	{From: model.SessionStopping, To: model.SessionStopped, Event: EvStopped},
}

// TransitionFor returns the allowed transition for a given state+event.
func TransitionFor(from model.SessionState, ev EventKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}

// Dispatch resolves the target state for ev, or returns ErrIllegalTransition.
func Dispatch(from model.SessionState, ev EventKind) (model.SessionState, error) {
	tr, ok := TransitionFor(from, ev)
	if !ok {
		return from, fmt.Errorf("%w: state=%s event=%s", ErrIllegalTransition, from, ev)
	}
	return tr.To, nil
}
