// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"errors"
	"fmt"

	"github.com/ManuGH/wagate/internal/domain/session/model"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionNotReady    = errors.New("session not ready")
	ErrUnknownCommandKind = errors.New("unknown command kind")
	ErrConnectFailure     = errors.New("connect failure")
	ErrActorCrash         = errors.New("actor crashed")
	ErrInvalidSessionID   = errors.New("invalid session id")
	ErrShuttingDown       = errors.New("orchestrator shutting down")
	ErrIllegalTransition  = errors.New("illegal lifecycle transition")
	ErrBadPayload         = errors.New("bad command payload")
)

// NotReadyError reports the state a session was in when a command could not be routed.
type NotReadyError struct {
	SessionID string
	State     model.SessionState
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("session %s not ready (state=%s)", e.SessionID, e.State)
}

func (e *NotReadyError) Is(target error) bool {
	return target == ErrSessionNotReady
}

// StateOf extracts the session state from a not-ready error chain.
func StateOf(err error) (model.SessionState, bool) {
	var nre *NotReadyError
	if errors.As(err, &nre) {
		return nre.State, true
	}
	return "", false
}

// ErrorCode maps an error to the stable code stored in ErrorInfo and error events.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrActorCrash):
		return "actor_crash"
	case errors.Is(err, ErrConnectFailure):
		return "connect_failure"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrSessionNotReady):
		return "session_not_ready"
	case errors.Is(err, ErrUnknownCommandKind):
		return "unknown_command_kind"
	case errors.Is(err, ErrBadPayload):
		return "bad_payload"
	default:
		return "unknown"
	}
}
