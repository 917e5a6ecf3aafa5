// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

// EventKind is a domain event in the session lifecycle.
type EventKind int

const (
	EvUnknown EventKind = iota
	EvStartRequested
	EvConnected
	EvConnectionLost
	EvTerminalFailure
	EvStopRequested
	EvStopped
)

func (k EventKind) String() string {
	switch k {
	case EvStartRequested:
		return "start_requested"
	case EvConnected:
		return "connected"
	case EvConnectionLost:
		return "connection_lost"
	case EvTerminalFailure:
		return "terminal_failure"
	case EvStopRequested:
		return "stop_requested"
	case EvStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
