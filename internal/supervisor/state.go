package supervisor

import (
	"errors"
	"fmt"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StateActive
	StateClosing
	StateReconnecting
	StateReLoggingIn
	StateStopped
	// StateForcedOffline is terminal: the server ended the session and no
	// reconnect happens until Reauthorize succeeds.
	StateForcedOffline
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateReconnecting:
		return "reconnecting"
	case StateReLoggingIn:
		return "relogging in"
	case StateStopped:
		return "stopped"
	case StateForcedOffline:
		return "forced offline"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// running reports whether a connection loop owns the state.
func (s State) running() bool {
	switch s {
	case StateConnecting, StateAuthenticating, StateActive, StateClosing, StateReconnecting, StateReLoggingIn:
		return true
	default:
		return false
	}
}

var (
	ErrNoSession        = errors.New("no valid session")
	ErrForcedOffline    = errors.New("session forced offline by server")
	ErrStopped          = errors.New("connection loop stopped")
	ErrStartupTimeout   = errors.New("connection not active within startup window")
	ErrNotForcedOffline = errors.New("reauthorize is only valid after a forced offline")
)
