package thinkgear

import (
	"errors"
	"fmt"
)

// State is the connection lifecycle of a Client:
//
//	Disconnected -> Connecting -> Connected -> Disconnected
//	                           -> Failed    -> Disconnected
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a published state transition. Reason is set for Failed and,
// when known, for Disconnected.
type Status struct {
	State  State
	Reason string
}

// Text renders the status the way the monitor UI shows it.
func (s Status) Text() string {
	switch s.State {
	case Connecting:
		return "Connecting to TGC..."
	case Connected:
		return "Connected to Headset"
	case Failed:
		return "Connection Failed: " + s.Reason
	default:
		return "Disconnected"
	}
}

// ErrAlreadyActive is returned by Connect while a connection attempt or an
// established connection is in progress.
var ErrAlreadyActive = errors.New("thinkgear: connection already active")

// ConnectionError reports a failure to reach the connector or to send it
// the handshake.
type ConnectionError struct {
	Op   string // dial or handshake
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
