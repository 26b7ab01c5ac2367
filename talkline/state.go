package talkline

// ConnectionState represents the current state of the live channel.
type ConnectionState int

const (
	// StateDisconnected means the client is not connected.
	StateDisconnected ConnectionState = iota

	// StateConnecting means the client is establishing a connection.
	StateConnecting

	// StateConnected means the client is registered and ready.
	StateConnected

	// StateReconnecting means the client lost the channel and is
	// retrying with backoff.
	StateReconnecting

	// StateClosed means the client has been explicitly closed.
	StateClosed
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StateEvent represents a state change on the live channel.
type StateEvent struct {
	OldState ConnectionState
	NewState ConnectionState
	Error    error // optional error that caused the change
}
