package talkline

import "time"

// Config controls how the SDK connects.
type Config struct {
	URL    string // websocket endpoint, e.g. "ws://localhost:4000/ws"
	Token  string // bearer token attached during the handshake
	UserID string // local user id announced via register

	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration

	// AutoReconnect re-dials after an unexpected disconnect. The delay
	// starts at ReconnectInterval and doubles up to MaxReconnectDelay.
	// MaxReconnectTries of 0 means retry forever.
	AutoReconnect     bool
	ReconnectInterval time.Duration
	MaxReconnectDelay time.Duration
	MaxReconnectTries int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReconnectInterval: 2 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
	}
}
