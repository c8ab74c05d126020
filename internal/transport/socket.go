// Package transport provides the realtime connection layer for the chat
// client: a bidirectional WebSocket socket and a push-only SSE socket that
// share one connection state machine and reconnect policy.
package transport

import (
	"time"

	"github.com/pawlink/pawlink-chat/pkg/protocol"
)

// State is the connection state of a socket. Transitions drive the
// reconnection policy; one socket instance owns its state exclusively.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

const (
	DefaultReconnectInterval = 3 * time.Second
	DefaultMaxReconnects     = 5
	DefaultHeartbeatInterval = 30 * time.Second
)

// Config holds connection parameters shared by both socket variants.
// Token is only used by the WebSocket variant.
type Config struct {
	URL                  string
	UserID               string
	Token                string
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnects
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
}

// Callbacks receive socket lifecycle and message events. All fields are
// optional. Callbacks are invoked from the socket's read goroutine, so they
// must not block.
type Callbacks struct {
	OnMessage     func(protocol.Envelope)
	OnConnect     func()
	OnDisconnect  func()
	OnError       func(error)
	OnStateChange func(State)
}

// Socket is the push side shared by both variants. The WebSocket variant
// additionally implements Sender.
type Socket interface {
	Connect() error
	Disconnect()
	State() State
	LastMessage() (protocol.Envelope, bool)
}

// Sender is implemented by sockets that can transmit client frames.
type Sender interface {
	Socket
	// Send serializes v as JSON and transmits it iff the socket is
	// connected. A failed send is reported by the return value only.
	Send(v interface{}) bool
}
