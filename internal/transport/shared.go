package transport

import (
	"sync"

	"github.com/pawlink/pawlink-chat/pkg/logger"
)

// Shared hands out a single physical socket to multiple conversation views.
// The socket is created and connected on the first Acquire and disconnected
// when the last holder releases it; it is never an ambient singleton.
type Shared struct {
	newSocket func() Socket

	mu     sync.Mutex
	socket Socket
	refs   int
	log    *logger.Logger
}

func NewShared(newSocket func() Socket) *Shared {
	return &Shared{
		newSocket: newSocket,
		log:       logger.WithContext("component", "shared_socket"),
	}
}

// Acquire returns the session socket, creating and connecting it on first
// use. Every Acquire must be paired with a Release.
func (sh *Shared) Acquire() Socket {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if sh.socket == nil {
		sh.socket = sh.newSocket()
		sh.socket.Connect()
		sh.log.Debug("socket_created")
	}
	sh.refs++
	sh.log.Debug("socket_acquired", "refs", sh.refs)
	return sh.socket
}

// Release drops one reference. The underlying socket is disconnected and
// discarded when no holders remain.
func (sh *Shared) Release() {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if sh.refs == 0 {
		return
	}
	sh.refs--
	sh.log.Debug("socket_released", "refs", sh.refs)
	if sh.refs == 0 && sh.socket != nil {
		sh.socket.Disconnect()
		sh.socket = nil
		sh.log.Debug("socket_disposed")
	}
}

// Refs reports the current holder count.
func (sh *Shared) Refs() int {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.refs
}
