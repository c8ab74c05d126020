package transport

import (
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pawlink/pawlink-chat/pkg/logger"
	"github.com/pawlink/pawlink-chat/pkg/metrics"
	"github.com/pawlink/pawlink-chat/pkg/protocol"
)

// WSSocket is the bidirectional transport. It dials the chat endpoint with
// the user id and auth token as query parameters, keeps the connection
// alive with ping frames, and reconnects with a fixed delay on unexpected
// closure, up to MaxReconnectAttempts.
type WSSocket struct {
	cfg Config
	cbs Callbacks
	log *logger.Logger

	// writeMu serializes frame writes: gorilla/websocket allows only one
	// concurrent writer, and Send, the heartbeat ticker, and the close
	// frame all write.
	writeMu sync.Mutex

	mu             sync.Mutex
	conn           *websocket.Conn
	state          State
	manualClose    bool
	attempts       int
	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}
	lastMessage    *protocol.Envelope
	generation     int
}

func NewWSSocket(cfg Config, cbs Callbacks) *WSSocket {
	cfg.defaults()
	return &WSSocket{
		cfg:   cfg,
		cbs:   cbs,
		log:   logger.WithContext("component", "ws_socket"),
		state: StateDisconnected,
	}
}

func (s *WSSocket) buildURL() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if s.cfg.Token != "" {
		q.Set("token", s.cfg.Token)
	}
	if s.cfg.UserID != "" {
		q.Set("user_id", s.cfg.UserID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect opens the connection. Already connected is a no-op; a stale
// handle from a previous attempt is closed first.
func (s *WSSocket) Connect() error {
	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.manualClose = false
	s.setStateLocked(StateConnecting)
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	wsURL, err := s.buildURL()
	if err != nil {
		s.mu.Lock()
		s.setStateLocked(StateError)
		s.mu.Unlock()
		return err
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		s.log.Warn("connect_failed", "error", err.Error())
		s.mu.Lock()
		s.setStateLocked(StateError)
		s.scheduleReconnectLocked()
		s.mu.Unlock()
		if s.cbs.OnError != nil {
			s.cbs.OnError(err)
		}
		return err
	}

	s.mu.Lock()
	if s.manualClose || gen != s.generation {
		// Disconnect raced the dial; drop the fresh handle.
		s.mu.Unlock()
		conn.Close()
		return nil
	}
	s.conn = conn
	s.attempts = 0
	s.setStateLocked(StateConnected)
	stop := make(chan struct{})
	s.heartbeatStop = stop
	s.mu.Unlock()

	s.log.Info("connected", "url", s.cfg.URL)
	if s.cbs.OnConnect != nil {
		s.cbs.OnConnect()
	}

	go s.heartbeatLoop(conn, stop)
	go s.readLoop(conn)
	return nil
}

// Disconnect closes the connection and suppresses automatic reconnection.
// Pending reconnect and heartbeat timers are cancelled as one cleanup step.
func (s *WSSocket) Disconnect() {
	s.mu.Lock()
	s.manualClose = true
	s.generation++
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.stopHeartbeatLocked()
	conn := s.conn
	s.conn = nil
	s.setStateLocked(StateDisconnected)
	s.mu.Unlock()

	if conn != nil {
		s.writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		conn.Close()
	}
	s.log.Info("disconnected_manually")
}

func (s *WSSocket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastMessage returns the most recent non-heartbeat envelope received.
func (s *WSSocket) LastMessage() (protocol.Envelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastMessage == nil {
		return protocol.Envelope{}, false
	}
	return *s.lastMessage, true
}

// Send transmits v as a JSON text frame. Returns false when the socket is
// not connected or the write fails; it never panics.
func (s *WSSocket) Send(v interface{}) bool {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected || conn == nil {
		s.log.Warn("send_skipped_not_connected")
		return false
	}

	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("send_marshal_failed", "error", err.Error())
		return false
	}
	s.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		s.log.Warn("send_failed", "error", err.Error())
		metrics.IncrementSendFailures()
		return false
	}
	return true
}

// ReconnectAttempts reports how many reconnects have been scheduled since
// the last successful open.
func (s *WSSocket) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *WSSocket) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleClose(conn, err)
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Warn("frame_parse_failed", "error", err.Error())
			metrics.IncrementDroppedFrames()
			continue
		}

		if env.Type == protocol.TypePong {
			continue
		}

		metrics.IncrementMessagesReceived()
		s.mu.Lock()
		stored := env
		s.lastMessage = &stored
		s.mu.Unlock()

		if s.cbs.OnMessage != nil {
			s.cbs.OnMessage(env)
		}
	}
}

func (s *WSSocket) handleClose(conn *websocket.Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		// A newer connection replaced this one; nothing to clean up.
		s.mu.Unlock()
		return
	}
	manual := s.manualClose
	s.stopHeartbeatLocked()
	s.conn = nil
	if manual {
		s.mu.Unlock()
		return
	}
	s.log.Warn("connection_closed", "error", err.Error())
	s.setStateLocked(StateDisconnected)
	s.scheduleReconnectLocked()
	s.mu.Unlock()

	if s.cbs.OnDisconnect != nil {
		s.cbs.OnDisconnect()
	}
}

// scheduleReconnectLocked arms the fixed-delay reconnect timer if attempts
// remain. Callers hold s.mu.
func (s *WSSocket) scheduleReconnectLocked() {
	if s.manualClose || s.attempts >= s.cfg.MaxReconnectAttempts {
		return
	}
	s.attempts++
	attempt := s.attempts
	metrics.IncrementReconnectAttempts()
	s.log.Info("reconnect_scheduled", "attempt", attempt, "delay", s.cfg.ReconnectInterval.String())
	s.reconnectTimer = time.AfterFunc(s.cfg.ReconnectInterval, func() {
		s.Connect()
	})
}

func (s *WSSocket) heartbeatLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	ping, _ := json.Marshal(protocol.Envelope{Type: protocol.TypePing})
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, ping)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *WSSocket) stopHeartbeatLocked() {
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
		s.heartbeatStop = nil
	}
}

func (s *WSSocket) setStateLocked(state State) {
	if s.state == state {
		return
	}
	s.state = state
	if s.cbs.OnStateChange != nil {
		go s.cbs.OnStateChange(state)
	}
}
