package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pawlink/pawlink-chat/pkg/logger"
	"github.com/pawlink/pawlink-chat/pkg/metrics"
	"github.com/pawlink/pawlink-chat/pkg/protocol"
)

// SSESocket is the push-only transport for environments where WebSocket is
// unavailable. It shares the WSSocket state machine and reconnect policy;
// there is no Send and no client heartbeat (the server emits heartbeat
// frames, which are swallowed here).
type SSESocket struct {
	cfg    Config
	cbs    Callbacks
	log    *logger.Logger
	client *http.Client

	mu             sync.Mutex
	cancel         context.CancelFunc
	state          State
	manualClose    bool
	attempts       int
	reconnectTimer *time.Timer
	lastMessage    *protocol.Envelope
	generation     int
}

func NewSSESocket(cfg Config, cbs Callbacks) *SSESocket {
	cfg.defaults()
	return &SSESocket{
		cfg:    cfg,
		cbs:    cbs,
		log:    logger.WithContext("component", "sse_socket"),
		client: &http.Client{},
		state:  StateDisconnected,
	}
}

func (s *SSESocket) buildURL() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if s.cfg.UserID != "" {
		q.Set("user_id", s.cfg.UserID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *SSESocket) Connect() error {
	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.manualClose = false
	s.setStateLocked(StateConnecting)
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	sseURL, err := s.buildURL()
	if err != nil {
		s.mu.Lock()
		s.setStateLocked(StateError)
		s.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sseURL, nil)
	if err != nil {
		cancel()
		s.mu.Lock()
		s.setStateLocked(StateError)
		s.mu.Unlock()
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		cancel()
		s.failConnect(err)
		return err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		err := fmt.Errorf("sse connect: unexpected status %d", resp.StatusCode)
		s.failConnect(err)
		return err
	}

	s.mu.Lock()
	if s.manualClose || gen != s.generation {
		s.mu.Unlock()
		cancel()
		resp.Body.Close()
		return nil
	}
	s.cancel = cancel
	s.attempts = 0
	s.setStateLocked(StateConnected)
	s.mu.Unlock()

	s.log.Info("connected", "url", s.cfg.URL)
	if s.cbs.OnConnect != nil {
		s.cbs.OnConnect()
	}

	go s.readLoop(gen, resp)
	return nil
}

func (s *SSESocket) failConnect(err error) {
	s.log.Warn("connect_failed", "error", err.Error())
	s.mu.Lock()
	s.setStateLocked(StateError)
	s.scheduleReconnectLocked()
	s.mu.Unlock()
	if s.cbs.OnError != nil {
		s.cbs.OnError(err)
	}
}

func (s *SSESocket) Disconnect() {
	s.mu.Lock()
	s.manualClose = true
	s.generation++
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.setStateLocked(StateDisconnected)
	s.mu.Unlock()
	s.log.Info("disconnected_manually")
}

func (s *SSESocket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SSESocket) LastMessage() (protocol.Envelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastMessage == nil {
		return protocol.Envelope{}, false
	}
	return *s.lastMessage, true
}

func (s *SSESocket) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *SSESocket) readLoop(gen int, resp *http.Response) {
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var env protocol.Envelope
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &env); err != nil {
			s.log.Warn("frame_parse_failed", "error", err.Error())
			metrics.IncrementDroppedFrames()
			continue
		}

		if env.Type == protocol.TypeHeartbeat {
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

	// Stream ended: either manual disconnect cancelled the request or the
	// server went away. Channel errors follow the same reconnect path as a
	// WebSocket close.
	s.mu.Lock()
	if gen != s.generation || s.manualClose {
		s.mu.Unlock()
		return
	}
	s.cancel = nil
	s.setStateLocked(StateDisconnected)
	s.scheduleReconnectLocked()
	s.mu.Unlock()

	if s.cbs.OnDisconnect != nil {
		s.cbs.OnDisconnect()
	}
}

func (s *SSESocket) scheduleReconnectLocked() {
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

func (s *SSESocket) setStateLocked(state State) {
	if s.state == state {
		return
	}
	s.state = state
	if s.cbs.OnStateChange != nil {
		go s.cbs.OnStateChange(state)
	}
}
