package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pawlink/pawlink-chat/pkg/protocol"
)

// sseServer streams queued envelopes as SSE data frames to each client.
type sseServer struct {
	outbound chan protocol.Envelope

	mu       sync.Mutex
	clients  int
	dropNext bool
}

func newSSEServer(t *testing.T) (*sseServer, *httptest.Server) {
	ss := &sseServer{outbound: make(chan protocol.Envelope, 16)}
	srv := httptest.NewServer(http.HandlerFunc(ss.handle))
	t.Cleanup(srv.Close)
	return ss, srv
}

func (ss *sseServer) handle(w http.ResponseWriter, r *http.Request) {
	ss.mu.Lock()
	ss.clients++
	drop := ss.dropNext
	ss.dropNext = false
	ss.mu.Unlock()

	if drop {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher := w.(http.Flusher)
	flusher.Flush()

	for {
		select {
		case env := <-ss.outbound:
			data, _ := json.Marshal(env)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (ss *sseServer) clientCount() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.clients
}

func TestSSEConnectDeliversEvents(t *testing.T) {
	ss, srv := newSSEServer(t)

	got := make(chan protocol.Envelope, 4)
	s := NewSSESocket(Config{URL: srv.URL + "/events", UserID: "user-1"}, Callbacks{
		OnMessage: func(env protocol.Envelope) { got <- env },
	})
	defer s.Disconnect()

	if err := s.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if s.State() != StateConnected {
		t.Fatalf("expected connected, got %s", s.State())
	}

	ss.outbound <- protocol.Envelope{Type: protocol.TypeNewMessage, ChatID: "chat-1",
		Message: &protocol.WireMessage{ID: "m1", SenderID: "coord-1", Text: "hello"}}

	select {
	case env := <-got:
		if env.Type != protocol.TypeNewMessage || env.ChatID != "chat-1" {
			t.Errorf("unexpected envelope: %+v", env)
		}
		if env.Message == nil || env.Message.ID != "m1" {
			t.Errorf("payload not decoded: %+v", env.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pushed event")
	}
}

func TestSSEHeartbeatSwallowed(t *testing.T) {
	ss, srv := newSSEServer(t)

	got := make(chan protocol.Envelope, 4)
	s := NewSSESocket(Config{URL: srv.URL + "/events", UserID: "user-1"}, Callbacks{
		OnMessage: func(env protocol.Envelope) { got <- env },
	})
	defer s.Disconnect()

	if err := s.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	ss.outbound <- protocol.Envelope{Type: protocol.TypeHeartbeat}
	ss.outbound <- protocol.Envelope{Type: protocol.TypeChatUpdated, ChatID: "chat-1"}

	select {
	case env := <-got:
		if env.Type != protocol.TypeChatUpdated {
			t.Errorf("expected heartbeat swallowed, surfaced %s", env.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event after heartbeat")
	}
}

func TestSSEStreamEndTriggersReconnect(t *testing.T) {
	ss, srv := newSSEServer(t)

	connects := make(chan struct{}, 4)
	s := NewSSESocket(Config{
		URL:               srv.URL + "/events",
		UserID:            "user-1",
		ReconnectInterval: 20 * time.Millisecond,
	}, Callbacks{
		OnConnect: func() { connects <- struct{}{} },
	})
	defer s.Disconnect()

	if err := s.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	<-connects

	srv.CloseClientConnections()

	select {
	case <-connects:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for automatic reconnect")
	}
	if ss.clientCount() < 2 {
		t.Errorf("expected a second stream request, saw %d", ss.clientCount())
	}
	if !waitFor(t, time.Second, func() bool { return s.ReconnectAttempts() == 0 }) {
		t.Errorf("expected attempt counter reset after reopen, got %d", s.ReconnectAttempts())
	}
}

func TestSSEManualDisconnectSuppressesReconnect(t *testing.T) {
	ss, srv := newSSEServer(t)
	s := NewSSESocket(Config{
		URL:               srv.URL + "/events",
		UserID:            "user-1",
		ReconnectInterval: 10 * time.Millisecond,
	}, Callbacks{})

	if err := s.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	s.Disconnect()

	time.Sleep(100 * time.Millisecond)
	if s.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %s", s.State())
	}
	if ss.clientCount() != 1 {
		t.Errorf("manual disconnect must not redial, saw %d requests", ss.clientCount())
	}
}

func TestSSEReconnectBoundOnRejectedStream(t *testing.T) {
	// Server that always rejects keeps every connect attempt failing.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	s := NewSSESocket(Config{
		URL:                  srv.URL + "/events",
		UserID:               "user-1",
		ReconnectInterval:    10 * time.Millisecond,
		MaxReconnectAttempts: 3,
	}, Callbacks{})
	defer s.Disconnect()

	if err := s.Connect(); err == nil {
		t.Fatal("expected connect to fail against rejecting server")
	}
	if !waitFor(t, 2*time.Second, func() bool { return s.ReconnectAttempts() == 3 }) {
		t.Fatalf("expected 3 reconnect attempts, got %d", s.ReconnectAttempts())
	}
	time.Sleep(100 * time.Millisecond)
	if got := s.ReconnectAttempts(); got != 3 {
		t.Errorf("reconnects kept going past the bound: %d", got)
	}
	if s.State() != StateError {
		t.Errorf("expected error state after exhaustion, got %s", s.State())
	}
}
