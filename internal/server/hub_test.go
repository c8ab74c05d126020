package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pawlink/pawlink-chat/pkg/protocol"
)

func newHubClient(userID string) *Client {
	return &Client{UserID: userID, Send: make(chan []byte, 16)}
}

func drain(t *testing.T, c *Client) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for {
		select {
		case data := <-c.Send:
			var env protocol.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatalf("bad frame: %v", err)
			}
			out = append(out, env)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

func TestHubRoomBroadcast(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	alice := newHubClient("user-1")
	casey := newHubClient("coord-1")
	other := newHubClient("user-2")
	hub.Register(alice)
	hub.Register(casey)
	hub.Register(other)

	hub.JoinRoom(alice, "chat-1")
	hub.JoinRoom(casey, "chat-1")
	hub.JoinRoom(other, "chat-9")

	hub.BroadcastRoom("chat-1", protocol.Envelope{Type: protocol.TypeNewMessage, ChatID: "chat-1"}, nil)

	if got := drain(t, alice); len(got) != 1 || got[0].Type != protocol.TypeNewMessage {
		t.Errorf("alice: unexpected frames %v", got)
	}
	if got := drain(t, casey); len(got) != 1 {
		t.Errorf("casey: expected 1 frame, got %d", len(got))
	}
	if got := drain(t, other); len(got) != 0 {
		t.Errorf("other room must not receive frames, got %v", got)
	}
}

func TestHubBroadcastExcludesSender(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	alice := newHubClient("user-1")
	casey := newHubClient("coord-1")
	hub.Register(alice)
	hub.Register(casey)
	hub.JoinRoom(alice, "chat-1")
	hub.JoinRoom(casey, "chat-1")

	hub.BroadcastRoom("chat-1", protocol.Envelope{Type: protocol.TypeTyping, ChatID: "chat-1", UserID: "user-1"}, alice)

	if got := drain(t, alice); len(got) != 0 {
		t.Errorf("sender must be excluded, got %v", got)
	}
	if got := drain(t, casey); len(got) != 1 || got[0].Type != protocol.TypeTyping {
		t.Errorf("counterpart should see typing, got %v", got)
	}
}

func TestHubUnregisterVacatesRooms(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	alice := newHubClient("user-1")
	casey := newHubClient("coord-1")
	hub.Register(alice)
	hub.Register(casey)
	hub.JoinRoom(alice, "chat-1")
	hub.JoinRoom(casey, "chat-1")

	hub.Unregister(alice)

	// The counterpart is told the user dropped.
	deadline := time.Now().Add(time.Second)
	var saw bool
	for time.Now().Before(deadline) && !saw {
		for _, env := range drain(t, casey) {
			if env.Type == protocol.TypeUserLeft && env.UserID == "user-1" {
				saw = true
			}
		}
	}
	if !saw {
		t.Error("expected user_left after unregister")
	}
	if hub.RoomClientCount("chat-1") != 1 {
		t.Errorf("expected 1 remaining room member, got %d", hub.RoomClientCount("chat-1"))
	}
}

func TestHubSlowConsumerDroppedFromAllRooms(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// stuck never reads its Send channel and has no buffer, so the first
	// broadcast evicts it. It sits in two rooms; the eviction must clear
	// both, or broadcasting to the second room would hit a closed channel.
	stuck := &Client{UserID: "user-1", Send: make(chan []byte)}
	casey := newHubClient("coord-1")
	hub.Register(stuck)
	hub.Register(casey)
	hub.JoinRoom(stuck, "chat-1")
	hub.JoinRoom(stuck, "chat-2")
	hub.JoinRoom(casey, "chat-2")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && hub.ClientCount() < 2 {
		time.Sleep(5 * time.Millisecond)
	}

	hub.BroadcastRoom("chat-1", protocol.Envelope{Type: protocol.TypeNewMessage, ChatID: "chat-1"}, nil)
	hub.BroadcastRoom("chat-2", protocol.Envelope{Type: protocol.TypeNewMessage, ChatID: "chat-2"}, nil)

	if got := drain(t, casey); len(got) != 1 || got[0].ChatID != "chat-2" {
		t.Errorf("counterpart should still receive, got %v", got)
	}
	if hub.RoomClientCount("chat-1") != 0 {
		t.Errorf("dropped client still in chat-1: %d members", hub.RoomClientCount("chat-1"))
	}
	if hub.RoomClientCount("chat-2") != 1 {
		t.Errorf("expected only the healthy member in chat-2, got %d", hub.RoomClientCount("chat-2"))
	}
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client after eviction, got %d", hub.ClientCount())
	}
	select {
	case _, open := <-stuck.Send:
		if open {
			t.Error("evicted client's channel should be closed")
		}
	default:
		t.Error("evicted client's channel should be closed")
	}
}

func TestHubSendToUser(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	alice := newHubClient("user-1")
	hub.Register(alice)

	// Registration lands asynchronously.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && hub.ClientCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	if !hub.SendToUser("user-1", protocol.Envelope{Type: protocol.TypeConnected}) {
		t.Fatal("send to connected user failed")
	}
	if hub.SendToUser("ghost", protocol.Envelope{Type: protocol.TypeConnected}) {
		t.Error("send to unknown user should fail")
	}
}
