package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pawlink/pawlink-chat/internal/transport"
	"github.com/pawlink/pawlink-chat/pkg/models"
	"github.com/pawlink/pawlink-chat/pkg/protocol"
)

// fakeSender implements transport.Sender, recording outbound envelopes
type fakeSender struct {
	mu         sync.Mutex
	connected  bool
	sent       []protocol.Envelope
	SendShould bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{SendShould: true}
}

func (f *fakeSender) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeSender) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeSender) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		return transport.StateConnected
	}
	return transport.StateDisconnected
}

func (f *fakeSender) LastMessage() (protocol.Envelope, bool) {
	return protocol.Envelope{}, false
}

func (f *fakeSender) Send(v interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.SendShould {
		return false
	}
	// Round-trip through JSON the way the real socket would.
	raw, err := json.Marshal(v)
	if err != nil {
		return false
	}
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false
	}
	f.sent = append(f.sent, env)
	return true
}

func (f *fakeSender) sentOfType(t protocol.EnvelopeType) []protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Envelope
	for _, e := range f.sent {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func TestJoinChatIsIdempotent(t *testing.T) {
	sender := newFakeSender()
	a := NewWSAdapterWithSocket(sender, "user-1", Handlers{})

	if !a.JoinChat("chat-1") {
		t.Fatal("first join should succeed")
	}
	// Pending membership (no joined ack yet) already suppresses a resend.
	if !a.JoinChat("chat-1") {
		t.Fatal("repeat join should report success")
	}
	if got := sender.sentOfType(protocol.TypeJoin); len(got) != 1 {
		t.Fatalf("expected exactly 1 join frame, got %d", len(got))
	}

	// Confirmed membership suppresses it too.
	a.HandleEnvelope(protocol.Envelope{Type: protocol.TypeJoined, ChatID: "chat-1"})
	a.JoinChat("chat-1")
	if got := sender.sentOfType(protocol.TypeJoin); len(got) != 1 {
		t.Fatalf("expected no join after confirmation, got %d frames", len(got))
	}
}

func TestJoinChatFailedSendLeavesNoMembership(t *testing.T) {
	sender := newFakeSender()
	sender.SendShould = false
	a := NewWSAdapterWithSocket(sender, "user-1", Handlers{})

	if a.JoinChat("chat-1") {
		t.Fatal("join should fail when the frame cannot be sent")
	}
	// A failed join must not poison the membership map: the next attempt
	// still sends.
	sender.SendShould = true
	if !a.JoinChat("chat-1") {
		t.Fatal("join should succeed after transport recovers")
	}
	if got := sender.sentOfType(protocol.TypeJoin); len(got) != 1 {
		t.Fatalf("expected 1 successful join frame, got %d", len(got))
	}
}

func TestCloseLeavesAllRooms(t *testing.T) {
	sender := newFakeSender()
	a := NewWSAdapterWithSocket(sender, "user-1", Handlers{})
	a.JoinChat("chat-1")
	a.JoinChat("chat-2")

	a.Close()
	if got := sender.sentOfType(protocol.TypeLeave); len(got) != 2 {
		t.Fatalf("expected a leave frame per room, got %d", len(got))
	}
	if got := len(a.Memberships()); got != 0 {
		t.Errorf("expected no memberships after close, got %d", got)
	}
	if sender.State() != transport.StateDisconnected {
		t.Error("expected socket disconnected after close")
	}
}

func TestHandleEnvelopeNewMessageClassifiesSender(t *testing.T) {
	sender := newFakeSender()
	var got []models.Message
	a := NewWSAdapterWithSocket(sender, "user-1", Handlers{
		OnNewMessage: func(chatID string, m models.Message) { got = append(got, m) },
	})

	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC).Format(time.RFC3339)
	a.HandleEnvelope(protocol.Envelope{
		Type:   protocol.TypeNewMessage,
		ChatID: "chat-1",
		Message: &protocol.WireMessage{
			ID: "m1", SenderID: "user-1", Text: "mine", Timestamp: ts,
		},
	})
	a.HandleEnvelope(protocol.Envelope{
		Type:   protocol.TypeNewMessage,
		ChatID: "chat-1",
		Message: &protocol.WireMessage{
			ID: "m2", SenderID: "coord-9", Text: "theirs", Timestamp: ts,
		},
	})

	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Sender != models.SenderUser {
		t.Errorf("own sender_id should classify as user, got %s", got[0].Sender)
	}
	if got[1].Sender != models.SenderCoordinator {
		t.Errorf("foreign sender_id should classify as coordinator, got %s", got[1].Sender)
	}
	if !got[0].Timestamp.Equal(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("timestamp not parsed: %v", got[0].Timestamp)
	}
}

func TestHandleEnvelopeMalformedTimestampFallsBack(t *testing.T) {
	sender := newFakeSender()
	var got models.Message
	a := NewWSAdapterWithSocket(sender, "user-1", Handlers{
		OnNewMessage: func(chatID string, m models.Message) { got = m },
	})

	a.HandleEnvelope(protocol.Envelope{
		Type:    protocol.TypeNewMessage,
		ChatID:  "chat-1",
		Message: &protocol.WireMessage{ID: "m1", SenderID: "coord-1", Text: "hi", Timestamp: "not-a-time"},
	})
	if got.Timestamp.IsZero() {
		t.Error("expected a fallback timestamp for malformed wire time")
	}
}

func TestHandleEnvelopeUnknownTypeIgnored(t *testing.T) {
	sender := newFakeSender()
	a := NewWSAdapterWithSocket(sender, "user-1", Handlers{})
	// Must not panic or emit anything.
	a.HandleEnvelope(protocol.Envelope{Type: "surprise"})
}

func TestMessagesReadEvent(t *testing.T) {
	sender := newFakeSender()
	var user string
	var count int
	a := NewWSAdapterWithSocket(sender, "user-1", Handlers{
		OnMessagesRead: func(u string, c int) { user, count = u, c },
	})

	a.HandleEnvelope(protocol.Envelope{Type: protocol.TypeMessagesRead, UserID: "coord-1", Count: 4})
	if user != "coord-1" || count != 4 {
		t.Errorf("unexpected read event: user=%s count=%d", user, count)
	}
}

// fakeSubscriber implements api.Subscriber, counting side-channel calls
type fakeSubscriber struct {
	mu         sync.Mutex
	subs       map[string]int
	unsubs     map[string]int
	ShouldFail bool
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{subs: make(map[string]int), unsubs: make(map[string]int)}
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, chatID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ShouldFail {
		return fmt.Errorf("mock subscribe error")
	}
	f.subs[chatID]++
	return nil
}

func (f *fakeSubscriber) Unsubscribe(ctx context.Context, chatID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ShouldFail {
		return fmt.Errorf("mock unsubscribe error")
	}
	f.unsubs[chatID]++
	return nil
}

func TestSSESubscribeIdempotent(t *testing.T) {
	sub := newFakeSubscriber()
	a := NewSSEAdapter(transport.Config{URL: "http://127.0.0.1:0/events", UserID: "user-1"}, sub, Handlers{})

	if err := a.Subscribe(context.Background(), "chat-1"); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := a.Subscribe(context.Background(), "chat-1"); err != nil {
		t.Fatalf("repeat subscribe failed: %v", err)
	}
	if sub.subs["chat-1"] != 1 {
		t.Errorf("expected 1 side-channel subscribe, got %d", sub.subs["chat-1"])
	}
}

func TestSSESubscribeFailureLeavesNoMembership(t *testing.T) {
	sub := newFakeSubscriber()
	sub.ShouldFail = true
	a := NewSSEAdapter(transport.Config{URL: "http://127.0.0.1:0/events", UserID: "user-1"}, sub, Handlers{})

	if err := a.Subscribe(context.Background(), "chat-1"); err == nil {
		t.Fatal("expected subscribe to fail")
	}
	if got := len(a.Memberships()); got != 0 {
		t.Errorf("failed subscribe must not record membership, got %d", got)
	}

	// Recovery retries the HTTP call.
	sub.ShouldFail = false
	if err := a.Subscribe(context.Background(), "chat-1"); err != nil {
		t.Fatalf("subscribe after recovery failed: %v", err)
	}
	if sub.subs["chat-1"] != 1 {
		t.Errorf("expected 1 successful subscribe, got %d", sub.subs["chat-1"])
	}
}

func TestSSECloseUnsubscribesAll(t *testing.T) {
	sub := newFakeSubscriber()
	a := NewSSEAdapter(transport.Config{URL: "http://127.0.0.1:0/events", UserID: "user-1"}, sub, Handlers{})
	if err := a.Subscribe(context.Background(), "chat-1"); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := a.Subscribe(context.Background(), "chat-2"); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	a.Close(context.Background())
	if sub.unsubs["chat-1"] != 1 || sub.unsubs["chat-2"] != 1 {
		t.Errorf("expected an unsubscribe per room, got %v", sub.unsubs)
	}
	if got := len(a.Memberships()); got != 0 {
		t.Errorf("expected no memberships after close, got %d", got)
	}
}
