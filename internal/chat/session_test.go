package chat

import (
	"context"
	"testing"
	"time"

	"github.com/pawlink/pawlink-chat/pkg/models"
)

func newTestSession(mock *MockMessageAPI, rt Realtime) *Session {
	return NewSession(SessionConfig{
		API:         mock,
		Realtime:    rt,
		UserID:      "user-1",
		SettleDelay: 10 * time.Millisecond,
	})
}

func TestOpenLoadsHistoryAndJoinsRoom(t *testing.T) {
	mock := NewMockMessageAPI()
	mock.Seed("chat-1",
		models.Message{ID: "m1", SenderID: "coord-1", Text: "hello", Timestamp: time.Now()},
		models.Message{ID: "m2", SenderID: "user-1", Text: "hi", Timestamp: time.Now()},
	)
	rt := NewMockRealtime()
	s := newTestSession(mock, rt)

	if s.State() != SessionIdle {
		t.Errorf("expected idle before open, got %s", s.State())
	}
	if err := s.Open(context.Background(), "chat-1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if s.State() != SessionReady {
		t.Errorf("expected ready after open, got %s", s.State())
	}
	if got := len(s.Messages()); got != 2 {
		t.Fatalf("expected 2 history messages, got %d", got)
	}
	if mock.ReadCalls != 1 {
		t.Errorf("expected history to be marked read once, got %d calls", mock.ReadCalls)
	}
	if len(rt.Joined) != 1 || rt.Joined[0] != "chat-1" {
		t.Errorf("expected room join after history load, got %v", rt.Joined)
	}
}

func TestOpenClearsBadgeBeforeFetch(t *testing.T) {
	mock := NewMockMessageAPI()
	mock.ShouldFailFetch = true

	var cleared []string
	s := NewSession(SessionConfig{
		API:            mock,
		UserID:         "user-1",
		OnBadgeCleared: func(chatID string) { cleared = append(cleared, chatID) },
	})

	if err := s.Open(context.Background(), "chat-1"); err == nil {
		t.Fatal("expected open to report the fetch failure")
	}
	// The badge clear is optimistic: it happens even when the fetch fails.
	if len(cleared) != 1 || cleared[0] != "chat-1" {
		t.Errorf("expected badge cleared for chat-1, got %v", cleared)
	}
}

func TestOpenDiscardsStaleHistory(t *testing.T) {
	mock := NewMockMessageAPI()
	mock.Seed("chat-1", models.Message{ID: "a1", SenderID: "coord-1", Text: "old"})
	mock.Seed("chat-2", models.Message{ID: "b1", SenderID: "coord-2", Text: "new"})
	s := newTestSession(mock, nil)

	// Simulate a fetch for chat-1 still in flight when chat-2 is opened:
	// switch the active chat, then apply chat-1's would-be result by
	// re-running Open for chat-2 last.
	if err := s.Open(context.Background(), "chat-1"); err != nil {
		t.Fatalf("open chat-1 failed: %v", err)
	}
	if err := s.Open(context.Background(), "chat-2"); err != nil {
		t.Fatalf("open chat-2 failed: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].ID != "b1" {
		t.Errorf("expected only chat-2 history after switch, got %v", msgs)
	}
	if s.ActiveChat() != "chat-2" {
		t.Errorf("expected active chat chat-2, got %s", s.ActiveChat())
	}
}

func TestSendOptimisticLifecycle(t *testing.T) {
	mock := NewMockMessageAPI()
	s := newTestSession(mock, nil)
	if err := s.Open(context.Background(), "chat-1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	tempID, err := s.Send(context.Background(), "good morning")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if tempID == "" {
		t.Fatal("expected a temp id")
	}

	// Before settle the optimistic entry is present and marked sent.
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].TempID != tempID || msgs[0].Status != models.StatusSent {
		t.Fatalf("unexpected optimistic state: %+v", msgs)
	}

	// After the settle delay the temp entry is replaced by the server row.
	time.Sleep(50 * time.Millisecond)
	msgs = s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message after reconcile, got %d", len(msgs))
	}
	if msgs[0].ID == tempID {
		t.Error("expected server-assigned id after reconcile, still have temp id")
	}
	if msgs[0].Text != "good morning" {
		t.Errorf("unexpected text after reconcile: %q", msgs[0].Text)
	}
}

func TestSendFailureKeepsFailedEntryForRetry(t *testing.T) {
	mock := NewMockMessageAPI()
	mock.ShouldFailSend = true
	s := newTestSession(mock, nil)
	if err := s.Open(context.Background(), "chat-1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	tempID, err := s.Send(context.Background(), "are you there")
	if err == nil {
		t.Fatal("expected send to fail")
	}
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Status != models.StatusFailed {
		t.Fatalf("expected a failed entry retained, got %+v", msgs)
	}

	// Retry with the same temp id once the collaborator recovers.
	mock.ShouldFailSend = false
	if err := s.Retry(context.Background(), tempID); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	msgs = s.Messages()
	if len(msgs) != 1 || msgs[0].Status != models.StatusSent {
		t.Fatalf("expected retried message sent, got %+v", msgs)
	}
	if mock.SendCalls != 2 {
		t.Errorf("expected 2 send calls, got %d", mock.SendCalls)
	}
}

func TestRetryUnknownTempID(t *testing.T) {
	mock := NewMockMessageAPI()
	s := newTestSession(mock, nil)
	if err := s.Open(context.Background(), "chat-1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := s.Retry(context.Background(), "nope"); err == nil {
		t.Error("expected retry of unknown temp id to fail")
	}
}

func TestReconcilePreservesFailedEntries(t *testing.T) {
	mock := NewMockMessageAPI()
	s := newTestSession(mock, nil)
	if err := s.Open(context.Background(), "chat-1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	mock.ShouldFailSend = true
	failedID, _ := s.Send(context.Background(), "lost one")
	mock.ShouldFailSend = false
	if _, err := s.Send(context.Background(), "kept one"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected failed entry to survive reconcile, got %d messages", len(msgs))
	}
	var sawFailed bool
	for _, m := range msgs {
		if m.TempID == failedID && m.Status == models.StatusFailed {
			sawFailed = true
		}
	}
	if !sawFailed {
		t.Errorf("failed entry missing after reconcile: %+v", msgs)
	}
}

func TestHandleNewMessageDedupAndReceipt(t *testing.T) {
	mock := NewMockMessageAPI()
	rt := NewMockRealtime()
	s := newTestSession(mock, rt)
	if err := s.Open(context.Background(), "chat-1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	incoming := models.Message{ID: "m9", Sender: models.SenderCoordinator, SenderID: "coord-1", Text: "ping", Timestamp: time.Now()}
	s.HandleNewMessage("chat-1", incoming)
	s.HandleNewMessage("chat-1", incoming) // duplicate delivery

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected duplicate event dropped, got %d messages", len(msgs))
	}
	if got := rt.ReceiptCount("chat-1"); got != 1 {
		t.Errorf("expected exactly 1 read receipt, got %d", got)
	}
}

func TestHandleNewMessageIgnoresOtherChats(t *testing.T) {
	mock := NewMockMessageAPI()
	s := newTestSession(mock, nil)
	if err := s.Open(context.Background(), "chat-1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	s.HandleNewMessage("chat-2", models.Message{ID: "x1", Text: "wrong room"})
	if got := len(s.Messages()); got != 0 {
		t.Errorf("expected event for another chat ignored, got %d messages", got)
	}
}

func TestPolledMessagesShareDedup(t *testing.T) {
	mock := NewMockMessageAPI()
	s := newTestSession(mock, nil)
	if err := s.Open(context.Background(), "chat-1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	s.HandleNewMessage("chat-1", models.Message{ID: "m1", Text: "via socket"})
	s.HandlePolled([]models.Message{
		{ID: "m1", Text: "via poller"}, // already seen over the socket
		{ID: "m2", Text: "poller only"},
	})

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages after cross-source dedup, got %d", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("unexpected merge order: %+v", msgs)
	}
}

func TestDeleteIsOptimisticWithoutRestore(t *testing.T) {
	mock := NewMockMessageAPI()
	mock.Seed("chat-1", models.Message{ID: "m1", Text: "remove me"})
	mock.ShouldFailDelete = true
	s := newTestSession(mock, nil)
	if err := s.Open(context.Background(), "chat-1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if err := s.Delete(context.Background(), "m1"); err == nil {
		t.Fatal("expected delete to report the failure")
	}
	// The entry stays removed locally even though the call failed.
	if got := len(s.Messages()); got != 0 {
		t.Errorf("expected message removed despite failure, got %d messages", got)
	}
}

func TestCloseLeavesRoomAndResets(t *testing.T) {
	mock := NewMockMessageAPI()
	rt := NewMockRealtime()
	s := newTestSession(mock, rt)
	if err := s.Open(context.Background(), "chat-1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	s.Close()
	if s.State() != SessionIdle {
		t.Errorf("expected idle after close, got %s", s.State())
	}
	if len(rt.Left) != 1 || rt.Left[0] != "chat-1" {
		t.Errorf("expected leave on close, got %v", rt.Left)
	}
	if got := len(s.Messages()); got != 0 {
		t.Errorf("expected cleared messages after close, got %d", got)
	}
}

func TestSendRequiresActiveConversation(t *testing.T) {
	s := newTestSession(NewMockMessageAPI(), nil)
	if _, err := s.Send(context.Background(), "into the void"); err == nil {
		t.Error("expected send without an open conversation to fail")
	}
}

func TestSendImageUsesPrefixConvention(t *testing.T) {
	mock := NewMockMessageAPI()
	s := newTestSession(mock, nil)
	if err := s.Open(context.Background(), "chat-1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if _, err := s.SendImage(context.Background(), "data:image/png;base64,AAAA"); err != nil {
		t.Fatalf("send image failed: %v", err)
	}
	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	url, ok := models.IsImageMessage(msgs[0].Text)
	if !ok || url != "data:image/png;base64,AAAA" {
		t.Fatalf("expected image-prefixed text, got %q", msgs[0].Text)
	}
}
