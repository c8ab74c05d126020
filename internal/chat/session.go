package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pawlink/pawlink-chat/internal/api"
	"github.com/pawlink/pawlink-chat/pkg/logger"
	"github.com/pawlink/pawlink-chat/pkg/models"
)

// SessionState is the lifecycle of the active conversation.
type SessionState string

const (
	SessionIdle    SessionState = "idle"
	SessionLoading SessionState = "loading"
	SessionReady   SessionState = "ready"
)

// DefaultSettleDelay is how long the controller waits after a successful
// send before re-fetching authoritative history, giving the server time to
// assign the final id and timestamp.
const DefaultSettleDelay = 800 * time.Millisecond

// Realtime is the slice of adapter behavior the session controller uses.
type Realtime interface {
	JoinChat(chatID string) bool
	LeaveChat(chatID string) bool
	SendReadReceipt(chatID string) bool
}

// SessionConfig wires a session controller to its collaborators.
type SessionConfig struct {
	API         api.MessageAPI
	Realtime    Realtime // optional; nil when running on the poller alone
	UserID      string
	SettleDelay time.Duration

	// OnBadgeCleared fires as soon as a conversation is opened, before any
	// server confirmation, so the unread badge disappears immediately.
	OnBadgeCleared func(chatID string)
	// OnUpdate fires after every change to the local message list.
	OnUpdate func()
}

// Session owns the in-memory ordered message list for one active
// conversation. Messages arriving from history, the realtime adapter, and
// the poller are merged through a single id-keyed dedup rule, so
// double-delivery never duplicates an entry.
type Session struct {
	cfg SessionConfig
	log *logger.Logger

	mu       sync.Mutex
	state    SessionState
	chatID   string
	messages []models.Message
	ids      map[string]struct{}
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	return &Session{
		cfg:   cfg,
		log:   logger.WithContext("component", "chat_session"),
		state: SessionIdle,
		ids:   make(map[string]struct{}),
	}
}

// Open activates a conversation: clears local state, optimistically clears
// the unread badge, loads history and marks it read, and only then joins
// the realtime room so early events are neither lost nor duplicated
// against history. Switching conversations re-enters loading; a history
// response that arrives after another switch is discarded.
func (s *Session) Open(ctx context.Context, chatID string) error {
	s.mu.Lock()
	s.state = SessionLoading
	s.chatID = chatID
	s.messages = nil
	s.ids = make(map[string]struct{})
	s.mu.Unlock()

	if s.cfg.OnBadgeCleared != nil {
		s.cfg.OnBadgeCleared(chatID)
	}
	s.notify()

	history, err := s.cfg.API.FetchMessages(ctx, chatID, s.cfg.UserID)
	if err != nil {
		s.mu.Lock()
		if s.chatID == chatID {
			s.state = SessionReady
		}
		s.mu.Unlock()
		return fmt.Errorf("load history: %w", err)
	}

	s.mu.Lock()
	if s.chatID != chatID {
		// Conversation switched while the fetch was in flight.
		s.mu.Unlock()
		s.log.Debug("stale_history_discarded", "chat_id", chatID)
		return nil
	}
	for i := range history {
		if history[i].Status == "" {
			history[i].Status = models.StatusSent
		}
		s.ids[history[i].ID] = struct{}{}
	}
	s.messages = history
	s.state = SessionReady
	s.mu.Unlock()
	s.notify()

	if err := s.cfg.API.MarkRead(ctx, chatID, s.cfg.UserID); err != nil {
		s.log.Warn("mark_read_failed", "chat_id", chatID, "error", err.Error())
	}

	if s.cfg.Realtime != nil {
		s.cfg.Realtime.JoinChat(chatID)
	}
	return nil
}

// Close leaves the active conversation and returns the controller to idle.
func (s *Session) Close() {
	s.mu.Lock()
	chatID := s.chatID
	s.chatID = ""
	s.state = SessionIdle
	s.messages = nil
	s.ids = make(map[string]struct{})
	s.mu.Unlock()

	if chatID != "" && s.cfg.Realtime != nil {
		s.cfg.Realtime.LeaveChat(chatID)
	}
}

// Send appends an optimistic message with a client-generated temp id and
// status "sending", then calls the send collaborator. Success marks it
// "sent" and schedules a history re-fetch after the settle delay; failure
// marks it "failed" and keeps the entry for retry.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	if s.state != SessionReady || s.chatID == "" {
		s.mu.Unlock()
		return "", fmt.Errorf("no active conversation")
	}
	chatID := s.chatID
	tempID := uuid.NewString()
	msg := models.Message{
		ID:        tempID,
		TempID:    tempID,
		Sender:    models.SenderUser,
		SenderID:  s.cfg.UserID,
		Text:      text,
		Timestamp: time.Now(),
		Status:    models.StatusSending,
	}
	s.messages = append(s.messages, msg)
	s.ids[tempID] = struct{}{}
	s.mu.Unlock()
	s.notify()

	return tempID, s.deliver(ctx, chatID, tempID, text)
}

// Retry re-issues a failed send with the same temp id, transitioning
// failed -> sending -> sent|failed.
func (s *Session) Retry(ctx context.Context, tempID string) error {
	s.mu.Lock()
	chatID := s.chatID
	var text string
	found := false
	for i := range s.messages {
		if s.messages[i].TempID == tempID && s.messages[i].Status == models.StatusFailed {
			text = s.messages[i].Text
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("no failed message with temp id %s", tempID)
	}
	s.setStatus(tempID, models.StatusSending)
	return s.deliver(ctx, chatID, tempID, text)
}

func (s *Session) deliver(ctx context.Context, chatID, tempID, text string) error {
	if err := s.cfg.API.SendMessage(ctx, chatID, text, s.cfg.UserID); err != nil {
		s.log.Warn("send_failed", "chat_id", chatID, "temp_id", tempID, "error", err.Error())
		s.setStatus(tempID, models.StatusFailed)
		return err
	}
	s.setStatus(tempID, models.StatusSent)

	// Let the server settle, then replace the temp entry with the
	// authoritative id and timestamp.
	time.AfterFunc(s.cfg.SettleDelay, func() {
		s.reconcile(context.Background(), chatID)
	})
	return nil
}

// SendImage encodes an image data URL with the prefixed-text convention and
// sends it as a normal message, preserving wire compatibility with history
// fetched over REST.
func (s *Session) SendImage(ctx context.Context, dataURL string) (string, error) {
	return s.Send(ctx, models.EncodeImageMessage(dataURL))
}

// HandleNewMessage merges a realtime event into local state. Ids already
// present (history, a previous event, or a poller diff) are dropped. A read
// receipt is sent immediately because the conversation is open.
func (s *Session) HandleNewMessage(chatID string, msg models.Message) {
	if !s.merge(chatID, msg) {
		return
	}
	if s.cfg.Realtime != nil {
		s.cfg.Realtime.SendReadReceipt(chatID)
	}
}

// HandlePolled merges poller-discovered messages through the same dedup
// rule as realtime events.
func (s *Session) HandlePolled(msgs []models.Message) {
	s.mu.Lock()
	chatID := s.chatID
	s.mu.Unlock()
	for _, m := range msgs {
		s.merge(chatID, m)
	}
}

func (s *Session) merge(chatID string, msg models.Message) bool {
	s.mu.Lock()
	if s.chatID != chatID || s.state != SessionReady {
		s.mu.Unlock()
		return false
	}
	if _, dup := s.ids[msg.ID]; dup {
		s.mu.Unlock()
		return false
	}
	if msg.Status == "" {
		msg.Status = models.StatusSent
	}
	s.messages = append(s.messages, msg)
	s.ids[msg.ID] = struct{}{}
	s.mu.Unlock()
	s.notify()
	return true
}

// Delete removes the message locally before the collaborator call. A
// failed delete is reported but the entry is not restored; callers decide
// whether to re-fetch.
func (s *Session) Delete(ctx context.Context, messageID string) error {
	s.mu.Lock()
	chatID := s.chatID
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ID == messageID {
			delete(s.ids, m.ID)
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	s.mu.Unlock()
	s.notify()

	if err := s.cfg.API.DeleteMessage(ctx, chatID, messageID, s.cfg.UserID); err != nil {
		s.log.Warn("delete_failed", "chat_id", chatID, "message_id", messageID, "error", err.Error())
		return err
	}
	return nil
}

// reconcile replaces local state with authoritative history while keeping
// any still-pending or failed optimistic entries the server does not know
// about yet.
func (s *Session) reconcile(ctx context.Context, chatID string) {
	history, err := s.cfg.API.FetchMessages(ctx, chatID, s.cfg.UserID)
	if err != nil {
		s.log.Warn("reconcile_fetch_failed", "chat_id", chatID, "error", err.Error())
		return
	}

	s.mu.Lock()
	if s.chatID != chatID {
		s.mu.Unlock()
		return
	}
	ids := make(map[string]struct{}, len(history))
	for i := range history {
		if history[i].Status == "" {
			history[i].Status = models.StatusSent
		}
		ids[history[i].ID] = struct{}{}
	}
	var pending []models.Message
	for _, m := range s.messages {
		if m.TempID != "" && m.Status != models.StatusSent {
			if _, onServer := ids[m.ID]; !onServer {
				pending = append(pending, m)
				ids[m.ID] = struct{}{}
			}
		}
	}
	s.messages = append(history, pending...)
	s.ids = ids
	s.mu.Unlock()
	s.notify()
}

func (s *Session) setStatus(tempID string, status models.MessageStatus) {
	s.mu.Lock()
	for i := range s.messages {
		if s.messages[i].TempID == tempID {
			s.messages[i].Status = status
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) notify() {
	if s.cfg.OnUpdate != nil {
		s.cfg.OnUpdate()
	}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) ActiveChat() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// Messages returns a copy of the current ordered message list.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}
