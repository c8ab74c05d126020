package chat

import (
	"sync"
	"time"

	"github.com/pawlink/pawlink-chat/internal/transport"
	"github.com/pawlink/pawlink-chat/pkg/logger"
	"github.com/pawlink/pawlink-chat/pkg/metrics"
	"github.com/pawlink/pawlink-chat/pkg/models"
	"github.com/pawlink/pawlink-chat/pkg/protocol"
)

// WSAdapter layers room semantics and domain events on top of the
// bidirectional socket. Joins are optimistic: the join frame is sent
// immediately and membership is confirmed by the asynchronous joined ack.
type WSAdapter struct {
	socket   transport.Sender
	handlers Handlers
	selfID   string
	log      *logger.Logger

	mu sync.Mutex
	// chat id -> confirmed; a pending entry (false) already suppresses
	// duplicate join sends.
	rooms map[string]bool
}

// NewWSAdapter builds the adapter and its underlying WebSocket socket from
// cfg. The caller drives Connect/Disconnect through the adapter.
func NewWSAdapter(cfg transport.Config, h Handlers) *WSAdapter {
	a := &WSAdapter{
		handlers: h,
		selfID:   cfg.UserID,
		log:      logger.WithContext("component", "ws_adapter"),
		rooms:    make(map[string]bool),
	}
	a.socket = transport.NewWSSocket(cfg, transport.Callbacks{
		OnMessage:    a.handleEnvelope,
		OnDisconnect: a.voidMemberships,
	})
	return a
}

// voidMemberships drops every membership entry. Room membership does not
// survive a disconnect; callers re-join explicitly after reconnecting,
// typically from the connected greeting.
func (a *WSAdapter) voidMemberships() {
	a.mu.Lock()
	n := len(a.rooms)
	a.rooms = make(map[string]bool)
	a.mu.Unlock()
	if n > 0 {
		a.log.Debug("memberships_voided", "count", n)
	}
}

// NewWSAdapterWithSocket wires the adapter to an existing socket. The
// socket must deliver inbound envelopes to HandleEnvelope.
func NewWSAdapterWithSocket(socket transport.Sender, selfID string, h Handlers) *WSAdapter {
	return &WSAdapter{
		socket:   socket,
		handlers: h,
		selfID:   selfID,
		log:      logger.WithContext("component", "ws_adapter"),
		rooms:    make(map[string]bool),
	}
}

func (a *WSAdapter) Connect() error { return a.socket.Connect() }

func (a *WSAdapter) Status() transport.State { return a.socket.State() }

func (a *WSAdapter) IsConnected() bool { return a.socket.State() == transport.StateConnected }

// JoinChat requests membership in a chat room. Calling it for a room that
// is already joined (or has a join in flight) is a no-op returning success.
func (a *WSAdapter) JoinChat(chatID string) bool {
	a.mu.Lock()
	if _, ok := a.rooms[chatID]; ok {
		a.mu.Unlock()
		a.log.Debug("join_skipped_already_member", "chat_id", chatID)
		return true
	}
	a.mu.Unlock()

	ok := a.socket.Send(protocol.Envelope{Type: protocol.TypeJoin, ChatID: chatID})
	if ok {
		a.mu.Lock()
		if _, exists := a.rooms[chatID]; !exists {
			a.rooms[chatID] = false
		}
		a.mu.Unlock()
	}
	return ok
}

// LeaveChat requests leaving a chat room and removes the membership entry
// as soon as the frame is accepted for transmission.
func (a *WSAdapter) LeaveChat(chatID string) bool {
	ok := a.socket.Send(protocol.Envelope{Type: protocol.TypeLeave, ChatID: chatID})
	if ok {
		a.mu.Lock()
		delete(a.rooms, chatID)
		a.mu.Unlock()
	}
	return ok
}

// SendMessage transmits a chat message. Delivery confirmation arrives
// asynchronously; callers reconcile via the session controller.
func (a *WSAdapter) SendMessage(chatID, text string) bool {
	ok := a.socket.Send(protocol.Envelope{Type: protocol.TypeMessage, ChatID: chatID, Text: text})
	if ok {
		metrics.IncrementMessagesSent()
	}
	return ok
}

func (a *WSAdapter) SendReadReceipt(chatID string) bool {
	return a.socket.Send(protocol.Envelope{Type: protocol.TypeRead, ChatID: chatID})
}

func (a *WSAdapter) SendTyping(chatID string) bool {
	return a.socket.Send(protocol.Envelope{Type: protocol.TypeTyping, ChatID: chatID})
}

// Memberships returns the chat ids currently joined or pending.
func (a *WSAdapter) Memberships() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.rooms))
	for id := range a.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Close leaves every remaining room and then disconnects the socket. The
// leave pass is mandatory cleanup, not best-effort.
func (a *WSAdapter) Close() {
	for _, chatID := range a.Memberships() {
		a.LeaveChat(chatID)
	}
	a.socket.Disconnect()
}

// HandleEnvelope classifies one inbound envelope into a domain event.
// Unrecognized types are logged and ignored.
func (a *WSAdapter) HandleEnvelope(env protocol.Envelope) {
	a.handleEnvelope(env)
}

func (a *WSAdapter) handleEnvelope(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeNewMessage:
		if env.Message == nil || env.ChatID == "" {
			a.log.Warn("new_message_missing_fields", "chat_id", env.ChatID)
			return
		}
		if a.handlers.OnNewMessage != nil {
			a.handlers.OnNewMessage(env.ChatID, a.toModel(*env.Message))
		}

	case protocol.TypeMessagesRead:
		if a.handlers.OnMessagesRead != nil {
			a.handlers.OnMessagesRead(env.UserID, env.Count)
		}

	case protocol.TypeUserJoined:
		if env.UserID != "" && a.handlers.OnUserJoined != nil {
			a.handlers.OnUserJoined(env.UserID)
		}

	case protocol.TypeUserLeft:
		if env.UserID != "" && a.handlers.OnUserLeft != nil {
			a.handlers.OnUserLeft(env.UserID)
		}

	case protocol.TypeTyping:
		if env.UserID != "" && a.handlers.OnTyping != nil {
			a.handlers.OnTyping(env.UserID)
		}

	case protocol.TypeMessageSent:
		a.log.Debug("message_acknowledged", "message_id", env.MessageID)

	case protocol.TypeJoined:
		if env.ChatID != "" {
			a.mu.Lock()
			a.rooms[env.ChatID] = true
			a.mu.Unlock()
			a.log.Debug("room_joined", "chat_id", env.ChatID)
		}

	case protocol.TypeLeft:
		if env.ChatID != "" {
			a.mu.Lock()
			delete(a.rooms, env.ChatID)
			a.mu.Unlock()
			a.log.Debug("room_left", "chat_id", env.ChatID)
		}

	case protocol.TypeConnected:
		a.log.Info("server_greeting", "user_id", env.UserID)
		if a.handlers.OnConnected != nil {
			a.handlers.OnConnected(env.UserID)
		}

	case protocol.TypeError:
		a.log.Warn("server_error", "detail", env.Detail)
		if a.handlers.OnError != nil {
			a.handlers.OnError(env.Detail)
		}

	default:
		a.log.Debug("unknown_envelope_type", "type", string(env.Type))
	}
}

func (a *WSAdapter) toModel(w protocol.WireMessage) models.Message {
	return wireToModel(w, a.selfID)
}

// wireToModel converts a wire message, classifying the sender role by
// comparing sender_id against the local user.
func wireToModel(w protocol.WireMessage, selfID string) models.Message {
	role := models.SenderCoordinator
	if w.SenderID == selfID {
		role = models.SenderUser
	}
	ts, err := time.Parse(time.RFC3339, w.Timestamp)
	if err != nil {
		ts = time.Now()
	}
	return models.Message{
		ID:        w.ID,
		Sender:    role,
		SenderID:  w.SenderID,
		Text:      w.Text,
		Timestamp: ts,
		IsRead:    w.IsRead,
		Status:    models.StatusSent,
	}
}
