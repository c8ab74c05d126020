package chat

import (
	"context"
	"sync"

	"github.com/pawlink/pawlink-chat/internal/api"
	"github.com/pawlink/pawlink-chat/internal/transport"
	"github.com/pawlink/pawlink-chat/pkg/logger"
	"github.com/pawlink/pawlink-chat/pkg/protocol"
)

// SSEAdapter is the push-only counterpart of WSAdapter. Room membership is
// confirmed out-of-band over HTTP: Subscribe must succeed before events for
// that chat are expected on the stream.
type SSEAdapter struct {
	socket     transport.Socket
	subscriber api.Subscriber
	handlers   Handlers
	selfID     string
	log        *logger.Logger

	mu    sync.Mutex
	rooms map[string]struct{}
}

func NewSSEAdapter(cfg transport.Config, subscriber api.Subscriber, h Handlers) *SSEAdapter {
	a := &SSEAdapter{
		subscriber: subscriber,
		handlers:   h,
		selfID:     cfg.UserID,
		log:        logger.WithContext("component", "sse_adapter"),
		rooms:      make(map[string]struct{}),
	}
	a.socket = transport.NewSSESocket(cfg, transport.Callbacks{
		OnMessage: a.handleEnvelope,
	})
	return a
}

func (a *SSEAdapter) Connect() error { return a.socket.Connect() }

func (a *SSEAdapter) Status() transport.State { return a.socket.State() }

func (a *SSEAdapter) IsConnected() bool { return a.socket.State() == transport.StateConnected }

// Subscribe confirms interest in a chat over the side channel. Idempotent:
// an existing membership returns success without a second HTTP call.
func (a *SSEAdapter) Subscribe(ctx context.Context, chatID string) error {
	a.mu.Lock()
	if _, ok := a.rooms[chatID]; ok {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	if err := a.subscriber.Subscribe(ctx, chatID, a.selfID); err != nil {
		return err
	}
	a.mu.Lock()
	a.rooms[chatID] = struct{}{}
	a.mu.Unlock()
	a.log.Debug("subscribed", "chat_id", chatID)
	return nil
}

func (a *SSEAdapter) Unsubscribe(ctx context.Context, chatID string) error {
	if err := a.subscriber.Unsubscribe(ctx, chatID, a.selfID); err != nil {
		return err
	}
	a.mu.Lock()
	delete(a.rooms, chatID)
	a.mu.Unlock()
	a.log.Debug("unsubscribed", "chat_id", chatID)
	return nil
}

func (a *SSEAdapter) Memberships() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.rooms))
	for id := range a.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Close unsubscribes every remaining membership before tearing the stream
// down.
func (a *SSEAdapter) Close(ctx context.Context) {
	for _, chatID := range a.Memberships() {
		if err := a.Unsubscribe(ctx, chatID); err != nil {
			a.log.Warn("unsubscribe_failed_on_close", "chat_id", chatID, "error", err.Error())
		}
	}
	a.socket.Disconnect()
}

// HandleEnvelope classifies one inbound push frame.
func (a *SSEAdapter) HandleEnvelope(env protocol.Envelope) {
	a.handleEnvelope(env)
}

func (a *SSEAdapter) handleEnvelope(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeNewMessage:
		if env.Message == nil || env.ChatID == "" {
			a.log.Warn("new_message_missing_fields", "chat_id", env.ChatID)
			return
		}
		if a.handlers.OnNewMessage != nil {
			a.handlers.OnNewMessage(env.ChatID, wireToModel(*env.Message, a.selfID))
		}

	case protocol.TypeMessagesRead:
		if a.handlers.OnMessagesRead != nil {
			a.handlers.OnMessagesRead(env.UserID, env.Count)
		}

	case protocol.TypeChatUpdated:
		if env.ChatID != "" && a.handlers.OnChatUpdated != nil {
			a.handlers.OnChatUpdated(env.ChatID)
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
