// Package chat implements the client-side chat core: the protocol adapters
// that translate wire envelopes into domain events, the per-conversation
// session controller, and the passive polling fallback.
package chat

import "github.com/pawlink/pawlink-chat/pkg/models"

// Handlers are the typed domain-event callbacks an adapter delivers to.
// Every field is optional; events are ephemeral and delivered at most once.
type Handlers struct {
	OnNewMessage   func(chatID string, msg models.Message)
	OnMessagesRead func(userID string, count int)
	OnChatUpdated  func(chatID string)
	OnUserJoined   func(userID string)
	OnUserLeft     func(userID string)
	OnTyping       func(userID string)
	OnConnected    func(userID string)
	OnError        func(detail string)
}
