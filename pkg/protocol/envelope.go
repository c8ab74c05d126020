package protocol

// EnvelopeType discriminates every frame exchanged over the realtime
// channels. Unknown types are logged and ignored on both sides so either
// end can be upgraded independently.
type EnvelopeType string

const (
	// client -> server
	TypeJoin    EnvelopeType = "join"
	TypeLeave   EnvelopeType = "leave"
	TypeMessage EnvelopeType = "message"
	TypeRead    EnvelopeType = "read"
	TypePing    EnvelopeType = "ping"

	// server -> client
	TypeJoined       EnvelopeType = "joined"
	TypeLeft         EnvelopeType = "left"
	TypeNewMessage   EnvelopeType = "new_message"
	TypeMessageSent  EnvelopeType = "message_sent"
	TypeMessagesRead EnvelopeType = "messages_read"
	TypeUserJoined   EnvelopeType = "user_joined"
	TypeUserLeft     EnvelopeType = "user_left"
	TypePong         EnvelopeType = "pong"
	TypeConnected    EnvelopeType = "connected"
	TypeError        EnvelopeType = "error"
	TypeChatUpdated  EnvelopeType = "chat_updated" // SSE variant only
	TypeHeartbeat    EnvelopeType = "heartbeat"    // SSE keep-alive frame

	// both directions
	TypeTyping EnvelopeType = "typing"
)

// WireMessage is the message body carried inside a new_message envelope.
type WireMessage struct {
	ID        string `json:"id"`
	SenderID  string `json:"sender_id"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	IsRead    bool   `json:"isRead"`
}

// Envelope is the JSON wire frame for both WebSocket and SSE channels.
// Only Type is always present; the remaining fields depend on it.
type Envelope struct {
	Type      EnvelopeType `json:"type"`
	ChatID    string       `json:"chat_id,omitempty"`
	Text      string       `json:"text,omitempty"`
	Message   *WireMessage `json:"message,omitempty"`
	UserID    string       `json:"user_id,omitempty"`
	Count     int          `json:"count,omitempty"`
	MessageID string       `json:"message_id,omitempty"`
	Detail    string       `json:"detail,omitempty"`
	Timestamp string       `json:"timestamp,omitempty"`
}
