package models

import (
	"strings"
	"time"
)

// MessageStatus tracks the client-side delivery lifecycle of a message.
type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

// SenderRole distinguishes the applicant from the adoption coordinator.
type SenderRole string

const (
	SenderUser        SenderRole = "user"
	SenderCoordinator SenderRole = "coordinator"
)

// Message is one chat message as held by the session controller and
// exchanged with the REST API.
type Message struct {
	ID        string        `json:"id"`
	Sender    SenderRole    `json:"sender"`
	SenderID  string        `json:"sender_id,omitempty"`
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"timestamp"`
	IsRead    bool          `json:"isRead"`
	Status    MessageStatus `json:"status,omitempty"`
	TempID    string        `json:"temp_id,omitempty"`
	ImageURL  string        `json:"imageUrl,omitempty"`
}

// ChatSession is one conversation between an applicant and a coordinator
// about a specific pet.
type ChatSession struct {
	ID                   string `json:"id"`
	PetID                string `json:"petId"`
	PetName              string `json:"petName"`
	PetImage             string `json:"petImage"`
	CoordinatorName      string `json:"coordinatorName"`
	CoordinatorImage     string `json:"coordinatorImage"`
	OtherParticipantName string `json:"otherParticipantName"`
	OtherParticipantRole string `json:"otherParticipantRole"`
	LastMessage          string `json:"lastMessage"`
	LastMessageTime      string `json:"lastMessageTime"`
	UnreadCount          int    `json:"unreadCount"`
}

// ImagePrefix marks a text message whose body is an embedded image data URL.
// History fetched over REST uses the same convention, so the marker must not
// change without coordinating with the server.
const ImagePrefix = "[IMG]"

// EncodeImageMessage wraps an image data URL in the prefixed-text convention.
func EncodeImageMessage(dataURL string) string {
	return ImagePrefix + dataURL
}

// IsImageMessage reports whether a message body carries an embedded image,
// and returns the data URL when it does.
func IsImageMessage(text string) (string, bool) {
	if strings.HasPrefix(text, ImagePrefix) {
		return strings.TrimPrefix(text, ImagePrefix), true
	}
	return "", false
}
