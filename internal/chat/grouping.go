package chat

import (
	"time"

	"github.com/pawlink/pawlink-chat/pkg/models"
)

// SeparatorGap is the minimum gap between consecutive messages that
// produces a time separator.
const SeparatorGap = 5 * time.Minute

// DisplayMessage is a message annotated with presentation hints derived
// from its neighbors in the ordered list.
type DisplayMessage struct {
	models.Message

	// ShowAvatar marks the first message of a consecutive run from the
	// counterpart. The viewer's own messages never show an avatar.
	ShowAvatar bool
	// ShowTimeSeparator marks the first message overall and any message
	// more than SeparatorGap after the previous one.
	ShowTimeSeparator bool
}

// Annotate computes display hints for an ordered message list. It is pure:
// the same input always yields the same output.
func Annotate(msgs []models.Message) []DisplayMessage {
	out := make([]DisplayMessage, len(msgs))
	for i, m := range msgs {
		d := DisplayMessage{Message: m}
		if m.Sender != models.SenderUser {
			d.ShowAvatar = i == 0 || msgs[i-1].Sender == models.SenderUser
		}
		if i == 0 || m.Timestamp.Sub(msgs[i-1].Timestamp) > SeparatorGap {
			d.ShowTimeSeparator = true
		}
		out[i] = d
	}
	return out
}
