package domain

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// ToxicPlaceholder replaces inbound text the filter rejects.
const ToxicPlaceholder = "This message cannot be displayed"

// UncheckedPlaceholder replaces inbound text the filter could not score.
const UncheckedPlaceholder = "An error occurred while checking the message"

type ChatMessage struct {
	ID       ulid.ULID `json:"id"`
	From     ClientID  `json:"from"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
	Filtered bool      `json:"filtered,omitempty"`
}

func NewChatMessage(from ClientID, text string) ChatMessage {
	now := time.Now()
	return ChatMessage{
		ID:   ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()),
		From: from,
		Text: text,
		At:   now,
	}
}
