package domain

import (
	"sort"
	"time"
)

type ChatMessage struct {
	ID                MessageID      `json:"id"`
	ConversationID    ConversationID `json:"conversationId"`
	SenderID          UserID         `json:"senderId"`
	Content           string         `json:"content"`
	Timestamp         time.Time      `json:"timestamp"`
	IsFromCurrentUser bool           `json:"isFromCurrentUser"`
	Delivery          DeliveryStatus `json:"delivery,omitempty"`
}

type Conversation struct {
	ID                     ConversationID `json:"id"`
	ParticipantID          UserID         `json:"participantId"`
	ParticipantDisplayName string         `json:"participantDisplayName"`
	ParticipantAvatar      string         `json:"participantAvatar,omitempty"`
	IsParticipantOnline    bool           `json:"isParticipantOnline"`
	Messages               []ChatMessage  `json:"messages"`
}

// SortMessages orders messages by timestamp ascending; equal timestamps keep
// their insertion order.
func SortMessages(messages []ChatMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
}

// HasMessage reports whether a message with id is already in the conversation.
func (c *Conversation) HasMessage(id MessageID) bool {
	for _, m := range c.Messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// LastTimestamp returns the timestamp of the newest message, or the zero time.
func (c *Conversation) LastTimestamp() time.Time {
	var last time.Time
	for _, m := range c.Messages {
		if m.Timestamp.After(last) {
			last = m.Timestamp
		}
	}
	return last
}
