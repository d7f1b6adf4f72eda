package memory

import (
	"time"

	"campusconnect/internal/core/domain"
)

// SeedConversations returns the demo conversations the agent starts with
// when no persistent store is configured. Timestamps are relative to now.
func SeedConversations(now time.Time) []*domain.Conversation {
	at := func(ago time.Duration) time.Time { return now.Add(-ago).Truncate(time.Second) }

	return []*domain.Conversation{
		{
			ID:                     "1",
			ParticipantID:          "user-2",
			ParticipantDisplayName: "Sarah Johnson",
			ParticipantAvatar:      "https://i.pravatar.cc/150?img=47",
			IsParticipantOnline:    true,
			Messages: []domain.ChatMessage{
				{ID: "1-1", SenderID: "user-2", Content: "Hey! Are you going to the study group tonight?", Timestamp: at(2 * time.Hour)},
				{ID: "1-2", SenderID: "local-user", Content: "Yes, I'll be there around 7.", Timestamp: at(110 * time.Minute)},
				{ID: "1-3", SenderID: "user-2", Content: "Great, can you bring your notes from the lecture?", Timestamp: at(100 * time.Minute)},
			},
		},
		{
			ID:                     "2",
			ParticipantID:          "user-3",
			ParticipantDisplayName: "Michael Chen",
			ParticipantAvatar:      "https://i.pravatar.cc/150?img=12",
			IsParticipantOnline:    false,
			Messages: []domain.ChatMessage{
				{ID: "2-1", SenderID: "user-3", Content: "Did you finish the lab report?", Timestamp: at(26 * time.Hour)},
				{ID: "2-2", SenderID: "local-user", Content: "Almost, just the discussion section left.", Timestamp: at(25 * time.Hour)},
			},
		},
		{
			ID:                     "3",
			ParticipantID:          "user-4",
			ParticipantDisplayName: "Amara Okafor",
			ParticipantAvatar:      "https://i.pravatar.cc/150?img=32",
			IsParticipantOnline:    true,
			Messages: []domain.ChatMessage{
				{ID: "3-1", SenderID: "user-4", Content: "The career fair moved to the main hall.", Timestamp: at(3 * 24 * time.Hour)},
			},
		},
	}
}
