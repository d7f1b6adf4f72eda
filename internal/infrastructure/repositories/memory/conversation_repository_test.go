package memory

import (
	"context"
	"testing"
	"time"

	"campusconnect/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationRepository_LoadUnknown(t *testing.T) {
	repo := NewConversationRepository()

	conv, err := repo.LoadConversation(context.Background(), "nonexistent")
	assert.Nil(t, conv)
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestConversationRepository_AppendAndLoad(t *testing.T) {
	repo := NewConversationRepository(SeedConversations(time.Now())...)
	ctx := context.Background()

	msg := domain.ChatMessage{ID: "m-new", SenderID: "local-user", Content: "hello", Timestamp: time.Now()}
	require.NoError(t, repo.AppendMessage(ctx, "1", msg))

	conv, err := repo.LoadConversation(ctx, "1")
	require.NoError(t, err)
	last := conv.Messages[len(conv.Messages)-1]
	assert.Equal(t, domain.MessageID("m-new"), last.ID)
	assert.Equal(t, domain.ConversationID("1"), last.ConversationID)
}

func TestConversationRepository_AppendUnknown(t *testing.T) {
	repo := NewConversationRepository()
	err := repo.AppendMessage(context.Background(), "missing", domain.ChatMessage{ID: "x"})
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestConversationRepository_ReturnsCopies(t *testing.T) {
	repo := NewConversationRepository(SeedConversations(time.Now())...)
	ctx := context.Background()

	conv, err := repo.LoadConversation(ctx, "2")
	require.NoError(t, err)
	conv.Messages[0].Content = "mutated"
	conv.Messages = append(conv.Messages, domain.ChatMessage{ID: "leak"})

	again, err := repo.LoadConversation(ctx, "2")
	require.NoError(t, err)
	assert.Len(t, again.Messages, 2)
	assert.NotEqual(t, "mutated", again.Messages[0].Content)
}

func TestConversationRepository_Save(t *testing.T) {
	repo := NewConversationRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveConversation(ctx, &domain.Conversation{ID: "9", ParticipantID: "user-9"}))

	conv, err := repo.LoadConversation(ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("user-9"), conv.ParticipantID)
}

func TestSeedConversations_Ordered(t *testing.T) {
	for _, conv := range SeedConversations(time.Now()) {
		for i := 1; i < len(conv.Messages); i++ {
			assert.False(t, conv.Messages[i].Timestamp.Before(conv.Messages[i-1].Timestamp), "conversation %s", conv.ID)
		}
	}
}
