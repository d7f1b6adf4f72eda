package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"campusconnect/internal/core/domain"
	"campusconnect/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChatFixture(t *testing.T, connected bool) (*ChatService, *fakeConn) {
	t.Helper()

	conn := newFakeConn(connected)
	cfg := testConfig("local-user")
	provider, _ := mountedProvider(cfg, conn)

	svc := NewChatService(seededRepo(time.Now()), provider, cfg, "memory", nil)
	require.NoError(t, svc.Attach())
	t.Cleanup(svc.Detach)
	return svc, conn
}

func TestChatService_LoadConversation(t *testing.T) {
	svc, _ := newChatFixture(t, true)

	conv, err := svc.LoadConversation(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Sarah Johnson", conv.ParticipantDisplayName)
	require.Len(t, conv.Messages, 3)

	for i, m := range conv.Messages {
		assert.Equal(t, domain.ConversationID("1"), m.ConversationID)
		assert.Equal(t, m.SenderID == "local-user", m.IsFromCurrentUser)
		if i > 0 {
			assert.False(t, m.Timestamp.Before(conv.Messages[i-1].Timestamp))
		}
	}
}

func TestChatService_LoadConversationNotFound(t *testing.T) {
	svc, _ := newChatFixture(t, true)

	for _, id := range []domain.ConversationID{"", "999"} {
		conv, err := svc.LoadConversation(context.Background(), id)
		assert.ErrorIs(t, err, domain.ErrConversationNotFound)
		assert.Nil(t, conv)
	}
}

func TestChatService_AppendLocalMessage(t *testing.T) {
	svc, conn := newChatFixture(t, true)
	ctx := context.Background()

	msg, err := svc.AppendLocalMessage(ctx, "2", "See you at the lab")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(msg.ID), "local_"))
	assert.Equal(t, domain.UserID("local-user"), msg.SenderID)
	assert.True(t, msg.IsFromCurrentUser)
	assert.Equal(t, domain.DeliveryPending, msg.Delivery)

	conv, err := svc.LoadConversation(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, msg.ID, conv.Messages[len(conv.Messages)-1].ID)
	assert.Empty(t, conn.emitted())
}

func TestChatService_AppendLocalMessageRejects(t *testing.T) {
	svc, _ := newChatFixture(t, true)
	ctx := context.Background()

	_, err := svc.AppendLocalMessage(ctx, "1", "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyContent)

	_, err = svc.AppendLocalMessage(ctx, "1", strings.Repeat("a", 4001))
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = svc.AppendLocalMessage(ctx, "404", "hello")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestChatService_AppendLocalMessageSanitizes(t *testing.T) {
	svc, _ := newChatFixture(t, true)

	msg, err := svc.AppendLocalMessage(context.Background(), "1", "  room\x00 204\n ")
	require.NoError(t, err)
	assert.Equal(t, "room 204", msg.Content)
}

func TestChatService_AppendNeverGoesBackInTime(t *testing.T) {
	svc, _ := newChatFixture(t, true)
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	svc.handleMessage(domain.MessageEvent{
		Kind:           domain.EventReceiveMessage,
		ID:             "srv-future",
		ConversationID: "1",
		SenderID:       "user-2",
		Content:        "from a fast clock",
		Timestamp:      future,
	})

	msg, err := svc.AppendLocalMessage(ctx, "1", "reply")
	require.NoError(t, err)
	assert.True(t, msg.Timestamp.After(future))
	assert.GreaterOrEqual(t, msg.Timestamp.Sub(future), time.Millisecond)

	conv, err := svc.LoadConversation(ctx, "1")
	require.NoError(t, err)
	n := len(conv.Messages)
	assert.Equal(t, domain.MessageID("srv-future"), conv.Messages[n-2].ID)
	assert.Equal(t, msg.ID, conv.Messages[n-1].ID)
	assert.True(t, conv.Messages[n-1].Timestamp.After(conv.Messages[n-2].Timestamp))
}

func TestChatService_SendChatMessage(t *testing.T) {
	svc, conn := newChatFixture(t, true)

	msg, err := svc.SendChatMessage(context.Background(), "3", "Thanks!")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliverySent, msg.Delivery)

	last, ok := conn.lastEmit()
	require.True(t, ok)
	assert.Equal(t, domain.EventSendMessage, last.event)
	assert.Equal(t, domain.SendMessagePayload{ReceiverID: "user-4", Content: "Thanks!"}, last.payload)
}

func TestChatService_SendChatMessageOutcomes(t *testing.T) {
	t.Run("queued while offline", func(t *testing.T) {
		svc, _ := newChatFixture(t, false)

		msg, err := svc.SendChatMessage(context.Background(), "1", "on my way")
		require.NoError(t, err)
		assert.Equal(t, domain.DeliveryQueued, msg.Delivery)
	})

	t.Run("failed send keeps the message", func(t *testing.T) {
		svc, conn := newChatFixture(t, false)
		conn.err = domain.ErrNotConnected

		msg, err := svc.SendChatMessage(context.Background(), "1", "typing fast")
		require.NoError(t, err)
		assert.Equal(t, domain.DeliveryFailed, msg.Delivery)

		conv, err := svc.LoadConversation(context.Background(), "1")
		require.NoError(t, err)
		stored := conv.Messages[len(conv.Messages)-1]
		assert.Equal(t, msg.ID, stored.ID)
		assert.Equal(t, domain.DeliveryFailed, stored.Delivery)
	})
}

func TestChatService_ReceiveMessage(t *testing.T) {
	svc, conn := newChatFixture(t, true)
	ctx := context.Background()

	ev := domain.MessageEvent{
		Kind:           domain.EventReceiveMessage,
		ID:             "srv-1",
		ConversationID: "2",
		SenderID:       "user-3",
		Content:        "Lab is moved to room 204",
	}
	conn.fire(ev)
	conn.fire(ev)

	conv, err := svc.LoadConversation(ctx, "2")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 3)

	got := conv.Messages[2]
	assert.Equal(t, domain.MessageID("srv-1"), got.ID)
	assert.False(t, got.IsFromCurrentUser)
	assert.False(t, got.Timestamp.IsZero())
}

func TestChatService_ReceiveMessageForNewConversation(t *testing.T) {
	svc, conn := newChatFixture(t, true)

	conn.fire(domain.MessageEvent{
		Kind:           domain.EventReceiveMessage,
		ID:             "srv-9",
		ConversationID: "42",
		SenderID:       "user-9",
		Content:        "hi, we have not talked before",
		Timestamp:      time.Now(),
	})

	conv, err := svc.LoadConversation(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("user-9"), conv.ParticipantID)
	require.Len(t, conv.Messages, 1)
}

func TestChatService_MessageSentReconcilesLocalCopy(t *testing.T) {
	svc, conn := newChatFixture(t, true)
	ctx := context.Background()

	msg, err := svc.SendChatMessage(ctx, "1", "Bringing the notes")
	require.NoError(t, err)

	conn.fire(domain.MessageEvent{
		Kind:           domain.EventMessageSent,
		ID:             "srv-77",
		ConversationID: "1",
		SenderID:       "local-user",
		ReceiverID:     "user-2",
		Content:        "Bringing the notes",
		Timestamp:      time.Now(),
	})

	conv, err := svc.LoadConversation(ctx, "1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 4)
	assert.False(t, conv.HasMessage(msg.ID))

	last := conv.Messages[3]
	assert.Equal(t, domain.MessageID("srv-77"), last.ID)
	assert.Equal(t, domain.DeliverySent, last.Delivery)
	assert.True(t, last.IsFromCurrentUser)
}

func TestChatService_TypingUsers(t *testing.T) {
	svc, conn := newChatFixture(t, true)

	conn.fire(domain.TypingEvent{Kind: domain.EventUserTyping, ConversationID: "1", UserID: "user-2"})
	conn.fire(domain.TypingEvent{Kind: domain.EventUserTyping, ConversationID: "1", UserID: "user-1"})
	conn.fire(domain.TypingEvent{Kind: domain.EventUserTyping, ConversationID: "1", UserID: "local-user"})

	assert.Equal(t, []domain.UserID{"user-1", "user-2"}, svc.TypingUsers("1"))
	assert.Empty(t, svc.TypingUsers("2"))

	conn.fire(domain.TypingEvent{Kind: domain.EventUserStopTyping, ConversationID: "1", UserID: "user-1"})
	assert.Equal(t, []domain.UserID{"user-2"}, svc.TypingUsers("1"))

	// A message from the typist clears the indicator.
	conn.fire(domain.MessageEvent{
		Kind:           domain.EventReceiveMessage,
		ID:             "srv-2",
		ConversationID: "1",
		SenderID:       "user-2",
		Content:        "done",
	})
	assert.Empty(t, svc.TypingUsers("1"))
}

func TestChatService_TypingExpires(t *testing.T) {
	svc, conn := newChatFixture(t, true)

	base := time.Now()
	utils.Now = func() time.Time { return base }
	t.Cleanup(func() { utils.Now = time.Now })

	conn.fire(domain.TypingEvent{Kind: domain.EventUserTyping, ConversationID: "3", UserID: "user-4"})
	assert.Len(t, svc.TypingUsers("3"), 1)

	utils.Now = func() time.Time { return base.Add(typingTTL + time.Second) }
	assert.Empty(t, svc.TypingUsers("3"))
}

func TestChatService_DetachStopsUpdates(t *testing.T) {
	svc, conn := newChatFixture(t, true)
	svc.Detach()

	conn.fire(domain.MessageEvent{
		Kind:           domain.EventReceiveMessage,
		ID:             "srv-3",
		ConversationID: "3",
		SenderID:       "user-4",
		Content:        "anyone there?",
	})

	conv, err := svc.LoadConversation(context.Background(), "3")
	require.NoError(t, err)
	assert.False(t, conv.HasMessage("srv-3"))
}
