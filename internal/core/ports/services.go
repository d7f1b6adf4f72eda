package ports

import (
	"context"

	"campusconnect/internal/core/domain"
)

// Connection is the persistent link to the realtime server.
type Connection interface {
	// Emit sends a frame. When the link is down the frame is queued for
	// redelivery or dropped; the returned status says which.
	Emit(ctx context.Context, event domain.EventName, payload interface{}) (domain.DeliveryStatus, error)
	On(event domain.EventName, handler EventHandler) SubscriptionID
	Off(event domain.EventName, id SubscriptionID)
	IsConnected() bool
	Close() error
}

// ConnectionManager owns the single connection of a process.
type ConnectionManager interface {
	Acquire(ctx context.Context) (Connection, error)
	Current() Connection
	Release() error
}

// ConnectionProvider exposes the shared connection and connectivity to the
// rest of the client.
type ConnectionProvider interface {
	Connection() Connection
	IsConnected() bool
	State() domain.ConnectionState
	OnConnectivityChange(fn func(connected bool)) (cancel func())
	SendMessage(ctx context.Context, receiverID domain.UserID, content string) (domain.DeliveryStatus, error)
	SendTyping(ctx context.Context, conversationID domain.ConversationID, receiverID domain.UserID, typing bool) (domain.DeliveryStatus, error)
}

type ChatService interface {
	LoadConversation(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error)
	AppendLocalMessage(ctx context.Context, id domain.ConversationID, content string) (*domain.ChatMessage, error)
	SendChatMessage(ctx context.Context, id domain.ConversationID, content string) (*domain.ChatMessage, error)
	TypingUsers(id domain.ConversationID) []domain.UserID
}

type CallService interface {
	StartCall(ctx context.Context, peerID domain.UserID, isVideo bool) (domain.CallSnapshot, error)
	Accept(ctx context.Context) (domain.CallSnapshot, error)
	Hangup(ctx context.Context) (domain.CallSnapshot, error)
	Current() (domain.CallSnapshot, bool)
	Toggle(name string) (domain.CallSnapshot, error)
}
