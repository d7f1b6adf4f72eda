package ports

import (
	"context"

	"campusconnect/internal/core/domain"
)

// ConversationRepository is the chat store. LoadConversation returns
// domain.ErrConversationNotFound for unknown ids.
type ConversationRepository interface {
	LoadConversation(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error)
	AppendMessage(ctx context.Context, id domain.ConversationID, msg domain.ChatMessage) error
	SaveConversation(ctx context.Context, conv *domain.Conversation) error
}

// TokenStore holds the bearer credential presented on connect. An empty
// token with a nil error means no usable credential is stored.
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}
