package memory

import (
	"context"
	"sync"

	"campusconnect/internal/core/domain"
	"campusconnect/internal/core/ports"
)

// ConversationRepository keeps conversations in process memory. Values are
// copied in and out so callers never share slices with the store.
type ConversationRepository struct {
	conversations map[domain.ConversationID]*domain.Conversation
	mu            sync.RWMutex
}

var _ ports.ConversationRepository = (*ConversationRepository)(nil)

func NewConversationRepository(seed ...*domain.Conversation) *ConversationRepository {
	r := &ConversationRepository{
		conversations: make(map[domain.ConversationID]*domain.Conversation, len(seed)),
	}
	for _, c := range seed {
		r.conversations[c.ID] = cloneConversation(c)
	}
	return r
}

func (r *ConversationRepository) LoadConversation(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.conversations[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

func (r *ConversationRepository) AppendMessage(ctx context.Context, id domain.ConversationID, msg domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[id]
	if !ok {
		return domain.ErrConversationNotFound
	}
	msg.ConversationID = id
	conv.Messages = append(conv.Messages, msg)
	return nil
}

func (r *ConversationRepository) SaveConversation(ctx context.Context, conv *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

func cloneConversation(c *domain.Conversation) *domain.Conversation {
	out := *c
	out.Messages = append([]domain.ChatMessage(nil), c.Messages...)
	return &out
}
