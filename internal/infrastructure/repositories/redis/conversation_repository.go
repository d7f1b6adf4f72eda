package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"campusconnect/internal/core/domain"
	"campusconnect/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "campusconnect:"

// ConversationRepository stores each conversation as a hash of metadata plus
// a sorted set of JSON messages scored by timestamp.
type ConversationRepository struct {
	client *redis.Client
	prefix string
}

var _ ports.ConversationRepository = (*ConversationRepository)(nil)

func NewConversationRepository(client *redis.Client) *ConversationRepository {
	return &ConversationRepository{
		client: client,
		prefix: keyPrefix + "conversation:",
	}
}

func (r *ConversationRepository) conversationKey(id domain.ConversationID) string {
	return r.prefix + string(id)
}

func (r *ConversationRepository) messagesKey(id domain.ConversationID) string {
	return r.prefix + string(id) + ":messages"
}

func conversationIndexKey() string {
	return keyPrefix + "conversations"
}

func (r *ConversationRepository) LoadConversation(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error) {
	fields, err := r.client.HGetAll(ctx, r.conversationKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation from Redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrConversationNotFound
	}

	raw, err := r.client.ZRange(ctx, r.messagesKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load messages from Redis: %w", err)
	}

	conv := conversationFromHash(id, fields)
	conv.Messages = make([]domain.ChatMessage, 0, len(raw))
	for _, member := range raw {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(member), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		conv.Messages = append(conv.Messages, msg)
	}

	return conv, nil
}

func (r *ConversationRepository) AppendMessage(ctx context.Context, id domain.ConversationID, msg domain.ChatMessage) error {
	exists, err := r.client.Exists(ctx, r.conversationKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to check conversation in Redis: %w", err)
	}
	if exists == 0 {
		return domain.ErrConversationNotFound
	}

	msg.ConversationID = id
	z, err := messageMember(msg)
	if err != nil {
		return err
	}
	if err := r.client.ZAdd(ctx, r.messagesKey(id), z).Err(); err != nil {
		return fmt.Errorf("failed to append message in Redis: %w", err)
	}
	return nil
}

// SaveConversation replaces the stored conversation and its messages atomically.
func (r *ConversationRepository) SaveConversation(ctx context.Context, conv *domain.Conversation) error {
	members := make([]redis.Z, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		msg.ConversationID = conv.ID
		z, err := messageMember(msg)
		if err != nil {
			return err
		}
		members = append(members, z)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.conversationKey(conv.ID), r.messagesKey(conv.ID))
		pipe.HSet(ctx, r.conversationKey(conv.ID), conversationToHash(conv))
		if len(members) > 0 {
			pipe.ZAdd(ctx, r.messagesKey(conv.ID), members...)
		}
		pipe.SAdd(ctx, conversationIndexKey(), string(conv.ID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save conversation in Redis: %w", err)
	}
	return nil
}

func messageMember(msg domain.ChatMessage) (redis.Z, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return redis.Z{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	return redis.Z{Score: float64(msg.Timestamp.UnixMilli()), Member: string(data)}, nil
}

func conversationToHash(conv *domain.Conversation) map[string]interface{} {
	return map[string]interface{}{
		"participant_id":           string(conv.ParticipantID),
		"participant_display_name": conv.ParticipantDisplayName,
		"participant_avatar":       conv.ParticipantAvatar,
		"participant_online":       strconv.FormatBool(conv.IsParticipantOnline),
	}
}

func conversationFromHash(id domain.ConversationID, fields map[string]string) *domain.Conversation {
	online, _ := strconv.ParseBool(fields["participant_online"])
	return &domain.Conversation{
		ID:                     id,
		ParticipantID:          domain.UserID(fields["participant_id"]),
		ParticipantDisplayName: fields["participant_display_name"],
		ParticipantAvatar:      fields["participant_avatar"],
		IsParticipantOnline:    online,
	}
}
