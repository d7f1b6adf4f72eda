package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"campusconnect/internal/core/domain"
	"campusconnect/internal/core/ports"
	"campusconnect/pkg/config"
	"campusconnect/pkg/logger"
	"campusconnect/pkg/tracing"
	"campusconnect/pkg/utils"
	"campusconnect/pkg/validation"

	"go.uber.org/zap"
)

// typingTTL bounds how long a typing indicator survives without a stop.
const typingTTL = 10 * time.Second

const localMessagePrefix = "local_"

// ChatService reads and appends chat messages and keeps conversations in
// sync with message frames from the server.
type ChatService struct {
	repo      ports.ConversationRepository
	provider  ports.ConnectionProvider
	localUser domain.UserID
	backend   string
	logger    *zap.SugaredLogger

	// writeMu serializes read-modify-write cycles on the repository.
	writeMu sync.Mutex

	mu     sync.Mutex
	conn   ports.Connection
	subs   []subscription
	typing map[domain.ConversationID]map[domain.UserID]time.Time
}

var _ ports.ChatService = (*ChatService)(nil)

// NewChatService builds the chat service. backend names the repository
// implementation in traces.
func NewChatService(repo ports.ConversationRepository, provider ports.ConnectionProvider, cfg *config.Config, backend string, log *zap.SugaredLogger) *ChatService {
	if log == nil {
		log = logger.Nop()
	}
	return &ChatService{
		repo:      repo,
		provider:  provider,
		localUser: domain.UserID(cfg.Client.UserID),
		backend:   backend,
		logger:    log.With("component", "chat_service"),
		typing:    make(map[domain.ConversationID]map[domain.UserID]time.Time),
	}
}

// LoadConversation returns the conversation with messages oldest first.
// Unknown ids yield domain.ErrConversationNotFound and no data.
func (s *ChatService) LoadConversation(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error) {
	ctx, span := tracing.TraceRepositoryOperation(ctx, "load_conversation", s.backend)
	defer span.End()
	defer tracing.MeasureDuration(ctx, time.Now(), "load_conversation")
	tracing.AddSpanAttributes(ctx, tracing.ConversationIDKey.String(string(id)))

	if id == "" {
		return nil, domain.ErrConversationNotFound
	}

	conv, err := s.repo.LoadConversation(ctx, id)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	for i := range conv.Messages {
		m := &conv.Messages[i]
		m.ConversationID = conv.ID
		m.IsFromCurrentUser = s.localUser != "" && m.SenderID == s.localUser
	}
	domain.SortMessages(conv.Messages)
	return conv, nil
}

// AppendLocalMessage stores a message authored by the local user. Nothing is
// sent to the server.
func (s *ChatService) AppendLocalMessage(ctx context.Context, id domain.ConversationID, content string) (*domain.ChatMessage, error) {
	ctx, span := tracing.TraceRepositoryOperation(ctx, "append_message", s.backend)
	defer span.End()

	content = utils.SanitizeString(content)
	if utils.IsEmpty(content) {
		return nil, domain.ErrEmptyContent
	}
	if err := validation.ValidateMessageContent(content); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conv, err := s.repo.LoadConversation(ctx, id)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	// Stay strictly after the newest message; stores order by millisecond.
	now := utils.Now()
	if last := conv.LastTimestamp(); !last.IsZero() {
		if floor := last.Add(time.Millisecond); now.Before(floor) {
			now = floor
		}
	}

	msg := domain.ChatMessage{
		ID:                domain.MessageID(utils.GenerateMessageID()),
		ConversationID:    id,
		SenderID:          s.localUser,
		Content:           content,
		Timestamp:         now,
		IsFromCurrentUser: true,
		Delivery:          domain.DeliveryPending,
	}
	if err := s.repo.AppendMessage(ctx, id, msg); err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("append message: %w", err)
	}
	return &msg, nil
}

// SendChatMessage appends the message locally, then sends it to the
// conversation's participant. Delivery on the returned message is sent,
// queued or failed; a failed send is not an error.
func (s *ChatService) SendChatMessage(ctx context.Context, id domain.ConversationID, content string) (*domain.ChatMessage, error) {
	msg, err := s.AppendLocalMessage(ctx, id, content)
	if err != nil {
		return nil, err
	}

	conv, err := s.repo.LoadConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	status, sendErr := s.provider.SendMessage(ctx, conv.ParticipantID, msg.Content)
	switch {
	case sendErr == nil && (status == domain.DeliverySent || status == domain.DeliveryQueued):
		msg.Delivery = status
	default:
		msg.Delivery = domain.DeliveryFailed
		s.logger.Warnw("chat message not sent",
			"conversation_id", id,
			"message_id", msg.ID,
			"status", status,
			"error", sendErr,
		)
	}

	if err := s.setDelivery(ctx, id, msg.ID, msg.Delivery); err != nil {
		s.logger.Warnw("could not record delivery status", "message_id", msg.ID, "error", err)
	}
	return msg, nil
}

// TypingUsers lists who is currently typing in a conversation.
func (s *ChatService) TypingUsers(id domain.ConversationID) []domain.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.typing[id]
	out := make([]domain.UserID, 0, len(users))
	for user, since := range users {
		if utils.IsExpired(since, typingTTL) {
			delete(users, user)
			continue
		}
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Attach subscribes to message and typing frames on the mounted connection.
func (s *ChatService) Attach() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}
	conn := s.provider.Connection()
	if conn == nil {
		return fmt.Errorf("attach chat service: %w", domain.ErrNotConnected)
	}

	s.conn = conn
	s.subs = []subscription{
		{domain.EventReceiveMessage, conn.On(domain.EventReceiveMessage, s.handleMessage)},
		{domain.EventMessageSent, conn.On(domain.EventMessageSent, s.handleMessage)},
		{domain.EventUserTyping, conn.On(domain.EventUserTyping, s.handleTyping)},
		{domain.EventUserStopTyping, conn.On(domain.EventUserStopTyping, s.handleTyping)},
	}
	return nil
}

func (s *ChatService) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return
	}
	for _, sub := range s.subs {
		s.conn.Off(sub.event, sub.id)
	}
	s.subs = nil
	s.conn = nil
	s.typing = make(map[domain.ConversationID]map[domain.UserID]time.Time)
}

func (s *ChatService) handleMessage(ev domain.Event) {
	me, ok := ev.(domain.MessageEvent)
	if !ok {
		return
	}

	ctx, span := tracing.TraceRepositoryOperation(context.Background(), "store_"+string(me.Kind), s.backend)
	defer span.End()

	if err := s.storeRemote(ctx, me); err != nil {
		tracing.RecordError(ctx, err)
		s.logger.Warnw("could not store message frame",
			"event", me.Kind,
			"conversation_id", me.ConversationID,
			"message_id", me.ID,
			"error", err,
		)
		return
	}

	if me.Kind == domain.EventReceiveMessage {
		s.clearTyping(me.ConversationID, me.SenderID)
	}
}

func (s *ChatService) storeRemote(ctx context.Context, me domain.MessageEvent) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conv, err := s.repo.LoadConversation(ctx, me.ConversationID)
	if errors.Is(err, domain.ErrConversationNotFound) {
		conv = &domain.Conversation{
			ID:            me.ConversationID,
			ParticipantID: s.participantOf(me),
		}
		if err := s.repo.SaveConversation(ctx, conv); err != nil {
			return err
		}
		s.logger.Infow("created conversation from message frame", "conversation_id", me.ConversationID)
	} else if err != nil {
		return err
	}

	if conv.HasMessage(me.ID) {
		return nil
	}

	ts := me.Timestamp
	if ts.IsZero() {
		ts = utils.Now()
	}
	msg := domain.ChatMessage{
		ID:                me.ID,
		ConversationID:    me.ConversationID,
		SenderID:          me.SenderID,
		Content:           utils.SanitizeString(me.Content),
		Timestamp:         ts,
		IsFromCurrentUser: me.SenderID == s.localUser,
	}

	// The server echoes our own sends with its id. Adopt the oldest local
	// copy of the same text instead of storing it twice.
	if me.Kind == domain.EventMessageSent {
		if i := pendingLocalCopy(conv, msg.Content); i >= 0 {
			local := &conv.Messages[i]
			local.ID = me.ID
			local.Delivery = domain.DeliverySent
			return s.repo.SaveConversation(ctx, conv)
		}
		msg.IsFromCurrentUser = true
		msg.Delivery = domain.DeliverySent
	}

	return s.repo.AppendMessage(ctx, me.ConversationID, msg)
}

func (s *ChatService) participantOf(me domain.MessageEvent) domain.UserID {
	if me.SenderID == s.localUser {
		return me.ReceiverID
	}
	return me.SenderID
}

func pendingLocalCopy(conv *domain.Conversation, content string) int {
	for i, m := range conv.Messages {
		if !m.IsFromCurrentUser || !strings.HasPrefix(string(m.ID), localMessagePrefix) {
			continue
		}
		if m.Content == content && m.Delivery != domain.DeliveryFailed {
			return i
		}
	}
	return -1
}

func (s *ChatService) setDelivery(ctx context.Context, id domain.ConversationID, msgID domain.MessageID, status domain.DeliveryStatus) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conv, err := s.repo.LoadConversation(ctx, id)
	if err != nil {
		return err
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == msgID {
			conv.Messages[i].Delivery = status
			return s.repo.SaveConversation(ctx, conv)
		}
	}
	return nil
}

func (s *ChatService) handleTyping(ev domain.Event) {
	te, ok := ev.(domain.TypingEvent)
	if !ok || te.UserID == s.localUser {
		return
	}
	if te.Kind == domain.EventUserStopTyping {
		s.clearTyping(te.ConversationID, te.UserID)
		return
	}

	s.mu.Lock()
	users, ok := s.typing[te.ConversationID]
	if !ok {
		users = make(map[domain.UserID]time.Time)
		s.typing[te.ConversationID] = users
	}
	users[te.UserID] = utils.Now()
	s.mu.Unlock()
}

func (s *ChatService) clearTyping(id domain.ConversationID, user domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if users, ok := s.typing[id]; ok {
		delete(users, user)
		if len(users) == 0 {
			delete(s.typing, id)
		}
	}
}
