package reliability

import (
	"context"
	"errors"

	"campusconnect/internal/core/domain"
	"campusconnect/internal/core/ports"
	"campusconnect/pkg/circuitbreaker"
	"campusconnect/pkg/retry"

	"go.uber.org/zap"
)

// ConversationRepository guards a remote store with retries and a circuit
// breaker. Lookups of unknown conversations are answers, not failures.
type ConversationRepository struct {
	repo    ports.ConversationRepository
	logger  *zap.SugaredLogger
	retry   retry.Config
	breaker *circuitbreaker.CircuitBreaker
}

var _ ports.ConversationRepository = (*ConversationRepository)(nil)

func NewConversationRepository(
	repo ports.ConversationRepository,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *ConversationRepository {
	cbConfig.IsFailure = isStoreFailure
	retryConfig.NonRetryableErrors = append(retryConfig.NonRetryableErrors,
		domain.ErrConversationNotFound,
		circuitbreaker.ErrOpen,
	)

	w := &ConversationRepository{
		repo:    repo,
		logger:  logger,
		retry:   retryConfig,
		breaker: circuitbreaker.New(cbConfig),
	}
	w.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("conversation store breaker changed state",
			"from", from.String(),
			"to", to.String(),
		)
	})
	return w
}

func isStoreFailure(err error) bool {
	return !errors.Is(err, domain.ErrConversationNotFound)
}

func (w *ConversationRepository) LoadConversation(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error) {
	conv, err := retry.RetryWithResult(ctx, w.retry, func() (*domain.Conversation, error) {
		return circuitbreaker.Call(ctx, w.breaker, func(ctx context.Context) (*domain.Conversation, error) {
			return w.repo.LoadConversation(ctx, id)
		})
	})
	return conv, unwrapNotFound(err)
}

// AppendMessage is retried; the stored member is keyed by the full message,
// so a repeated append is a no-op.
func (w *ConversationRepository) AppendMessage(ctx context.Context, id domain.ConversationID, msg domain.ChatMessage) error {
	err := retry.Retry(ctx, w.retry, func() error {
		return w.breaker.Execute(ctx, func(ctx context.Context) error {
			return w.repo.AppendMessage(ctx, id, msg)
		})
	})
	return unwrapNotFound(err)
}

func (w *ConversationRepository) SaveConversation(ctx context.Context, conv *domain.Conversation) error {
	return retry.Retry(ctx, w.retry, func() error {
		return w.breaker.Execute(ctx, func(ctx context.Context) error {
			return w.repo.SaveConversation(ctx, conv)
		})
	})
}

func (w *ConversationRepository) BreakerStats() circuitbreaker.Stats {
	return w.breaker.Stats()
}

// unwrapNotFound strips retry wrapping from the not-found sentinel.
func unwrapNotFound(err error) error {
	if errors.Is(err, domain.ErrConversationNotFound) {
		return domain.ErrConversationNotFound
	}
	return err
}
