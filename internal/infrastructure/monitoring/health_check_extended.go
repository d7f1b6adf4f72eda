package monitoring

import (
	"context"
	"errors"
	"time"

	"campusconnect/internal/core/domain"
	"campusconnect/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// AddRedisCheck adds a Redis health check
func (h *HealthChecker) AddRedisCheck(client *redis.Client, interval, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddRepositoryCheck probes the conversation store. A missing conversation
// still proves the store answered.
func (h *HealthChecker) AddRepositoryCheck(repo ports.ConversationRepository, interval, timeout time.Duration) {
	h.AddCheck("repository", func(ctx context.Context) (bool, error) {
		_, err := repo.LoadConversation(ctx, "__health__")
		if err != nil && !errors.Is(err, domain.ErrConversationNotFound) {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddConnectionCheck reports unhealthy while the realtime link is down.
func (h *HealthChecker) AddConnectionCheck(provider ports.ConnectionProvider, interval, timeout time.Duration) {
	h.AddCheck("socket", func(ctx context.Context) (bool, error) {
		if !provider.IsConnected() {
			return false, domain.ErrNotConnected
		}
		return true, nil
	}, interval, timeout)
}

// IsReady checks if the agent can serve realtime actions
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	status := h.CheckAll(ctx)
	return status.Status == statusHealthy
}
