package repositories

import (
	"context"
	"time"

	"campusconnect/internal/core/ports"
	"campusconnect/internal/infrastructure/repositories/memory"
	redisrepo "campusconnect/internal/infrastructure/repositories/redis"
	"campusconnect/internal/infrastructure/reliability"
	"campusconnect/pkg/circuitbreaker"
	"campusconnect/pkg/config"
	"campusconnect/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory connects to Redis when enabled and falls back to the
// in-memory store when it cannot.
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(ctx,
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory
}

// CreateConversationRepository returns the Redis store behind retries and a
// circuit breaker, or a memory store seeded with demo conversations.
func (f *RepositoryFactory) CreateConversationRepository() ports.ConversationRepository {
	if f.useRedis && f.redisClient != nil {
		return reliability.NewConversationRepository(
			redisrepo.NewConversationRepository(f.redisClient),
			retry.DefaultConfig(),
			circuitbreaker.DefaultConfig(),
			f.logger,
		)
	}
	return memory.NewConversationRepository(memory.SeedConversations(time.Now())...)
}

// Backend names the store in use, for logs and traces.
func (f *RepositoryFactory) Backend() string {
	if f.useRedis && f.redisClient != nil {
		return "redis"
	}
	return "memory"
}

// RedisClient returns the live client, or nil when Redis is not in use.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}
