package redis

import (
	"context"
	"fmt"
	"strings"

	"campusconnect/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schemaVersionKey     = keyPrefix + "schema:version"
	currentSchemaVersion = 1
)

// migration upgrades the stored layout to Version.
type migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client) error
}

// Migrate applies every migration newer than the stored schema version and
// records each version as it completes, so an interrupted run resumes.
func Migrate(ctx context.Context, client *redis.Client, log *zap.SugaredLogger) error {
	if log == nil {
		log = logger.Nop()
	}

	version, err := schemaVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= currentSchemaVersion {
		log.Debugw("conversation schema up to date", "version", version)
		return nil
	}

	for _, m := range migrations() {
		if m.Version <= version {
			continue
		}
		if err := m.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %d: %w", m.Version, err)
		}
		if err := client.Set(ctx, schemaVersionKey, m.Version, 0).Err(); err != nil {
			return fmt.Errorf("record schema version %d: %w", m.Version, err)
		}
		log.Infow("conversation schema migrated", "from", version, "to", m.Version)
		version = m.Version
	}
	return nil
}

func schemaVersion(ctx context.Context, client *redis.Client) (int, error) {
	v, err := client.Get(ctx, schemaVersionKey).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

func migrations() []migration {
	return []migration{
		{
			Version: 1,
			// Conversations written before the index set existed are found
			// by key pattern and added to it.
			Up: func(ctx context.Context, client *redis.Client) error {
				pattern := keyPrefix + "conversation:*"
				iter := client.Scan(ctx, 0, pattern, 100).Iterator()
				for iter.Next(ctx) {
					key := iter.Val()
					id, ok := conversationIDFromKey(key)
					if !ok {
						continue
					}
					if err := client.SAdd(ctx, conversationIndexKey(), id).Err(); err != nil {
						return err
					}
				}
				return iter.Err()
			},
		},
	}
}

// conversationIDFromKey extracts the id from a conversation hash key and
// rejects message set keys.
func conversationIDFromKey(key string) (string, bool) {
	id := strings.TrimPrefix(key, keyPrefix+"conversation:")
	if id == key || id == "" || strings.HasSuffix(id, ":messages") {
		return "", false
	}
	return id, true
}
