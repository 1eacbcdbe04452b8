package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const seenKeyPrefix = "inbox:seen:"

// SeenCache remembers message ids the writer has already stored so
// redeliveries can skip the database round trip. Entries expire after ttl.
type SeenCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewSeenCache(client redis.Cmdable, ttl time.Duration) *SeenCache {
	return &SeenCache{client: client, ttl: ttl}
}

func (c *SeenCache) Seen(ctx context.Context, messageID string) (bool, error) {
	n, err := c.client.Exists(ctx, seenKeyPrefix+messageID).Result()
	if err != nil {
		return false, fmt.Errorf("check seen message: %w", err)
	}
	return n > 0, nil
}

func (c *SeenCache) Remember(ctx context.Context, messageID string) error {
	if err := c.client.Set(ctx, seenKeyPrefix+messageID, 1, c.ttl).Err(); err != nil {
		return fmt.Errorf("remember message: %w", err)
	}
	return nil
}
