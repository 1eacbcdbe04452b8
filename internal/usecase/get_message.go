package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/radugaboost/message-inbox/internal/domain/inbox"
)

const defaultMessageCacheTTL = 30 * time.Second

type GetMessage struct {
	redisClient redis.Cmdable
	reader      inbox.Reader
	ttl         time.Duration
}

// NewGetMessage builds the use case. redisClient may be nil, in which case
// every call reads from the store.
func NewGetMessage(redisClient redis.Cmdable, reader inbox.Reader, ttl time.Duration) *GetMessage {
	if ttl <= 0 {
		ttl = defaultMessageCacheTTL
	}
	return &GetMessage{
		redisClient: redisClient,
		reader:      reader,
		ttl:         ttl,
	}
}

// Execute returns the message with the given id. Only processed messages are
// cached since they no longer change.
func (uc *GetMessage) Execute(ctx context.Context, id string) (*inbox.Message, error) {
	cacheKey := fmt.Sprintf("inbox:message:%s", id)

	if uc.redisClient != nil {
		val, err := uc.redisClient.Get(ctx, cacheKey).Bytes()
		if err == nil {
			var msg inbox.Message
			if err := json.Unmarshal(val, &msg); err == nil {
				return &msg, nil
			}
		}
	}

	msg, err := uc.reader.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}

	if uc.redisClient != nil && msg.IsProcessed {
		if data, err := json.Marshal(msg); err == nil {
			uc.redisClient.Set(ctx, cacheKey, data, uc.ttl)
		}
	}

	return msg, nil
}
