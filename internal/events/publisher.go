package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher fans proctoring events out over redis pub/sub.
type RedisPublisher struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisPublisher(rdb *redis.Client, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{rdb: rdb, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	receivers, err := p.rdb.Publish(ctx, channel, data).Result()
	if err != nil {
		return err
	}
	p.logger.Debug("event published", zap.String("channel", channel), zap.Int64("receivers", receivers))
	return nil
}

// Nop drops every event. It is used when no redis address is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
