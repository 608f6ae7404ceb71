package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultTTL  = 5 * time.Minute
	DefaultSize = 1024

	EmbeddingKeyPrefix = "face_embedding:"
)

// LocalEmbeddings is an in-process cache of enrolled embeddings with a
// bounded size and per-entry expiry.
type LocalEmbeddings struct {
	lru *expirable.LRU[string, []float64]
}

func NewLocalEmbeddings(size int, ttl time.Duration) *LocalEmbeddings {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LocalEmbeddings{lru: expirable.NewLRU[string, []float64](size, nil, ttl)}
}

func (c *LocalEmbeddings) Get(_ context.Context, userID string) ([]float64, bool) {
	v, ok := c.lru.Get(userID)
	if !ok {
		return nil, false
	}
	return clone(v), true
}

func (c *LocalEmbeddings) Set(_ context.Context, userID string, embedding []float64) {
	c.lru.Add(userID, clone(embedding))
}

func (c *LocalEmbeddings) Invalidate(_ context.Context, userID string) {
	c.lru.Remove(userID)
}

func (c *LocalEmbeddings) Len() int { return c.lru.Len() }

// RedisEmbeddings shares cached embeddings across instances. Failures are
// logged and treated as misses.
type RedisEmbeddings struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisEmbeddings(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisEmbeddings {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisEmbeddings{rdb: rdb, ttl: ttl, logger: logger}
}

func (c *RedisEmbeddings) Get(ctx context.Context, userID string) ([]float64, bool) {
	data, err := c.rdb.Get(ctx, EmbeddingKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("embedding cache read failed", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil || len(v) == 0 {
		c.logger.Warn("discarding corrupt cached embedding", zap.String("user_id", userID))
		c.rdb.Del(ctx, EmbeddingKeyPrefix+userID)
		return nil, false
	}
	return v, true
}

func (c *RedisEmbeddings) Set(ctx context.Context, userID string, embedding []float64) {
	data, err := json.Marshal(embedding)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, EmbeddingKeyPrefix+userID, data, c.ttl).Err(); err != nil {
		c.logger.Warn("embedding cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (c *RedisEmbeddings) Invalidate(ctx context.Context, userID string) {
	if err := c.rdb.Del(ctx, EmbeddingKeyPrefix+userID).Err(); err != nil {
		c.logger.Warn("embedding cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}

type embeddingCache interface {
	Get(ctx context.Context, userID string) ([]float64, bool)
	Set(ctx context.Context, userID string, embedding []float64)
	Invalidate(ctx context.Context, userID string)
}

// Tiered checks the local cache before the shared one and fills the local
// cache on a shared hit.
type Tiered struct {
	local  embeddingCache
	shared embeddingCache
}

func NewTiered(local, shared embeddingCache) *Tiered {
	return &Tiered{local: local, shared: shared}
}

func (t *Tiered) Get(ctx context.Context, userID string) ([]float64, bool) {
	if v, ok := t.local.Get(ctx, userID); ok {
		return v, true
	}
	v, ok := t.shared.Get(ctx, userID)
	if ok {
		t.local.Set(ctx, userID, v)
	}
	return v, ok
}

func (t *Tiered) Set(ctx context.Context, userID string, embedding []float64) {
	t.local.Set(ctx, userID, embedding)
	t.shared.Set(ctx, userID, embedding)
}

func (t *Tiered) Invalidate(ctx context.Context, userID string) {
	t.shared.Invalidate(ctx, userID)
	t.local.Invalidate(ctx, userID)
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
