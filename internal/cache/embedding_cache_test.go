package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestLocalEmbeddingsRoundTrip(t *testing.T) {
	c := NewLocalEmbeddings(2, time.Minute)
	ctx := context.Background()

	_, ok := c.Get(ctx, "u1")
	assert.False(t, ok)

	src := []float64{0.1, 0.2}
	c.Set(ctx, "u1", src)
	src[0] = 9

	got, ok := c.Get(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, []float64{0.1, 0.2}, got)

	c.Invalidate(ctx, "u1")
	_, ok = c.Get(ctx, "u1")
	assert.False(t, ok)
}

func TestLocalEmbeddingsEvictsOldest(t *testing.T) {
	c := NewLocalEmbeddings(2, time.Minute)
	ctx := context.Background()

	c.Set(ctx, "a", []float64{1})
	c.Set(ctx, "b", []float64{2})
	c.Set(ctx, "c", []float64{3})

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestLocalEmbeddingsExpire(t *testing.T) {
	c := NewLocalEmbeddings(4, 20*time.Millisecond)
	ctx := context.Background()
	c.Set(ctx, "a", []float64{1})

	assert.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "a")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestRedisEmbeddings(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	c := NewRedisEmbeddings(rdb, time.Minute, zap.NewNop())
	ctx := context.Background()

	c.Set(ctx, "u1", []float64{0.5, 0.25})
	assert.True(t, mr.Exists(EmbeddingKeyPrefix+"u1"))
	assert.Equal(t, time.Minute, mr.TTL(EmbeddingKeyPrefix+"u1"))

	got, ok := c.Get(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, []float64{0.5, 0.25}, got)

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, "u1")
	assert.False(t, ok)
}

func TestRedisEmbeddingsCorruptValueIsMiss(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	c := NewRedisEmbeddings(rdb, time.Minute, nil)
	require.NoError(t, mr.Set(EmbeddingKeyPrefix+"u1", "not json"))

	_, ok := c.Get(context.Background(), "u1")
	assert.False(t, ok)
	assert.False(t, mr.Exists(EmbeddingKeyPrefix+"u1"))
}

func TestRedisEmbeddingsUnavailableIsMiss(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	c := NewRedisEmbeddings(rdb, time.Minute, zap.NewNop())
	mr.Close()

	c.Set(context.Background(), "u1", []float64{1})
	_, ok := c.Get(context.Background(), "u1")
	assert.False(t, ok)
}

func TestTieredFillsLocalFromShared(t *testing.T) {
	_, rdb := setupTestRedis(t)
	shared := NewRedisEmbeddings(rdb, time.Minute, zap.NewNop())
	local := NewLocalEmbeddings(8, time.Minute)
	c := NewTiered(local, shared)
	ctx := context.Background()

	shared.Set(ctx, "u1", []float64{1, 2})
	got, ok := c.Get(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, got)
	assert.Equal(t, 1, local.Len())

	c.Invalidate(ctx, "u1")
	_, ok = c.Get(ctx, "u1")
	assert.False(t, ok)
}
