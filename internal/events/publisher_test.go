package events

import (
	"context"
	"encoding/json"
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

func TestRedisPublisherDeliversJSON(t *testing.T) {
	_, rdb := setupTestRedis(t)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, "proctoring_enforcement")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	p := NewRedisPublisher(rdb, zap.NewNop())
	require.NoError(t, p.Publish(ctx, "proctoring_enforcement", map[string]any{"sessionId": "s1", "recommendation": "terminated"}))

	select {
	case msg := <-sub.Channel():
		var got map[string]string
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "s1", got["sessionId"])
		assert.Equal(t, "terminated", got["recommendation"])
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestRedisPublisherErrors(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	p := NewRedisPublisher(rdb, nil)

	assert.Error(t, p.Publish(context.Background(), "c", func() {}))

	mr.Close()
	assert.Error(t, p.Publish(context.Background(), "c", "x"))
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, Nop{}.Publish(context.Background(), "c", nil))
}
