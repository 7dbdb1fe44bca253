package cache

import (
	"context"
	"os"
	"substock/pkg/models"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSnapshotKey(t *testing.T) {
	assert.Equal(t, "stock:snapshot:42", snapshotKey(42))
	assert.Equal(t, "stock:fence:42", fenceKey(42))
}

func liveRedis(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client, err := InitRedis(context.Background(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisCache_ReadThenSetAfterInvalidateIsDropped(t *testing.T) {
	client := liveRedis(t)
	c := NewRedisCache(client, time.Minute, zap.NewNop())
	c.fence = 200 * time.Millisecond
	ctx := context.Background()
	stockID := int(time.Now().UnixNano() % 1_000_000_000)
	t.Cleanup(func() { client.Del(ctx, snapshotKey(stockID), fenceKey(stockID)) })

	// A reader loaded version 3, then a writer committed version 4 and invalidated.
	stale := models.StockSnapshot{StockID: stockID, TotalQuantity: 100, Version: 3}
	c.Invalidate(ctx, stockID)
	c.Set(ctx, stale)

	_, ok := c.Get(ctx, stockID)
	assert.False(t, ok)

	require.Eventually(t, func() bool {
		return client.Exists(ctx, fenceKey(stockID)).Val() == 0
	}, 2*time.Second, 20*time.Millisecond)

	fresh := models.StockSnapshot{StockID: stockID, TotalQuantity: 90, Version: 4}
	c.Set(ctx, fresh)
	cached, ok := c.Get(ctx, stockID)
	require.True(t, ok)
	assert.Equal(t, 4, cached.Version)
	assert.Equal(t, 90, cached.TotalQuantity)
}

func TestRedisCache_UnreachableServerIsAMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	c := NewRedisCache(client, time.Minute, zap.NewNop())
	ctx := context.Background()

	assert.NotPanics(t, func() {
		c.Set(ctx, models.StockSnapshot{StockID: 1, TotalQuantity: 10})
		c.Invalidate(ctx, 1, 2)
		c.Invalidate(ctx)
	})

	snapshot, ok := c.Get(ctx, 1)
	assert.False(t, ok)
	assert.Nil(t, snapshot)
}

func TestNoopCache(t *testing.T) {
	var c SnapshotCache = NoopCache{}
	c.Set(context.Background(), models.StockSnapshot{StockID: 1})

	_, ok := c.Get(context.Background(), 1)
	assert.False(t, ok)
}
