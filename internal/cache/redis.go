package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"substock/pkg/models"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func InitRedis(ctx context.Context, addr string) (*redis.Client, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "",
		DB:       0,
	})

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return redisClient, nil
}

// invalidationFence is how long after an invalidation a snapshot may not be cached.
// It must outlast a snapshot read that started before the write committed.
const invalidationFence = 5 * time.Second

// setUnlessFenced writes KEYS[1] only while the fence KEYS[2] is absent.
var setUnlessFenced = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// RedisCache keeps stock snapshots as JSON under stock:snapshot:<id>. Cache failures are
// logged and treated as misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	fence  time.Duration
	logger *zap.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, fence: invalidationFence, logger: logger}
}

func snapshotKey(stockID int) string {
	return fmt.Sprintf("stock:snapshot:%d", stockID)
}

func fenceKey(stockID int) string {
	return fmt.Sprintf("stock:fence:%d", stockID)
}

func (c *RedisCache) Get(ctx context.Context, stockID int) (*models.StockSnapshot, bool) {
	raw, err := c.client.Get(ctx, snapshotKey(stockID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Snapshot cache read failed", zap.Int("stock_id", stockID), zap.Error(err))
		}
		return nil, false
	}

	var snapshot models.StockSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		c.logger.Warn("Dropping unreadable snapshot", zap.Int("stock_id", stockID), zap.Error(err))
		c.Invalidate(ctx, stockID)
		return nil, false
	}

	return &snapshot, true
}

func (c *RedisCache) Set(ctx context.Context, snapshot models.StockSnapshot) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		c.logger.Warn("Unable to encode snapshot", zap.Int("stock_id", snapshot.StockID), zap.Error(err))
		return
	}
	keys := []string{snapshotKey(snapshot.StockID), fenceKey(snapshot.StockID)}
	stored, err := setUnlessFenced.Run(ctx, c.client, keys, raw, c.ttl.Milliseconds()).Int()
	if err != nil {
		c.logger.Warn("Snapshot cache write failed", zap.Int("stock_id", snapshot.StockID), zap.Error(err))
		return
	}
	if stored == 0 {
		c.logger.Debug("Snapshot not cached, stock changed recently", zap.Int("stock_id", snapshot.StockID))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, stockIDs ...int) {
	if len(stockIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(stockIDs))
	pipe := c.client.TxPipeline()
	for _, id := range stockIDs {
		keys = append(keys, snapshotKey(id))
		pipe.Set(ctx, fenceKey(id), 1, c.fence)
	}
	pipe.Del(ctx, keys...)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("Snapshot cache invalidation failed", zap.Ints("stock_ids", stockIDs), zap.Error(err))
	}
}
