package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetJSON decodes the value stored at key into dst. It reports false when
// the key does not exist.
func (c *Cache) GetJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	val, err := c.client.Get(ctx, "cache:"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "cache get")
	}
	if err := json.Unmarshal(val, dst); err != nil {
		return false, errors.Wrap(err, "cache decode")
	}
	return true, nil
}

func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "cache encode")
	}
	return errors.Wrap(c.client.Set(ctx, "cache:"+key, data, ttl).Err(), "cache set")
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return errors.Wrap(c.client.Del(ctx, "cache:"+key).Err(), "cache delete")
}

// Incr bumps a fixed-window counter and returns its new value. The window
// starts on the first increment.
func (c *Cache) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	fullKey := "rl:" + key

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.Wrap(err, "rate counter")
	}
	return incr.Val(), nil
}
