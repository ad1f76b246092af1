package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL constants
const (
	TTLProduct  = 10 * time.Minute // product detail (low change rate outside applies)
	TTLSchedule = 1 * time.Minute  // scheduled-revision listings
	TTLDefault  = 5 * time.Minute
)

// Cache key prefixes
const (
	PrefixProduct  = "product:"
	PrefixSchedule = "schedules:"
)

// Service is the Redis cache used by the read surfaces. The apply engine
// purges product entries through it after every successful publish.
type Service interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	GetProduct(ctx context.Context, productID uint64) ([]byte, error)
	SetProduct(ctx context.Context, productID uint64, data interface{}) error
	InvalidateProduct(ctx context.Context, productID uint64) error
	InvalidateSchedules(ctx context.Context) error

	IsAvailable() bool
}

type redisCache struct {
	client *redis.Client
}

// NewService creates a cache service backed by the given Redis client
func NewService(client *redis.Client) Service {
	return &redisCache{client: client}
}

func (c *redisCache) IsAvailable() bool {
	return c.client != nil
}

func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return fmt.Errorf("redis not available")
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, dest)
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.client == nil {
		return nil // no Redis, skip silently
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *redisCache) productKey(productID uint64) string {
	return PrefixProduct + strconv.FormatUint(productID, 10)
}

func (c *redisCache) GetProduct(ctx context.Context, productID uint64) ([]byte, error) {
	if c.client == nil {
		return nil, fmt.Errorf("redis not available")
	}
	return c.client.Get(ctx, c.productKey(productID)).Bytes()
}

func (c *redisCache) SetProduct(ctx context.Context, productID uint64, data interface{}) error {
	if c.client == nil {
		return nil
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.productKey(productID), jsonData, TTLProduct).Err()
}

func (c *redisCache) InvalidateProduct(ctx context.Context, productID uint64) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.productKey(productID)).Err()
}

func (c *redisCache) InvalidateSchedules(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.deleteByPattern(ctx, PrefixSchedule+"*")
}

func (c *redisCache) deleteByPattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
