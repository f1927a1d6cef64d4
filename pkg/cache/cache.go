// Package cache is a thin JSON read-cache over Redis with the key
// conventions used across the service.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// CategoryTreeKey holds the serialized category tree.
func CategoryTreeKey() string { return "shopcore:catalog:category_tree" }

// RateLimitUserKey scopes the sliding-window limiter per user.
func RateLimitUserKey(route string, userID int64) string {
	return fmt.Sprintf("shopcore:rate_limit:%s:user:%d", route, userID)
}

// RateLimitIPKey is the fallback scope when no principal is present.
func RateLimitIPKey(route, ip string) string {
	return fmt.Sprintf("shopcore:rate_limit:%s:ip:%s", route, ip)
}

// Cache stores JSON values with a fixed TTL.
type Cache struct {
	rdb *rd.Client
	ttl time.Duration
}

func New(rdb *rd.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// Get unmarshals the cached value into out. The second return is
// false on a miss.
func (c *Cache) Get(ctx context.Context, key string, out any) (bool, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(val, out); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores v as JSON under key with the cache's TTL.
func (c *Cache) Set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}

// Delete drops the given keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}
