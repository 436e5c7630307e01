package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agora/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	PostKeyPrefix        = "post:%s"
	ProgressionKeyPrefix = "progression:%s"
)

const (
	PostTTL        = 30 * time.Minute
	ProgressionTTL = 5 * time.Minute
)

func PostKey(postID string) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

func ProgressionKey(userID string) string {
	return fmt.Sprintf(ProgressionKeyPrefix, userID)
}

// Cache is a JSON cache-aside helper. A nil Redis client turns every call
// into a pass-through.
type Cache struct {
	rdb *redis.Client
}

// New wraps rdb, which may be nil.
func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// GetJSON attempts to get the key from Redis and unmarshal into dest.
// Returns (true, nil) if found and unmarshaled, (false, nil) if not found.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, nil
	}
	s, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and sets the key with TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}

// Aside tries Redis first, on miss it calls fetch (which must populate
// dest), then stores the result with ttl. Redis failures degrade to fetch.
func (c *Cache) Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	found, err := c.GetJSON(ctx, key, dest)
	if err == nil && found {
		observability.CacheRequests.WithLabelValues("hit").Inc()
		return nil
	}
	if err != nil {
		observability.CacheRequests.WithLabelValues("error").Inc()
	} else {
		observability.CacheRequests.WithLabelValues("miss").Inc()
	}

	if err := fetch(); err != nil {
		return err
	}

	// Best-effort.
	_ = c.SetJSON(ctx, key, dest, ttl)
	return nil
}

// Invalidate drops keys after a write.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || c.rdb == nil || len(keys) == 0 {
		return
	}
	c.rdb.Del(ctx, keys...)
}
