package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const statsTimeout = 2 * time.Second

// RedisCache shares court tokens between service instances.
type RedisCache struct {
	client *redis.Client
	prefix string
	now    func() time.Time

	mu    sync.Mutex
	stats CacheStats
}

// NewRedisCache wraps an existing client. Keys are namespaced with prefix.
func NewRedisCache(client *redis.Client, prefix string, now func() time.Time) *RedisCache {
	if now == nil {
		now = time.Now
	}
	return &RedisCache{client: client, prefix: prefix, now: now}
}

func (c *RedisCache) Get(ctx context.Context, courtID uint) (Token, bool) {
	now := c.now()
	token, err := c.load(ctx, courtID)
	hit := err == nil && token.ValidAt(now)

	c.mu.Lock()
	c.stats.LastAccess = now
	if hit {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	c.mu.Unlock()

	if !hit {
		return Token{}, false
	}
	return token, true
}

func (c *RedisCache) load(ctx context.Context, courtID uint) (Token, error) {
	raw, err := c.client.Get(ctx, c.prefix+key(courtID)).Bytes()
	if err != nil {
		return Token{}, err
	}
	var token Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return Token{}, err
	}
	return token, nil
}

func (c *RedisCache) Set(ctx context.Context, courtID uint, token Token) error {
	ttl := token.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return errors.New("token already expired")
	}
	raw, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key(courtID), raw, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, courtID uint) {
	c.client.Del(ctx, c.prefix+key(courtID))
}

func (c *RedisCache) Clear(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, c.pattern(), 100).Iterator()
	for iter.Next(ctx) {
		c.client.Del(ctx, iter.Val())
	}

	c.mu.Lock()
	c.stats = CacheStats{}
	c.mu.Unlock()
}

// Stats reports hits and misses of this instance. Size counts the token
// keys under the prefix, shared by every instance.
func (c *RedisCache) Stats() CacheStats {
	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()

	size := 0
	iter := c.client.Scan(ctx, 0, c.pattern(), 100).Iterator()
	for iter.Next(ctx) {
		size++
	}

	c.mu.Lock()
	stats := c.stats
	c.mu.Unlock()

	if iter.Err() == nil {
		stats.Size = size
	}
	return stats
}

func (c *RedisCache) pattern() string {
	return c.prefix + "court_api_token:*"
}
