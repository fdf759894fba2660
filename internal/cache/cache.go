package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Token is a bearer token together with the moment the cache stops trusting it.
type Token struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidAt reports whether the token may still be used at now.
func (t Token) ValidAt(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// TokenCache stores one token per court.
type TokenCache interface {
	Get(ctx context.Context, courtID uint) (Token, bool)
	Set(ctx context.Context, courtID uint, token Token) error
	Delete(ctx context.Context, courtID uint)
	Clear(ctx context.Context)
	Stats() CacheStats
}

type CacheStats struct {
	Hits       int64     `json:"hits"`
	Misses     int64     `json:"misses"`
	Size       int       `json:"size"`
	LastAccess time.Time `json:"last_access"`
}

// MemoryCache keeps tokens in process. Expiry is decided by the injected
// clock; go-cache only evicts entries that are long dead.
type MemoryCache struct {
	cache   *cache.Cache
	mu      sync.RWMutex
	stats   CacheStats
	maxSize int
	now     func() time.Time
}

// NewMemoryCache creates an in-process token cache holding at most maxSize
// courts. Entries are evicted by go-cache after evictAfter.
func NewMemoryCache(maxSize int, evictAfter time.Duration, now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		cache:   cache.New(evictAfter, evictAfter*2),
		maxSize: maxSize,
		now:     now,
	}
}

func (c *MemoryCache) Get(_ context.Context, courtID uint) (Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.stats.LastAccess = now

	if data, found := c.cache.Get(key(courtID)); found {
		if token, ok := data.(Token); ok && token.ValidAt(now) {
			c.stats.Hits++
			return token, true
		}
	}

	c.stats.Misses++
	return Token{}, false
}

func (c *MemoryCache) Set(_ context.Context, courtID uint, token Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(courtID)
	if _, exists := c.cache.Get(k); !exists && c.maxSize > 0 && c.cache.ItemCount() >= c.maxSize {
		c.removeOldest()
	}

	c.cache.Set(k, token, cache.DefaultExpiration)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, courtID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Delete(key(courtID))
}

func (c *MemoryCache) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Flush()
	c.stats = CacheStats{}
}

func (c *MemoryCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Size = c.cache.ItemCount()
	return stats
}

// removeOldest drops the token that expires first.
func (c *MemoryCache) removeOldest() {
	items := c.cache.Items()
	if len(items) == 0 {
		return
	}

	var oldestKey string
	var oldest time.Time

	for k, item := range items {
		token, ok := item.Object.(Token)
		if !ok {
			oldestKey = k
			break
		}
		if oldestKey == "" || token.ExpiresAt.Before(oldest) {
			oldestKey = k
			oldest = token.ExpiresAt
		}
	}

	if oldestKey != "" {
		c.cache.Delete(oldestKey)
	}
}

func key(courtID uint) string {
	return fmt.Sprintf("court_api_token:%d", courtID)
}
