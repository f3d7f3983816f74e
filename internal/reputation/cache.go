// internal/reputation/cache.go
package reputation

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Cache sources reported to metrics.
const (
	SourceMemory   = "memory"
	SourceRedis    = "redis"
	SourceUpstream = "upstream"
	SourceFallback = "fallback"
	SourceError    = "error"
)

// RemoteStore is the shared second cache tier. *redis.Client satisfies it.
type RemoteStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache keeps lookups in process memory first and in redis second.
// Values are stored as JSON so every read hands out a fresh copy.
type Cache struct {
	remote   RemoteStore
	logger   *zap.Logger
	memCache *MemoryCache
	ttl      time.Duration
}

// NewCache creates a two-tier cache. remote may be nil for memory only.
func NewCache(remote RemoteStore, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		remote:   remote,
		logger:   logger,
		memCache: NewMemoryCache(ttl),
		ttl:      ttl,
	}
}

// Get decodes the cached value for key into dst and reports which tier
// answered. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, key string, dst interface{}) (source string, ok bool) {
	if data := c.memCache.Get(key); data != nil {
		if err := json.Unmarshal(data, dst); err == nil {
			return SourceMemory, true
		}
		c.memCache.Delete(key)
	}

	if c.remote == nil {
		return "", false
	}

	data, err := c.remote.Get(ctx, key)
	if err != nil {
		return "", false
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		if err := c.remote.Delete(ctx, key); err != nil {
			c.logger.Warn("failed to delete cache entry", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}

	// back-fill the memory tier
	c.memCache.Set(key, []byte(data))
	return SourceRedis, true
}

// Set stores value in both tiers. A redis failure is logged, not returned.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("failed to marshal cache value", zap.String("key", key), zap.Error(err))
		return
	}

	c.memCache.Set(key, data)

	if c.remote == nil {
		return
	}
	if err := c.remote.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("failed to cache in redis", zap.String("key", key), zap.Error(err))
	}
}

// RunCleanup evicts expired memory entries until ctx is done.
func (c *Cache) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.memCache.Evict()
		}
	}
}

// Stats returns cache statistics for the readiness report.
func (c *Cache) Stats() map[string]interface{} {
	return map[string]interface{}{
		"memory_cache_size": c.memCache.Len(),
		"ttl":               c.ttl.String(),
		"redis_enabled":     c.remote != nil,
	}
}

func ipKey(ip string) string   { return "reputation:ip:" + ip }
func binKey(bin string) string { return "reputation:bin:" + bin }

// MemoryCache holds encoded entries with a maximum age.
type MemoryCache struct {
	mu     sync.RWMutex
	data   map[string]cacheEntry
	maxAge time.Duration
	now    func() time.Time
}

type cacheEntry struct {
	value    []byte
	cachedAt time.Time
}

func NewMemoryCache(maxAge time.Duration) *MemoryCache {
	return &MemoryCache{
		data:   make(map[string]cacheEntry),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Get returns nil for missing or expired entries.
func (mc *MemoryCache) Get(key string) []byte {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	entry, exists := mc.data[key]
	if !exists || mc.now().Sub(entry.cachedAt) > mc.maxAge {
		return nil
	}
	return entry.value
}

func (mc *MemoryCache) Set(key string, value []byte) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.data[key] = cacheEntry{value: value, cachedAt: mc.now()}
}

func (mc *MemoryCache) Delete(key string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	delete(mc.data, key)
}

// Evict removes every expired entry.
func (mc *MemoryCache) Evict() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := mc.now()
	for key, entry := range mc.data {
		if now.Sub(entry.cachedAt) > mc.maxAge {
			delete(mc.data, key)
		}
	}
}

func (mc *MemoryCache) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.data)
}
