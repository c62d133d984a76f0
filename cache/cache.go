// Package cache implements the two-tier response cache of SPEC_FULL.md
// §2/§4.3: an in-process LRU fronting a shared Redis tier, grounded on the
// teacher's llm/cache/prompt_cache.go MultiLevelCache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/BaSui01/llmgateway/adapter"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrMiss is returned by Get when the key is absent from both tiers.
var ErrMiss = errors.New("cache miss")

// Entry is one cached response.
type Entry struct {
	Response  *adapter.ChatResponse `json:"response"`
	CreatedAt time.Time             `json:"created_at"`
	ExpiresAt time.Time             `json:"expires_at"`
}

// Config tunes the two cache tiers.
type Config struct {
	LocalMaxSize int
	LocalTTL     time.Duration
	RedisTTL     time.Duration
	EnableLocal  bool
	EnableRedis  bool
	KeyPrefix    string
}

// DefaultConfig mirrors the teacher's DefaultCacheConfig sizing.
func DefaultConfig() Config {
	return Config{
		LocalMaxSize: 1000,
		LocalTTL:     5 * time.Minute,
		RedisTTL:     time.Hour,
		EnableLocal:  true,
		EnableRedis:  true,
	}
}

// Cache is the two-tier response cache. Callers must gate calls to
// Set/Get on IsCacheable per SPEC_FULL.md §3: streaming responses
// (Stream == true) are never cached.
type Cache struct {
	local  *LRUCache
	redis  *redis.Client
	config Config
	logger *zap.Logger
}

// New builds a Cache. rdb may be nil, in which case EnableRedis is
// treated as false regardless of config.
func New(rdb *redis.Client, config Config, logger *zap.Logger) *Cache {
	var local *LRUCache
	if config.EnableLocal {
		local = NewLRUCache(config.LocalMaxSize, config.LocalTTL)
	}
	if rdb == nil {
		config.EnableRedis = false
	}
	return &Cache{local: local, redis: rdb, config: config, logger: logger}
}

// IsCacheable reports whether req is eligible for caching at all: the
// SPEC_FULL.md §3 gate is Stream == false, generalized from the
// teacher's CacheableCheck reflection gate (which instead checked for an
// empty Tools slice).
func IsCacheable(req *adapter.ChatRequest) bool {
	return !req.Stream
}

// Get looks up key, checking the local tier before Redis and back-filling
// the local tier on a Redis hit.
func (c *Cache) Get(ctx context.Context, key string) (*Entry, error) {
	if c.config.EnableLocal && c.local != nil {
		if entry, ok := c.local.Get(key); ok {
			c.logger.Debug("cache hit (local)", zap.String("key", key))
			return entry, nil
		}
	}

	if c.config.EnableRedis && c.redis != nil {
		data, err := c.redis.Get(ctx, c.redisKey(key)).Bytes()
		if err == nil {
			var entry Entry
			if jerr := json.Unmarshal(data, &entry); jerr == nil {
				if c.config.EnableLocal && c.local != nil {
					c.local.Set(key, &entry)
				}
				c.logger.Debug("cache hit (redis)", zap.String("key", key))
				return &entry, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get error", zap.Error(err))
		}
	}

	return nil, ErrMiss
}

// Set stores resp under key in both tiers.
func (c *Cache) Set(ctx context.Context, key string, resp *adapter.ChatResponse) error {
	entry := &Entry{
		Response:  resp,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(c.config.RedisTTL),
	}

	if c.config.EnableLocal && c.local != nil {
		c.local.Set(key, entry)
	}

	if c.config.EnableRedis && c.redis != nil {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := c.redis.Set(ctx, c.redisKey(key), data, c.config.RedisTTL).Err(); err != nil {
			c.logger.Warn("redis set error", zap.Error(err))
			return err
		}
	}

	c.logger.Debug("cache set", zap.String("key", key))
	return nil
}

// Delete removes key from both tiers.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c.config.EnableLocal && c.local != nil {
		c.local.Delete(key)
	}
	if c.config.EnableRedis && c.redis != nil {
		return c.redis.Del(ctx, c.redisKey(key)).Err()
	}
	return nil
}

func (c *Cache) redisKey(key string) string {
	prefix := c.config.KeyPrefix
	if prefix == "" {
		prefix = "gateway:prompt_cache:"
	}
	return prefix + key
}
