package source

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores search responses for a short time.
type Cache interface {
	Get(ctx context.Context, key string) ([]Item, bool, error)
	Set(ctx context.Context, key string, items []Item, ttl time.Duration) error
}

// RedisCache keeps responses as JSON strings with an expiry.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache wraps an existing client. Keys are namespaced by prefix.
func NewRedisCache(rdb *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "bestpick"
	}
	return &RedisCache{rdb: rdb, prefix: prefix}
}

func (c *RedisCache) key(k string) string {
	return fmt.Sprintf("%s:search:%s", c.prefix, k)
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]Item, bool, error) {
	b, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var items []Item
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return items, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, items []Item, ttl time.Duration) error {
	b, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(key), b, ttl).Err()
}

// DefaultTTL returns the revalidation window used for each channel.
func DefaultTTL(name string) time.Duration {
	switch name {
	case "reddit":
		return 5 * time.Minute
	case "youtube":
		return 10 * time.Minute
	default:
		return 15 * time.Minute
	}
}

// CachedSearcher serves repeated queries from a Cache. Cache failures are
// logged and fall through to the wrapped searcher.
type CachedSearcher struct {
	next  Searcher
	cache Cache
	label string
	ttl   time.Duration
}

// Cached wraps next. label distinguishes searchers that share a SourceType.
func Cached(next Searcher, cache Cache, label string, ttl time.Duration) *CachedSearcher {
	if label == "" {
		label = string(next.Name())
	}
	if ttl <= 0 {
		ttl = DefaultTTL(label)
	}
	return &CachedSearcher{next: next, cache: cache, label: label, ttl: ttl}
}

func (c *CachedSearcher) Name() SourceType { return c.next.Name() }

func (c *CachedSearcher) Search(ctx context.Context, query string) ([]Item, error) {
	key := cacheKey(c.label, query)

	items, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("cache: get failed", "searcher", c.label, "err", err)
	} else if ok {
		return items, nil
	}

	items, err = c.next.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, items, c.ttl); err != nil {
		slog.Warn("cache: set failed", "searcher", c.label, "err", err)
	}
	return items, nil
}

func cacheKey(label, query string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return label + ":" + hex.EncodeToString(sum[:])
}
