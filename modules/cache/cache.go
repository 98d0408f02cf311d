// Package cache provides a Redis-backed cache for community history pages,
// using the cache-aside pattern with singleflight load deduplication. When
// no Redis client is configured the cache degrades to a pass-through and
// every read hits the loader.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/quitmate/realtime/domain/chat"
)

// HistoryCache caches history pages per (community, cursor, limit).
type HistoryCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	group  singleflight.Group
	stats  Stats
}

// Stats tracks cache statistics.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Errors uint64 `json:"errors"`
}

// New creates a new history cache. client may be nil for pass-through mode.
func New(client *redis.Client, prefix string, ttl time.Duration) *HistoryCache {
	return &HistoryCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Enabled reports whether a Redis backend is configured.
func (c *HistoryCache) Enabled() bool {
	return c.client != nil
}

// GetHistory returns the cached page for the key, or runs loader and caches
// its result. Concurrent loads for the same key are collapsed.
func (c *HistoryCache) GetHistory(
	ctx context.Context,
	communityID, beforeID string,
	limit int,
	loader func() ([]chat.Message, error),
) ([]chat.Message, error) {
	if c.client == nil {
		return loader()
	}

	key := c.pageKey(communityID, beforeID, limit)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var page []chat.Message
		if err := json.Unmarshal(data, &page); err == nil {
			atomic.AddUint64(&c.stats.Hits, 1)
			return page, nil
		}
		atomic.AddUint64(&c.stats.Errors, 1)
	} else if err != redis.Nil {
		atomic.AddUint64(&c.stats.Errors, 1)
	}
	atomic.AddUint64(&c.stats.Misses, 1)

	result, err, _ := c.group.Do(key, func() (any, error) {
		page, err := loader()
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(page); err == nil {
			if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
				atomic.AddUint64(&c.stats.Errors, 1)
			}
		}
		return page, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]chat.Message), nil
}

// InvalidateCommunity drops every cached page for a community. Called when
// any message in that community changes.
func (c *HistoryCache) InvalidateCommunity(ctx context.Context, communityID string) error {
	if c.client == nil {
		return nil
	}

	pattern := c.prefix + "history:" + communityID + ":*"
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			atomic.AddUint64(&c.stats.Errors, 1)
			return fmt.Errorf("cache scan error: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				atomic.AddUint64(&c.stats.Errors, 1)
				return fmt.Errorf("cache del error: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Snapshot returns the current cache statistics.
func (c *HistoryCache) Snapshot() Stats {
	return Stats{
		Hits:   atomic.LoadUint64(&c.stats.Hits),
		Misses: atomic.LoadUint64(&c.stats.Misses),
		Errors: atomic.LoadUint64(&c.stats.Errors),
	}
}

func (c *HistoryCache) pageKey(communityID, beforeID string, limit int) string {
	if beforeID == "" {
		beforeID = "latest"
	}
	return fmt.Sprintf("%shistory:%s:%s:%d", c.prefix, communityID, beforeID, limit)
}
