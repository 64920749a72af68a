package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const tierKeyPrefix = "shipping:tier:"

// tierEntry is what the cache stores per region and method. Found=false
// records that no active tier exists so misses are not re-queried until the
// entry expires.
type tierEntry struct {
	Found bool  `json:"found"`
	Fee   int64 `json:"fee"`
}

// Cache is a read-through Redis cache of shipping fee tiers. A nil Cache, a
// nil client or a non-positive TTL disables it.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewCache(client redis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

func tierKey(region, method string) string {
	return tierKeyPrefix + strings.ToLower(strings.TrimSpace(region)) + ":" + method
}

func (c *Cache) get(ctx context.Context, region, method string) (tierEntry, bool, error) {
	if !c.enabled() {
		return tierEntry{}, false, nil
	}
	data, err := c.client.Get(ctx, tierKey(region, method)).Bytes()
	if errors.Is(err, redis.Nil) {
		return tierEntry{}, false, nil
	}
	if err != nil {
		return tierEntry{}, false, err
	}
	var entry tierEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return tierEntry{}, false, err
	}
	return entry, true, nil
}

func (c *Cache) put(ctx context.Context, region, method string, entry tierEntry) error {
	if !c.enabled() {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, tierKey(region, method), data, c.ttl).Err()
}

// Invalidate drops the cached tier for region and method, for use after an
// operator edits the tier table.
func (c *Cache) Invalidate(ctx context.Context, region, method string) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Del(ctx, tierKey(region, method)).Err()
}
