package quote

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores locked breakdown responses in Redis. Only locked quotes are
// cached: they are immutable, so a hit can never serve a stale price.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(token string) string {
	return "pricing:breakdown:" + token
}

// Get reports whether a locked breakdown for the token is cached.
func (c *Cache) Get(ctx context.Context, token string) (QuoteResponse, bool) {
	if c == nil || c.client == nil || token == "" {
		return QuoteResponse{}, false
	}
	data, err := c.client.Get(ctx, cacheKey(token)).Bytes()
	if err != nil {
		return QuoteResponse{}, false
	}
	var resp QuoteResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return QuoteResponse{}, false
	}
	return resp, true
}

// Set caches a breakdown response if it is locked; unlocked quotes are
// skipped so a later confirm is always read from the store.
func (c *Cache) Set(ctx context.Context, resp QuoteResponse) {
	if c == nil || c.client == nil || !resp.Locked || resp.BreakdownToken == "" {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	c.client.Set(ctx, cacheKey(resp.BreakdownToken), data, c.ttl)
}
