package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/almoxweb/almoxweb/internal/users"
)

// Cache is a read-through layer in front of the session table. Postgres
// stays authoritative: entries are bounded by a short TTL and dropped
// eagerly on revocation, and any Redis failure falls back to the store.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

type cachedResolution struct {
	User      users.User `json:"user"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// NewCache constructs a Cache. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(token string) string {
	return "session:" + token
}

// Get returns the cached resolution for token, or nil on miss.
func (c *Cache) Get(ctx context.Context, token string) (*users.User, time.Time, bool) {
	if c == nil || c.client == nil {
		return nil, time.Time{}, false
	}
	payload, err := c.client.Get(ctx, cacheKey(token)).Bytes()
	if err != nil {
		return nil, time.Time{}, false
	}
	var stored cachedResolution
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, time.Time{}, false
	}
	return &stored.User, stored.ExpiresAt, true
}

// Set stores a resolution, capping the entry lifetime at both the cache
// TTL and the session's own expiry.
func (c *Cache) Set(ctx context.Context, token string, user *users.User, expiresAt time.Time) {
	if c == nil || c.client == nil || user == nil {
		return
	}
	ttl := c.ttl
	if until := time.Until(expiresAt); until < ttl {
		ttl = until
	}
	if ttl <= 0 {
		return
	}
	payload, err := json.Marshal(cachedResolution{User: *user, ExpiresAt: expiresAt})
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, cacheKey(token), payload, ttl).Err()
}

// Invalidate drops the cached resolution for the given tokens.
func (c *Cache) Invalidate(ctx context.Context, tokens ...string) error {
	if c == nil || c.client == nil || len(tokens) == 0 {
		return nil
	}
	keys := make([]string, len(tokens))
	for i, token := range tokens {
		keys[i] = cacheKey(token)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
