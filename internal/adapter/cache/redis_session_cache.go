package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/majidsafwaan2/gymguard/internal/domain"
	"github.com/majidsafwaan2/gymguard/internal/repository"
)

const sessionKeyPrefix = "session:"

// RedisSessionCache implements SessionCache backed by Redis. Postgres stays
// authoritative; this cache serves the degraded-provider fallback and fast
// activity touches.
type RedisSessionCache struct {
	client redis.UniversalClient
}

var _ repository.SessionCache = (*RedisSessionCache)(nil)

// NewRedisSessionCache constructs a Redis-backed session cache.
func NewRedisSessionCache(client redis.UniversalClient) *RedisSessionCache {
	return &RedisSessionCache{client: client}
}

// Save stores the encoded session payload with TTL.
func (c *RedisSessionCache) Save(ctx context.Context, session domain.Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := c.client.Set(ctx, sessionKeyPrefix+session.Token, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Get loads and decodes the session payload. A miss returns (nil, nil).
func (c *RedisSessionCache) Get(ctx context.Context, token string) (*domain.Session, error) {
	bytes, err := c.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var session domain.Session
	if err := json.Unmarshal(bytes, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// Delete removes the cached session.
func (c *RedisSessionCache) Delete(ctx context.Context, token string) error {
	if err := c.client.Del(ctx, sessionKeyPrefix+token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteAll removes a batch of cached sessions, used by cascade revocation.
func (c *RedisSessionCache) DeleteAll(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tokens))
	for _, token := range tokens {
		keys = append(keys, sessionKeyPrefix+token)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	return nil
}
