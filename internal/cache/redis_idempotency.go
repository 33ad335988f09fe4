// Package cache holds Redis-backed implementations of small key/value
// contracts used by the services layer.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "reflect"

// NewClient parses a redis:// or rediss:// URL into a client. An empty URL is
// an error; callers decide whether Redis is optional.
func NewClient(url string) (*redis.Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("redis url is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// RedisIdempotencyStore maps (user, key) to a result id with SET NX EX, so
// the first writer wins and entries expire on their own.
type RedisIdempotencyStore struct {
	client *redis.Client
	prefix string
	scope  string
	ttl    time.Duration
}

// NewRedisIdempotencyStore returns a store for scope (e.g. "report.generate").
func NewRedisIdempotencyStore(client *redis.Client, prefix, scope string, ttl time.Duration) *RedisIdempotencyStore {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{client: client, prefix: prefix, scope: scope, ttl: ttl}
}

func (s *RedisIdempotencyStore) key(userID, key string) string {
	return s.prefix + ":idem:" + s.scope + ":" + userID + ":" + key
}

// Find returns the result id stored for key. A missing or expired key is
// ("", false, nil).
func (s *RedisIdempotencyStore) Find(ctx context.Context, userID, key string) (string, bool, error) {
	if s == nil || s.client == nil || strings.TrimSpace(key) == "" {
		return "", false, nil
	}
	v, err := s.client.Get(ctx, s.key(userID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Record stores key → resultID unless the key already exists. An existing
// key is not an error: the earlier writer keeps its value.
func (s *RedisIdempotencyStore) Record(ctx context.Context, userID, key, resultID string) error {
	if s == nil || s.client == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	if _, err := s.client.SetNX(ctx, s.key(userID, key), resultID, s.ttl).Result(); err != nil {
		return fmt.Errorf("redis idempotency record: %w", err)
	}
	return nil
}

// Ping checks connectivity. Bootstrap calls it once to choose between Redis
// and the database-backed store.
func (s *RedisIdempotencyStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Ping(ctx).Err()
}
