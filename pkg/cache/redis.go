package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// RedisStore shares cached images between proxy instances.
type RedisStore struct {
	redis     *redis.Client
	namespace string
	metrics   *Metrics
}

// NewRedisStore creates a shared cache backed by Redis. A nil m uses a
// private registry.
func NewRedisStore(redisClient *redis.Client, namespace string, m *Metrics) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	return &RedisStore{
		redis:     redisClient,
		namespace: namespace,
		metrics:   m,
	}
}

func (r *RedisStore) key(path string) string {
	return CacheKey{Namespace: r.namespace, Path: path}.String()
}

// Get retrieves a cache entry by path.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (r *RedisStore) Get(ctx context.Context, path string) (*Entry, error) {
	data, err := r.redis.Get(ctx, r.key(path)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.metrics.Misses.WithLabelValues("redis").Inc()
			return nil, ErrCacheMiss
		}
		r.metrics.Errors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		r.metrics.Errors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if entry.Asset == nil {
		r.metrics.Errors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: missing asset", ErrInvalidEntry)
	}

	if entry.IsExpired() {
		_, _ = r.Delete(ctx, path)
		r.metrics.Misses.WithLabelValues("redis").Inc()
		return nil, ErrCacheMiss
	}

	r.metrics.Hits.WithLabelValues("redis").Inc()
	return &entry, nil
}

// Set stores a cache entry with a Redis TTL matching ExpiresAt.
func (r *RedisStore) Set(ctx context.Context, path string, entry *Entry) error {
	if entry == nil || entry.Asset == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		// Already expired, don't cache
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		r.metrics.Errors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := r.redis.Set(ctx, r.key(path), data, ttl).Err(); err != nil {
		r.metrics.Errors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a cache entry and reports whether it existed.
func (r *RedisStore) Delete(ctx context.Context, path string) (bool, error) {
	n, err := r.redis.Del(ctx, r.key(path)).Result()
	if err != nil {
		r.metrics.Errors.WithLabelValues("delete").Inc()
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

// Ping checks the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.redis.Ping(ctx).Err()
}
