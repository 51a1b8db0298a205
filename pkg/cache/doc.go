// Package cache provides the image cache tier: a sharded in-memory LRU store
// with an optional shared Redis layer behind it.
//
// The memory store has the following properties:
//
// - Every entry expires at CreatedAt + TTL; expired entries are misses and are removed lazily
// - Total bytes never exceed the configured budget; Put evicts least recently used entries
// - Keys are spread over shards, each with its own lock, so unrelated keys do not contend
// - Put replaces an entry atomically, so concurrent writers of one key are harmless
//
// # Basic Usage
//
//	store := cache.NewStore(cache.Config{
//		MaxBytes: 256 << 20,
//		TTL:      24 * time.Hour,
//	})
//	defer store.Close()
//
//	store.Put("team/alice.jpg", img, 0)
//	if entry, ok := store.Get("team/alice.jpg"); ok {
//		// serve entry.Asset
//	}
//
// # Shared Cache
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	layered := cache.NewLayered(store, cache.NewRedisStore(redisClient, "img", nil), time.Second)
//
// A Redis hit is promoted into memory with its remaining TTL. Redis errors are
// logged and count as misses; they never fail a request.
//
// # Metrics
//
//   - imgproxy_cache_hits_total{layer} - Cache hits (memory, redis)
//   - imgproxy_cache_misses_total{layer} - Cache misses
//   - imgproxy_cache_evictions_total{reason} - LRU evictions and expiry removals
//   - imgproxy_cache_size_bytes{layer} - Memory cache size
//   - imgproxy_cache_errors_total{operation} - Shared cache operation errors
package cache
