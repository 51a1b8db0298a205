package cache

import (
	"hash/fnv"
	"strings"
)

// DefaultNamespace prefixes every shared cache key.
const DefaultNamespace = "img"

// CacheKey identifies a cached image in the shared cache.
type CacheKey struct {
	// Namespace separates deployments sharing one Redis (default "img")
	Namespace string

	// Path is the canonical object key
	Path string
}

// String generates a deterministic cache key string.
// Format: namespace:path
//
// Example:
//
//	img:team/photos/alice.jpg
func (k CacheKey) String() string {
	ns := k.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	return ns + ":" + strings.Trim(k.Path, "/")
}

// shardIndex maps a key to one of n shards.
func shardIndex(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
