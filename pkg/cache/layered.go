package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/williamjxj/bestitconsultants-sub001/pkg/asset"
)

// DefaultTimeout bounds a shared-cache call.
const DefaultTimeout = time.Second

// Layered consults the memory store first and the optional Redis store second.
// Shared-cache failures are logged and treated as misses.
type Layered struct {
	memory  *Store
	shared  *RedisStore
	timeout time.Duration
	logger  zerolog.Logger
}

// NewLayered creates a layered cache. shared may be nil.
func NewLayered(memory *Store, shared *RedisStore, timeout time.Duration) *Layered {
	if memory == nil {
		panic("memory store cannot be nil")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Layered{
		memory:  memory,
		shared:  shared,
		timeout: timeout,
		logger:  log.With().Str("component", "cache").Logger(),
	}
}

// Memory returns the memory layer.
func (l *Layered) Memory() *Store {
	return l.memory
}

// Get returns the entry for path. A shared-cache hit is promoted into memory
// keeping its original expiry.
func (l *Layered) Get(ctx context.Context, path string) (Entry, bool) {
	if entry, ok := l.memory.Get(path); ok {
		return entry, true
	}
	if l.shared == nil {
		return Entry{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	entry, err := l.shared.Get(ctx, path)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			l.logger.Warn().Err(err).Str("path", path).Msg("Shared cache get error")
		}
		return Entry{}, false
	}

	entry.HitCount++
	l.memory.putEntry(path, *entry)
	l.logger.Debug().Str("path", path).Dur("ttl", entry.TTL()).Msg("Promoted shared cache entry")
	return *entry, true
}

// Put stores a in memory and, when configured, in the shared cache.
func (l *Layered) Put(ctx context.Context, path string, a *asset.Asset, ttl time.Duration) {
	if !l.memory.Put(path, a, ttl) {
		l.logger.Debug().Str("path", path).Int64("size", a.Size).Msg("Asset larger than memory cache budget, not cached in memory")
	}
	if l.shared == nil {
		return
	}
	if ttl <= 0 {
		ttl = l.memory.config.TTL
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	entry := newEntry(a, time.Now(), ttl)
	if err := l.shared.Set(ctx, path, &entry); err != nil {
		l.logger.Warn().Err(err).Str("path", path).Msg("Failed to write shared cache")
	}
}

// Delete removes path from both layers. It reports whether either layer held it.
func (l *Layered) Delete(ctx context.Context, path string) bool {
	found := l.memory.Delete(path)
	if l.shared != nil {
		ctx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()
		sharedFound, err := l.shared.Delete(ctx, path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to delete shared cache entry")
		}
		found = found || sharedFound
	}
	return found
}

// Stats returns the memory layer statistics.
func (l *Layered) Stats() Stats {
	return l.memory.Stats()
}
