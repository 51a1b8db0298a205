package cache

import (
	"time"

	"github.com/williamjxj/bestitconsultants-sub001/pkg/asset"
)

// Entry represents a cached image.
type Entry struct {
	// Asset is the immutable cached image
	Asset *asset.Asset `json:"asset"`

	// CreatedAt is when the entry was stored or last refreshed
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is always CreatedAt + TTL
	ExpiresAt time.Time `json:"expires_at"`

	// LastAccessAt orders entries for LRU eviction
	LastAccessAt time.Time `json:"last_access_at"`

	// HitCount counts Get hits since the entry was created
	HitCount int64 `json:"hit_count"`
}

func newEntry(a *asset.Asset, now time.Time, ttl time.Duration) Entry {
	return Entry{
		Asset:        a,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastAccessAt: now,
	}
}

// IsExpiredAt reports whether the entry is stale at now.
func (e *Entry) IsExpiredAt(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return e.IsExpiredAt(time.Now())
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}
