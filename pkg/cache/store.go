package cache

import (
	"container/list"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/williamjxj/bestitconsultants-sub001/pkg/asset"
)

// Config represents memory cache configuration
type Config struct {
	// MaxBytes is the byte budget for the whole store
	MaxBytes int64 `yaml:"max_bytes"`

	// TTL is used when Put is called with ttl <= 0
	TTL time.Duration `yaml:"ttl"`

	// Shards splits the key space so that different keys rarely share a lock
	Shards int `yaml:"shards"`

	// CleanupInterval enables a background sweep of expired entries (0 disables)
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// Clock, overridable in tests
	Now func() time.Time `yaml:"-"`

	// Metrics receives cache collectors; nil uses a private registry
	Metrics *Metrics `yaml:"-"`
}

// DefaultConfig returns the default memory cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxBytes:        256 * 1024 * 1024,
		TTL:             24 * time.Hour,
		Shards:          16,
		CleanupInterval: time.Minute,
	}
}

// Stats is a snapshot of store counters.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Expired   uint64 `json:"expired"`
	Rejected  uint64 `json:"rejected"`
	Entries   int    `json:"entries"`
	Bytes     int64  `json:"bytes"`
	MaxBytes  int64  `json:"max_bytes"`
}

// Store is a sharded, byte-bounded LRU cache with per-entry TTL.
//
// Each shard owns a mutex, a map and an LRU list, so lookups on different
// shards never contend. The byte budget is global: a Put that would push the
// total past MaxBytes first evicts the least recently used entries across all
// shards. Access order is a store-wide sequence, which keeps ties on
// LastAccessAt deterministic.
type Store struct {
	shards  []*shard
	config  Config
	metrics *Metrics

	// total counts stored bytes plus reservations of puts in progress
	total atomic.Int64
	seq   atomic.Uint64

	// evictMu serializes victim selection
	evictMu sync.Mutex

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	expired   atomic.Uint64
	rejected  atomic.Uint64

	stop     chan struct{}
	stopOnce sync.Once
}

type shard struct {
	mu    sync.Mutex
	items map[string]*list.Element
	lru   *list.List
	size  int64
}

type item struct {
	key   string
	entry Entry
	seq   uint64
}

// NewStore creates a memory store. Close must be called when CleanupInterval is set.
func NewStore(config Config) *Store {
	defaults := DefaultConfig()
	if config.MaxBytes <= 0 {
		config.MaxBytes = defaults.MaxBytes
	}
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.Shards <= 0 {
		config.Shards = defaults.Shards
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	m := config.Metrics
	if m == nil {
		m = NewMetrics(nil)
	}

	s := &Store{
		shards:  make([]*shard, config.Shards),
		config:  config,
		metrics: m,
		stop:    make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{
			items: make(map[string]*list.Element),
			lru:   list.New(),
		}
	}

	if config.CleanupInterval > 0 {
		go s.cleanupExpired()
	}

	return s
}

func (s *Store) shardFor(key string) *shard {
	if len(s.shards) == 1 {
		return s.shards[0]
	}
	return s.shards[shardIndex(key, len(s.shards))]
}

// Get returns a copy of the entry for key. Expired entries are removed and
// reported as a miss.
func (s *Store) Get(key string) (Entry, bool) {
	sh := s.shardFor(key)
	now := s.config.Now()

	sh.mu.Lock()
	elem, ok := sh.items[key]
	if !ok {
		sh.mu.Unlock()
		s.misses.Add(1)
		s.metrics.Misses.WithLabelValues("memory").Inc()
		return Entry{}, false
	}

	it := elem.Value.(*item)
	if it.entry.IsExpiredAt(now) {
		s.remove(sh, elem)
		sh.mu.Unlock()
		s.expired.Add(1)
		s.misses.Add(1)
		s.metrics.Evictions.WithLabelValues("expired").Inc()
		s.metrics.Misses.WithLabelValues("memory").Inc()
		return Entry{}, false
	}

	it.entry.LastAccessAt = now
	it.entry.HitCount++
	it.seq = s.seq.Add(1)
	sh.lru.MoveToFront(elem)
	entry := it.entry
	sh.mu.Unlock()

	s.hits.Add(1)
	s.metrics.Hits.WithLabelValues("memory").Inc()
	return entry, true
}

// Put stores a for key for ttl (the configured TTL when ttl <= 0), replacing
// any previous entry. It returns false when the asset alone is larger than
// MaxBytes and therefore not cached.
func (s *Store) Put(key string, a *asset.Asset, ttl time.Duration) bool {
	if a == nil {
		return false
	}
	if ttl <= 0 {
		ttl = s.config.TTL
	}
	return s.put(key, newEntry(a, s.config.Now(), ttl))
}

// putEntry stores an entry keeping its timestamps; used to promote shared-cache hits.
func (s *Store) putEntry(key string, e Entry) bool {
	e.LastAccessAt = s.config.Now()
	return s.put(key, e)
}

func (s *Store) put(key string, e Entry) bool {
	size := e.Asset.Size
	if size > s.config.MaxBytes {
		s.rejected.Add(1)
		return false
	}

	// Reserve the full size first so the total never passes the budget. A
	// replaced entry gives its bytes back once the swap is done.
	s.reserve(size)

	sh := s.shardFor(key)
	var released int64
	sh.mu.Lock()
	if elem, ok := sh.items[key]; ok {
		it := elem.Value.(*item)
		released = it.entry.Asset.Size
		sh.size += size - released
		it.entry = e
		it.seq = s.seq.Add(1)
		sh.lru.MoveToFront(elem)
	} else {
		sh.items[key] = sh.lru.PushFront(&item{key: key, entry: e, seq: s.seq.Add(1)})
		sh.size += size
	}
	sh.mu.Unlock()

	if released > 0 {
		s.total.Add(-released)
	}
	s.metrics.Size.WithLabelValues("memory").Add(float64(size - released))
	return true
}

// reserve adds size to the total, evicting least recently used entries until
// it fits. size must not exceed MaxBytes.
func (s *Store) reserve(size int64) {
	for {
		cur := s.total.Load()
		if cur+size <= s.config.MaxBytes {
			if s.total.CompareAndSwap(cur, cur+size) {
				return
			}
			continue
		}
		if !s.evictOldest(size) {
			// Only reservations of puts in progress remain; they become
			// evictable as soon as they land.
			runtime.Gosched()
		}
	}
}

// evictOldest removes the entry with the oldest access across all shards. It
// returns true when space was freed or size already fits.
func (s *Store) evictOldest(size int64) bool {
	s.evictMu.Lock()
	defer s.evictMu.Unlock()

	for {
		if s.total.Load()+size <= s.config.MaxBytes {
			return true
		}

		var victim *shard
		var oldest uint64
		for _, sh := range s.shards {
			sh.mu.Lock()
			if back := sh.lru.Back(); back != nil {
				if seq := back.Value.(*item).seq; victim == nil || seq < oldest {
					victim, oldest = sh, seq
				}
			}
			sh.mu.Unlock()
		}
		if victim == nil {
			return false
		}

		victim.mu.Lock()
		back := victim.lru.Back()
		if back == nil || back.Value.(*item).seq != oldest {
			// The tail was touched or removed since the scan.
			victim.mu.Unlock()
			continue
		}
		s.remove(victim, back)
		victim.mu.Unlock()

		s.evictions.Add(1)
		s.metrics.Evictions.WithLabelValues("lru").Inc()
		return true
	}
}

// Delete removes key. It reports whether an entry was present.
func (s *Store) Delete(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	elem, ok := sh.items[key]
	if ok {
		s.remove(sh, elem)
	}
	return ok
}

// Purge removes every entry.
func (s *Store) Purge() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		s.metrics.Size.WithLabelValues("memory").Sub(float64(sh.size))
		s.total.Add(-sh.size)
		sh.items = make(map[string]*list.Element)
		sh.lru.Init()
		sh.size = 0
		sh.mu.Unlock()
	}
}

// Len returns the number of entries, expired ones included until they are swept.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.items)
		sh.mu.Unlock()
	}
	return n
}

// Size returns the total bytes held.
func (s *Store) Size() int64 {
	var n int64
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += sh.size
		sh.mu.Unlock()
	}
	return n
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	return Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
		Expired:   s.expired.Load(),
		Rejected:  s.rejected.Load(),
		Entries:   s.Len(),
		Bytes:     s.Size(),
		MaxBytes:  s.config.MaxBytes,
	}
}

// Close stops the background cleanup.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// RemoveExpired sweeps every shard and returns the number of removed entries.
func (s *Store) RemoveExpired() int {
	now := s.config.Now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for elem := sh.lru.Back(); elem != nil; {
			prev := elem.Prev()
			if elem.Value.(*item).entry.IsExpiredAt(now) {
				s.remove(sh, elem)
				removed++
			}
			elem = prev
		}
		sh.mu.Unlock()
	}
	if removed > 0 {
		s.expired.Add(uint64(removed))
		s.metrics.Evictions.WithLabelValues("expired").Add(float64(removed))
	}
	return removed
}

func (s *Store) cleanupExpired() {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RemoveExpired()
		case <-s.stop:
			return
		}
	}
}

// remove must be called with the shard lock held.
func (s *Store) remove(sh *shard, elem *list.Element) {
	it := elem.Value.(*item)
	sh.lru.Remove(elem)
	delete(sh.items, it.key)
	sh.size -= it.entry.Asset.Size
	s.total.Add(-it.entry.Asset.Size)
	s.metrics.Size.WithLabelValues("memory").Sub(float64(it.entry.Asset.Size))
}
