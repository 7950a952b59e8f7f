package bank

import (
	"container/list"
	"sync"
	"time"
)

// binCacheEntry is one cached prefix resolution. A nil Profile caches
// a miss, so unknown prefixes do not hammer the directory either.
type binCacheEntry struct {
	Profile      *Profile
	Prefix       string
	CreatedAt    time.Time
	LastAccessed time.Time
	listElement  *list.Element
}

// CacheStats reports BIN cache performance counters.
type CacheStats struct {
	Size        int           `json:"size"`
	MaxSize     int           `json:"max_size"`
	Hits        int64         `json:"hits"`
	Misses      int64         `json:"misses"`
	Evictions   int64         `json:"evictions"`
	TTLExpiries int64         `json:"ttl_expiries"`
	HitRatio    float64       `json:"hit_ratio"`
	TTL         time.Duration `json:"ttl"`
}

// CachedDirectory wraps a Directory with an LRU, TTL-bounded cache on
// prefix lookups. BIN tables change rarely but are consulted on every
// installment listing, so the hit ratio is effectively the request
// ratio.
type CachedDirectory struct {
	inner       Directory
	entries     map[string]*binCacheEntry
	accessOrder *list.List
	maxSize     int
	ttl         time.Duration
	mu          sync.Mutex

	hits        int64
	misses      int64
	evictions   int64
	ttlExpiries int64
}

// NewCachedDirectory wraps inner with a cache of maxSize prefixes and
// the given entry TTL.
func NewCachedDirectory(inner Directory, maxSize int, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		inner:       inner,
		entries:     make(map[string]*binCacheEntry),
		accessOrder: list.New(),
		maxSize:     maxSize,
		ttl:         ttl,
	}
}

func (c *CachedDirectory) BankByCode(code string) (*Profile, error) {
	return c.inner.BankByCode(code)
}

func (c *CachedDirectory) DefaultBank() (*Profile, error) {
	return c.inner.DefaultBank()
}

func (c *CachedDirectory) BankByPrefix(prefix string) (*Profile, error) {
	if profile, ok := c.lookup(prefix); ok {
		if profile == nil {
			return nil, NewNotFound("bin " + prefix)
		}
		return profile, nil
	}

	profile, err := c.inner.BankByPrefix(prefix)
	if err != nil {
		if IsNotFound(err) {
			c.store(prefix, nil)
		}
		return nil, err
	}

	c.store(prefix, profile)
	return profile, nil
}

func (c *CachedDirectory) lookup(prefix string) (*Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[prefix]
	if !exists {
		c.misses++
		return nil, false
	}

	if c.ttl > 0 && time.Since(entry.CreatedAt) > c.ttl {
		c.deleteEntryLocked(prefix, entry)
		c.ttlExpiries++
		c.misses++
		return nil, false
	}

	entry.LastAccessed = time.Now()
	c.accessOrder.MoveToFront(entry.listElement)
	c.hits++
	return entry.Profile, true
}

func (c *CachedDirectory) store(prefix string, profile *Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[prefix]; exists {
		entry.Profile = profile
		entry.CreatedAt = time.Now()
		entry.LastAccessed = time.Now()
		c.accessOrder.MoveToFront(entry.listElement)
		return
	}

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}

	entry := &binCacheEntry{
		Profile:      profile,
		Prefix:       prefix,
		CreatedAt:    time.Now(),
		LastAccessed: time.Now(),
	}
	entry.listElement = c.accessOrder.PushFront(prefix)
	c.entries[prefix] = entry
}

func (c *CachedDirectory) evictOldestLocked() {
	oldest := c.accessOrder.Back()
	if oldest == nil {
		return
	}
	prefix := oldest.Value.(string)
	if entry, exists := c.entries[prefix]; exists {
		c.deleteEntryLocked(prefix, entry)
		c.evictions++
	}
}

func (c *CachedDirectory) deleteEntryLocked(prefix string, entry *binCacheEntry) {
	delete(c.entries, prefix)
	if entry.listElement != nil {
		c.accessOrder.Remove(entry.listElement)
	}
}

// Invalidate drops a prefix from the cache, for when a BIN row is
// edited at runtime.
func (c *CachedDirectory) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, exists := c.entries[prefix]; exists {
		c.deleteEntryLocked(prefix, entry)
	}
}

// Clear empties the cache.
func (c *CachedDirectory) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*binCacheEntry)
	c.accessOrder.Init()
}

// Stats returns a snapshot of the cache counters.
func (c *CachedDirectory) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	ratio := 0.0
	if total > 0 {
		ratio = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Size:        len(c.entries),
		MaxSize:     c.maxSize,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		TTLExpiries: c.ttlExpiries,
		HitRatio:    ratio,
		TTL:         c.ttl,
	}
}
