package embeddings

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Fingerprint returns the cache key for text embedded by model on provider.
// Text is trimmed and internal whitespace collapsed before hashing, so
// formatting-only differences share an entry. A changed text is a new key;
// stale entries are left to age out.
func Fingerprint(text, model, provider string) string {
	h := sha256.New()
	h.Write([]byte(NormalizeText(text)))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(provider))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeText trims text and collapses whitespace runs to one space.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// CacheStats is a point-in-time snapshot of cache occupancy and hit rates.
type CacheStats struct {
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
}

// Cache is a bounded, concurrency-safe fingerprint → vector map with LRU
// eviction and an optional TTL.
type Cache struct {
	lru      *expirable.LRU[string, []float32]
	capacity int
	hits     atomic.Uint64
	misses   atomic.Uint64
}

// NewCache creates a cache holding at most size entries, each living at
// most ttl. A zero ttl disables expiry.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{
		lru:      expirable.NewLRU[string, []float32](size, nil, ttl),
		capacity: size,
	}
}

// Get returns the cached vector for key.
func (c *Cache) Get(key string) ([]float32, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Put stores vec under key.
func (c *Cache) Put(key string, vec []float32) {
	c.lru.Add(key, vec)
}

// Remove drops key from the cache.
func (c *Cache) Remove(key string) {
	c.lru.Remove(key)
}

// Purge empties the cache.
func (c *Cache) Purge() {
	c.lru.Purge()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Size:     c.lru.Len(),
		Capacity: c.capacity,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}
}
