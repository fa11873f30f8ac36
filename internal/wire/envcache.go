package wire

import "sync"

// EnvCache is the bounded fingerprint→environment cache from spec.md §3:
// capacity ≤ N (N≈5), FIFO eviction, entries immutable once inserted.
type EnvCache struct {
	mu       sync.Mutex
	capacity int
	order    []uint64
	entries  map[uint64][]EnvPair
}

// NewEnvCache creates a cache with the given capacity.
func NewEnvCache(capacity int) *EnvCache {
	if capacity <= 0 {
		capacity = 5
	}
	return &EnvCache{
		capacity: capacity,
		entries:  make(map[uint64][]EnvPair),
	}
}

// Get returns the cached environment for fingerprint, if present.
func (c *EnvCache) Get(fingerprint uint64) ([]EnvPair, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pairs, ok := c.entries[fingerprint]
	return pairs, ok
}

// Put inserts env under fingerprint if not already present, evicting the
// oldest entry (FIFO) if the cache is at capacity. Entries are immutable:
// a second Put for an existing fingerprint is a no-op.
func (c *EnvCache) Put(fingerprint uint64, env []EnvPair) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[fingerprint]; exists {
		return
	}

	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.order = append(c.order, fingerprint)
	c.entries[fingerprint] = env
}

// Len reports the number of cached entries.
func (c *EnvCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}
