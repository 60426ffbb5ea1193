package crawler

import "sync"

// Cache memoizes suggestions per exact prefix for the lifetime of a crawl.
// Entries are write-once and never evicted. It is safe for the concurrent
// fetches of one batch.
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]string
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string][]string)}
}

// Lookup returns the cached suggestions for prefix.
// The returned slice is shared with the cache and must not be modified.
func (c *Cache) Lookup(prefix string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	words, ok := c.entries[prefix]
	return words, ok
}

// Store records the suggestions for prefix. The first stored value wins;
// later stores for the same prefix are ignored.
func (c *Cache) Store(prefix string, words []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[prefix]; ok {
		return
	}
	c.entries[prefix] = words
}

// Len returns the number of cached prefixes.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
