package engine

import "sync"

// AssetCache is a bounded in-memory byte cache for on-disk assets
// (optimized images, theme files). Eviction is FIFO: when the byte
// budget is exceeded the oldest-inserted entry goes first. This is a
// deliberate approximation, not true LRU; access order is never
// tracked.
type AssetCache struct {
	mu     sync.Mutex
	budget int64
	size   int64
	order  []string
	data   map[string]*Entry
}

func newAssetCache(budget int64) *AssetCache {
	return &AssetCache{
		budget: budget,
		data:   make(map[string]*Entry),
	}
}

// Get returns the cached entry for a path.
func (c *AssetCache) Get(path string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[path]
	return entry, ok
}

// Set inserts an asset, evicting oldest-inserted entries until the
// budget holds. Bodies larger than the whole budget are not cached.
func (c *AssetCache) Set(path string, body []byte) *Entry {
	entry := &Entry{Body: body, ETag: ETagFor(body)}
	if int64(len(body)) > c.budget {
		return entry
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.data[path]; ok {
		c.size -= int64(len(old.Body))
		c.removeFromOrder(path)
	}

	for c.size+int64(len(body)) > c.budget && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if victim, ok := c.data[oldest]; ok {
			c.size -= int64(len(victim.Body))
			delete(c.data, oldest)
		}
	}

	c.data[path] = entry
	c.order = append(c.order, path)
	c.size += int64(len(body))
	return entry
}

// Invalidate drops a single path.
func (c *AssetCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.data[path]; ok {
		c.size -= int64(len(old.Body))
		delete(c.data, path)
		c.removeFromOrder(path)
	}
}

// Clear empties the cache and returns the number of entries freed.
func (c *AssetCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.data)
	c.data = make(map[string]*Entry)
	c.order = nil
	c.size = 0
	return n
}

// Size returns the current byte usage.
func (c *AssetCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of cached entries.
func (c *AssetCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func (c *AssetCache) removeFromOrder(path string) {
	for i, p := range c.order {
		if p == path {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
