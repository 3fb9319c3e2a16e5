package logger

import "sync"

// entry is one cached record: raw encoded payload plus the event code
// it was broadcast under, so a late subscriber's replay looks
// identical to a live broadcast.
type entry struct {
	code uint32
	data []byte
}

// Cache is a byte-size-bounded ring buffer of recent log records,
// replayed to a viewer that subscribes after the fact. It evicts from
// the front once the configured byte budget is exceeded.
type Cache struct {
	mu      sync.Mutex
	entries []entry
	maxSize int
	size    int
}

// NewCache creates a cache capped at maxSizeBytes.
func NewCache(maxSizeBytes int) *Cache {
	if maxSizeBytes < 0 {
		maxSizeBytes = 0
	}
	return &Cache{maxSize: maxSizeBytes}
}

// Push appends a record, evicting the oldest entries until the cache
// fits within its byte budget.
func (c *Cache) Push(code uint32, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry{code: code, data: data})
	c.size += len(data)
	for c.size > c.maxSize && len(c.entries) > 0 {
		c.size -= len(c.entries[0].data)
		c.entries = c.entries[1:]
	}
}

// Snapshot returns every cached record in insertion order.
func (c *Cache) Snapshot() []entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Resize changes the byte budget, evicting immediately if the cache is
// now over-budget.
func (c *Cache) Resize(maxSizeBytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if maxSizeBytes < 0 {
		maxSizeBytes = 0
	}
	c.maxSize = maxSizeBytes
	for c.size > c.maxSize && len(c.entries) > 0 {
		c.size -= len(c.entries[0].data)
		c.entries = c.entries[1:]
	}
}

// DataSize reports the cache's current byte footprint.
func (c *Cache) DataSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}
