package object

import (
	"bytes"
	"sync"

	"github.com/cuemby/fdbus/pkg/fdtypes"
)

type cacheKey struct {
	code  fdtypes.EventCode
	topic string
}

type cacheEntry struct {
	bytes        []byte
	alwaysUpdate bool
}

// EventCache records the last broadcast per (event_code, topic) when a
// server object enables caching, so a new subscriber can be replayed
// the current value.
type EventCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]*cacheEntry
	order   []cacheKey // insertion order, for deterministic replay
}

// NewEventCache creates an empty cache.
func NewEventCache() *EventCache {
	return &EventCache{entries: make(map[cacheKey]*cacheEntry)}
}

// Update records a broadcast's bytes, applying the force-update
// rule. It returns false if the broadcast should be suppressed
// (bytes are unchanged, always_update is false, and the sender did
// not set force-update).
func (c *EventCache) Update(code fdtypes.EventCode, topic string, payload []byte, alwaysUpdate, forceUpdate bool) bool {
	key := cacheKey{code: code, topic: topic}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, existed := c.entries[key]
	if !existed {
		c.entries[key] = &cacheEntry{bytes: payload, alwaysUpdate: alwaysUpdate}
		c.order = append(c.order, key)
		return true
	}
	entry.alwaysUpdate = alwaysUpdate
	if !alwaysUpdate && !forceUpdate && bytes.Equal(entry.bytes, payload) {
		return false
	}
	entry.bytes = payload
	return true
}

// Get returns the cached bytes for (code, topic), if present.
func (c *EventCache) Get(code fdtypes.EventCode, topic string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[cacheKey{code: code, topic: topic}]
	if !ok {
		return nil, false
	}
	return e.bytes, true
}

// ReplayItem is one cached (code, topic, bytes) triple to synthesize
// as an initial broadcast to a new subscriber.
type ReplayItem struct {
	Code  fdtypes.EventCode
	Topic string
	Bytes []byte
}

// Replay returns cache entries matching code (including the
// match-any-topic and group forms the subscription engine uses), in
// insertion order, for delivery to a new subscriber before its
// subscribe-status.
func (c *EventCache) Replay(matches func(code fdtypes.EventCode, topic string) bool) []ReplayItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []ReplayItem
	for _, key := range c.order {
		if !matches(key.code, key.topic) {
			continue
		}
		e := c.entries[key]
		out = append(out, ReplayItem{Code: key.code, Topic: key.topic, Bytes: e.bytes})
	}
	return out
}
