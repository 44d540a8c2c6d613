package cache

import (
	"context"
	"sync"
)

// Stats represents cache statistics
type Stats struct {
	TotalEntries int64   `json:"total_entries"`
	HitRate      float64 `json:"hit_rate"`
	MissRate     float64 `json:"miss_rate"`
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	Loads        int64   `json:"loads"`
}

// LoadFunc produces the value for a key on a cache miss
type LoadFunc[V any] func(ctx context.Context, key string) (V, error)

// Memory is an in-process, load-once cache. Values are expected to be
// immutable once stored; concurrent misses for the same key share a single
// load. Failed loads are not cached.
type Memory[V any] struct {
	mu       sync.RWMutex
	entries  map[string]V
	inflight map[string]*call[V]
	stats    Stats
}

type call[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// NewMemory creates an empty memory cache
func NewMemory[V any]() *Memory[V] {
	return &Memory[V]{
		entries:  make(map[string]V),
		inflight: make(map[string]*call[V]),
	}
}

// Get retrieves a value from the cache
func (c *Memory[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.entries[key]
	if ok {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}

	return value, ok
}

// Set stores a value, replacing any previous one
func (c *Memory[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = value
}

// Delete removes a value
func (c *Memory[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Clear removes all values and resets statistics
func (c *Memory[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]V)
	c.stats = Stats{}
}

// Keys returns the cached keys in no particular order
func (c *Memory[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}

	return keys
}

// Len returns the number of cached values
func (c *Memory[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// GetOrLoad returns the cached value for key, calling load exactly once per
// key across concurrent callers when it is missing
func (c *Memory[V]) GetOrLoad(ctx context.Context, key string, load LoadFunc[V]) (V, error) {
	c.mu.Lock()

	if value, ok := c.entries[key]; ok {
		c.stats.Hits++
		c.mu.Unlock()

		return value, nil
	}

	c.stats.Misses++

	if pending, ok := c.inflight[key]; ok {
		c.mu.Unlock()

		select {
		case <-pending.done:
			return pending.value, pending.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}

	pending := &call[V]{done: make(chan struct{})}
	c.inflight[key] = pending
	c.stats.Loads++
	c.mu.Unlock()

	pending.value, pending.err = load(ctx, key)

	c.mu.Lock()
	delete(c.inflight, key)

	if pending.err == nil {
		c.entries[key] = pending.value
	}
	c.mu.Unlock()

	close(pending.done)

	return pending.value, pending.err
}

// GetStats returns a snapshot of cache statistics
func (c *Memory[V]) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.TotalEntries = int64(len(c.entries))

	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
		stats.MissRate = float64(stats.Misses) / float64(total)
	}

	return stats
}
