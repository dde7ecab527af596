// Package cache holds short-lived copies of records in front of a store:
// one entry per id plus a single snapshot of the whole collection.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL is how long an entry is served before it must be refetched.
const DefaultTTL = 3 * time.Minute

type entry[T any] struct {
	value     T
	fetchedAt time.Time
}

type Cache[T any] struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry[T]
	all     *entry[[]T]
	gen     uint64
}

func New[T any](ttl time.Duration) *Cache[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[T]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry[T]),
	}
}

// WithClock replaces the time source, for tests.
func (c *Cache[T]) WithClock(now func() time.Time) *Cache[T] {
	c.now = now
	return c
}

func (c *Cache[T]) fresh(fetchedAt time.Time) bool {
	return c.now().Sub(fetchedAt) < c.ttl
}

// Get returns the cached record for id if it has not expired.
func (c *Cache[T]) Get(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		var zero T
		return zero, false
	}
	if !c.fresh(e.fetchedAt) {
		delete(c.entries, id)
		var zero T
		return zero, false
	}
	return e.value, true
}

func (c *Cache[T]) Set(id string, value T) {
	c.mu.Lock()
	c.entries[id] = entry[T]{value: value, fetchedAt: c.now()}
	c.mu.Unlock()
}

// Generation changes on every Invalidate and Clear. Take it before reading
// the backing store and pass it to SetIf.
func (c *Cache[T]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetIf stores value only if nothing was invalidated since gen was taken,
// so a read that raced a write cannot cache the older record.
func (c *Cache[T]) SetIf(id string, value T, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.entries[id] = entry[T]{value: value, fetchedAt: c.now()}
	return true
}

// GetAll returns the collection snapshot if it has not expired. The slice is
// a copy and may be modified by the caller.
func (c *Cache[T]) GetAll() ([]T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.all == nil {
		return nil, false
	}
	if !c.fresh(c.all.fetchedAt) {
		c.all = nil
		return nil, false
	}
	return append([]T(nil), c.all.value...), true
}

func (c *Cache[T]) SetAll(values []T) {
	snapshot := append([]T(nil), values...)
	c.mu.Lock()
	c.all = &entry[[]T]{value: snapshot, fetchedAt: c.now()}
	c.mu.Unlock()
}

// SetAllIf is SetAll guarded by a generation, as SetIf.
func (c *Cache[T]) SetAllIf(values []T, gen uint64) bool {
	snapshot := append([]T(nil), values...)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.all = &entry[[]T]{value: snapshot, fetchedAt: c.now()}
	return true
}

// Invalidate drops the entry for id and the whole collection snapshot.
func (c *Cache[T]) Invalidate(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.all = nil
	c.gen++
	c.mu.Unlock()
}

// Clear empties both caches. Safe to call at any time.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[T])
	c.all = nil
	c.gen++
	c.mu.Unlock()
}

// Len reports the number of per-id entries, expired ones included.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
