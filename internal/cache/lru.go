// Package cache provides the LRU used for GPU resident resources.
package cache

import "container/list"

// Stats is a point-in-time view of a cache.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Len       int
	Bytes     int64
}

// LRU is a least-recently-used cache bounded by the total size of its entries.
//
// A budget of 0 means unbounded. Protected keys and the most recently used entry are
// never evicted, so the cache may exceed its budget while they are resident. OnEvict is
// called for every value that leaves the cache, whether evicted, removed or replaced.
//
// LRU is not safe for concurrent use.
type LRU[K comparable, V any] struct {
	budget  int64
	bytes   int64
	ll      *list.List
	items   map[K]*list.Element
	protect map[K]struct{}

	OnEvict func(key K, value V)

	hits      uint64
	misses    uint64
	evictions uint64
}

type entry[K comparable, V any] struct {
	key   K
	value V
	size  int64
}

func New[K comparable, V any](budget int64) *LRU[K, V] {
	if budget < 0 {
		budget = 0
	}
	return &LRU[K, V]{
		budget:  budget,
		ll:      list.New(),
		items:   make(map[K]*list.Element),
		protect: make(map[K]struct{}),
	}
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	if el, ok := c.items[key]; ok {
		c.hits++
		c.ll.MoveToFront(el)
		return el.Value.(*entry[K, V]).value, true
	}
	c.misses++
	var zero V
	return zero, false
}

// Peek returns the value for key without touching recency or stats.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	if el, ok := c.items[key]; ok {
		return el.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

func (c *LRU[K, V]) Contains(key K) bool {
	_, ok := c.items[key]
	return ok
}

// Add inserts or replaces key, then evicts least recently used entries until the cache
// fits its budget again.
func (c *LRU[K, V]) Add(key K, value V, size int64) {
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		old := e.value
		c.bytes += size - e.size
		e.value, e.size = value, size
		c.ll.MoveToFront(el)
		if c.OnEvict != nil {
			c.OnEvict(key, old)
		}
	} else {
		c.items[key] = c.ll.PushFront(&entry[K, V]{key: key, value: value, size: size})
		c.bytes += size
	}
	c.trim()
}

func (c *LRU[K, V]) trim() {
	if c.budget == 0 {
		return
	}

	el := c.ll.Back()
	for c.bytes > c.budget && el != nil {
		prev := el.Prev()
		e := el.Value.(*entry[K, V])
		if _, ok := c.protect[e.key]; !ok && el != c.ll.Front() {
			c.removeElement(el)
			c.evictions++
		}
		el = prev
	}
}

// Remove drops key from the cache. It reports whether the key was present.
func (c *LRU[K, V]) Remove(key K) bool {
	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// RemoveFunc drops every entry for which fn returns true and returns how many went.
func (c *LRU[K, V]) RemoveFunc(fn func(key K, value V) bool) int {
	n := 0
	for el := c.ll.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry[K, V])
		if fn(e.key, e.value) {
			c.removeElement(el)
			n++
		}
		el = next
	}
	return n
}

func (c *LRU[K, V]) removeElement(el *list.Element) {
	e := c.ll.Remove(el).(*entry[K, V])
	delete(c.items, e.key)
	c.bytes -= e.size
	if c.OnEvict != nil {
		c.OnEvict(e.key, e.value)
	}
}

// Protect replaces the set of keys that must not be evicted.
func (c *LRU[K, V]) Protect(keys ...K) {
	clear(c.protect)
	for _, k := range keys {
		c.protect[k] = struct{}{}
	}
}

// Purge removes every entry.
func (c *LRU[K, V]) Purge() {
	for el := c.ll.Front(); el != nil; {
		next := el.Next()
		c.removeElement(el)
		el = next
	}
}

// Keys returns the keys from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	keys := make([]K, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[K, V]).key)
	}
	return keys
}

func (c *LRU[K, V]) Len() int {
	return c.ll.Len()
}

func (c *LRU[K, V]) Bytes() int64 {
	return c.bytes
}

func (c *LRU[K, V]) Budget() int64 {
	return c.budget
}

func (c *LRU[K, V]) Stats() Stats {
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Len:       c.ll.Len(),
		Bytes:     c.bytes,
	}
}
