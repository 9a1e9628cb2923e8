package ttlcache

import (
	"container/list"
	"sync"
	"time"
)

const (
	DefaultMaxEntries = 1000
	DefaultTTL        = 5 * time.Minute
)

type entry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
	ttl        time.Duration
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.Sub(e.insertedAt) > e.ttl
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Entries     int    `json:"entries"`
	MaxEntries  int    `json:"maxEntries"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time
}

// WithMaxEntries bounds the number of entries; non-positive values keep the default.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEntries = n
		}
	}
}

// WithDefaultTTL sets the TTL used when Set is called with ttl <= 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.defaultTTL = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// Cache is a bounded key/value store with per-entry expiry.
// When full, the oldest inserted entry is evicted regardless of its TTL.
// All methods are safe for concurrent use.
type Cache[V any] struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64
}

// New creates an empty cache.
func New[V any](opts ...Option) *Cache[V] {
	o := options{
		maxEntries: DefaultMaxEntries,
		defaultTTL: DefaultTTL,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return &Cache[V]{
		items:      make(map[string]*list.Element, o.maxEntries),
		order:      list.New(),
		maxEntries: o.maxEntries,
		defaultTTL: o.defaultTTL,
		now:        o.now,
	}
}

// Get returns the value for key. An expired entry is removed and reported as not found.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V

	el, ok := c.items[key]
	if !ok {
		c.misses++

		return zero, false
	}

	e := el.Value.(*entry[V])
	if e.expired(c.now()) {
		c.removeElement(el)
		c.expirations++
		c.misses++

		return zero, false
	}

	c.hits++

	return e.value, true
}

// Set stores value under key. Overwriting a key counts as a fresh insertion.
// Returns the number of entries evicted to stay within the size bound.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) int {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}

	c.items[key] = c.order.PushBack(&entry[V]{
		key:        key,
		value:      value,
		insertedAt: c.now(),
		ttl:        ttl,
	})

	evicted := 0

	for c.order.Len() > c.maxEntries {
		c.removeElement(c.order.Front())
		c.evictions++
		evicted++
	}

	return evicted
}

// Delete removes key and reports whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}

	c.removeElement(el)

	return true
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0

	for el := c.order.Front(); el != nil; {
		next := el.Next()

		if el.Value.(*entry[V]).expired(now) {
			c.removeElement(el)
			removed++
		}

		el = next
	}

	c.expirations += uint64(removed)

	return removed
}

// Purge removes every entry and returns how many were removed.
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.order.Len()

	c.items = make(map[string]*list.Element, c.maxEntries)
	c.order.Init()

	return n
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.order.Len()
}

func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Entries:     c.order.Len(),
		MaxEntries:  c.maxEntries,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
}

func (c *Cache[V]) removeElement(el *list.Element) {
	e := c.order.Remove(el).(*entry[V])
	delete(c.items, e.key)
}
