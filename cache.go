package resolv

import (
	"expvar"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// cacheEntry is the value stored per cacheKey: a non-empty ordered sequence
// of answer records plus the absolute time they expire.
type cacheEntry struct {
	answers []Answer
	expiry  time.Time
}

// Cache is a TTL-bounded mapping from (lowercased host name, record kind)
// to the records last seen for it (§4.3); each Resolver has its own. It is safe for
// concurrent use. Expiry is lazy: get() evicts an expired entry on lookup;
// an optional background sweep (started by newCache) additionally removes
// expired entries on a timer, matching the teacher's cache-memory.go GC
// loop, but is not required for correctness.
type Cache struct {
	mu      sync.Mutex
	items   map[cacheKey]cacheEntry
	metrics cacheMetrics
	stop    chan struct{}
}

type cacheMetrics struct {
	hit     *expvar.Int
	miss    *expvar.Int
	entries *expvar.Int
}

// newCache creates an empty cache and starts its background sweep. period
// of 0 disables the sweep (lazy expiry on get() is always performed
// regardless).
func newCache(period time.Duration) *Cache {
	c := &Cache{
		items:   make(map[cacheKey]cacheEntry),
		metrics: newCacheMetrics(),
		stop:    make(chan struct{}),
	}
	if period > 0 {
		go c.sweep(period)
	}
	return c
}

func newCacheMetrics() cacheMetrics {
	return cacheMetrics{
		hit:     getVarInt("cache", "hit"),
		miss:    getVarInt("cache", "miss"),
		entries: getVarInt("cache", "entries"),
	}
}

// has reports whether key has an unexpired entry, without updating hit/miss
// metrics.
func (c *Cache) has(key cacheKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	return ok && time.Now().Before(e.expiry)
}

// get returns the cached answers for key. An expired entry is removed and
// reported as a miss, per the invariant that a present entry is always
// unexpired at retrieval time.
func (c *Cache) get(key cacheKey) ([]Answer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		c.metrics.miss.Add(1)
		return nil, false
	}
	if !time.Now().Before(e.expiry) {
		delete(c.items, key)
		c.metrics.entries.Set(int64(len(c.items)))
		c.metrics.miss.Add(1)
		return nil, false
	}
	c.metrics.hit.Add(1)
	return e.answers, true
}

// set stores answers under key, expiring at now + the minimum positive TTL
// among them. Entries whose minimum TTL is zero (or which have no positive
// TTL at all) are not stored, per the cache-entry invariant in §3.
func (c *Cache) set(key cacheKey, answers []Answer) {
	if len(answers) == 0 {
		return
	}
	min, ok := minPositiveTTL(answers)
	if !ok || min <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheEntry{
		answers: answers,
		expiry:  time.Now().Add(time.Duration(min) * time.Second),
	}
	c.metrics.entries.Set(int64(len(c.items)))
}

// delete removes key unconditionally.
func (c *Cache) delete(key cacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	c.metrics.entries.Set(int64(len(c.items)))
}

// Close stops the background sweep.
func (c *Cache) Close() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

func (c *Cache) sweep(period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			now := time.Now()
			c.mu.Lock()
			evicted := 0
			for k, e := range c.items {
				if !now.Before(e.expiry) {
					delete(c.items, k)
					evicted++
				}
			}
			c.metrics.entries.Set(int64(len(c.items)))
			c.mu.Unlock()
			if evicted > 0 {
				Log.WithFields(logrus.Fields{"evicted": evicted}).Debug("cache sweep")
			}
		case <-c.stop:
			return
		}
	}
}

// minPositiveTTL returns the smallest TTL > 0 among answers, and whether
// one was found. TTLUnset and zero TTLs are ignored.
func minPositiveTTL(answers []Answer) (int32, bool) {
	var min int32
	found := false
	for _, a := range answers {
		if a.TTL <= 0 {
			continue
		}
		if !found || a.TTL < min {
			min = a.TTL
			found = true
		}
	}
	return min, found
}
