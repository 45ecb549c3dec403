package nominatim

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/nexahealth-reporter/internal/domain"
	"github.com/couchcryptid/nexahealth-reporter/internal/observability"
)

// CachedGeocoder wraps a Geocoder with in-memory LRU caches. Reverse lookups
// are keyed by coordinates rounded to four decimals, so two fixes about 11m
// apart share one entry. Concurrent misses for the same key share one call.
type CachedGeocoder struct {
	inner   domain.Geocoder
	reverse *lruCache[domain.GeocodeResult]
	search  *lruCache[searchHit]
	group   singleflight.Group
	metrics *observability.Metrics
}

type searchHit struct {
	pos    domain.Position
	result domain.GeocodeResult
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:   inner,
		reverse: newLRUCache[domain.GeocodeResult](maxEntries),
		search:  newLRUCache[searchHit](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, pos domain.Position) (domain.GeocodeResult, error) {
	key := pos.CacheKey()
	if result, ok := c.reverse.get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return result, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	v, err := c.shared(ctx, "rev:"+key, func(ctx context.Context) (any, error) {
		if result, ok := c.reverse.get(key); ok {
			return result, nil
		}
		result, err := c.inner.ReverseGeocode(ctx, pos)
		if err != nil {
			return result, err
		}
		// Only cache non-empty results so transient "not found" responses can be retried.
		if result.DisplayAddress != "" {
			c.reverse.put(key, result)
		}
		return result, nil
	})
	if err != nil {
		return domain.GeocodeResult{}, err
	}
	return v.(domain.GeocodeResult), nil
}

func (c *CachedGeocoder) Search(ctx context.Context, query string) (domain.Position, domain.GeocodeResult, error) {
	key := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if hit, ok := c.search.get(key); ok {
		return hit.pos, hit.result, nil
	}

	v, err := c.shared(ctx, "search:"+key, func(ctx context.Context) (any, error) {
		if hit, ok := c.search.get(key); ok {
			return hit, nil
		}
		pos, result, err := c.inner.Search(ctx, query)
		if err != nil {
			return searchHit{}, err
		}
		hit := searchHit{pos: pos, result: result}
		c.search.put(key, hit)
		return hit, nil
	})
	if err != nil {
		return domain.Position{}, domain.GeocodeResult{}, err
	}
	hit := v.(searchHit)
	return hit.pos, hit.result, nil
}

// shared runs fn once for all concurrent callers of key. The call is detached
// from the first caller's cancellation and bounded by the client timeout; each
// caller stops waiting when its own ctx is done.
func (c *CachedGeocoder) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// Len reports the number of cached reverse lookups.
func (c *CachedGeocoder) Len() int {
	return c.reverse.size()
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
