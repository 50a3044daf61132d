package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// LoaderFunc produces the value for a key on a cache miss.
type LoaderFunc func(ctx context.Context) (any, error)

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is an in-memory TTL cache with request coalescing: concurrent
// callers for the same missing key share one loader invocation. Loader
// errors are returned to every waiting caller and never stored.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry

	// Per-namespace generation counters. Invalidating a namespace bumps
	// its counter, which orphans any loader already in flight for it.
	generations map[string]uint64

	group singleflight.Group
	ttl   time.Duration
	now   func() time.Time
}

// New creates a cache whose entries live for ttl after being stored.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries:     make(map[string]entry),
		generations: make(map[string]uint64),
		ttl:         ttl,
		now:         time.Now,
	}
}

// Key builds a namespaced cache key. The namespace doubles as the
// invalidation scope.
func Key(namespace string, parts ...string) string {
	return namespace + ":" + strings.Join(parts, ":")
}

func namespaceOf(key string) string {
	if i := strings.Index(key, ":"); i >= 0 {
		return key[:i]
	}
	return key
}

// Get returns the cached value for key, loading it via load on a miss.
// Expiry is lazy: a stale entry is treated as absent at read time. The
// loader runs detached from the caller's cancellation so that one
// impatient caller cannot poison the shared result.
func (c *Cache) Get(ctx context.Context, key string, load LoaderFunc) (any, error) {
	if v, ok := c.lookup(key); ok {
		log.Debug().Str("key", key).Msg("Cache hit")
		return v, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		// Re-check under the flight: another caller may have stored the
		// value between our miss and the group admission.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		gen := c.generation(namespaceOf(key))

		value, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		c.store(key, value, gen)
		return value, nil
	})
	if err != nil {
		log.Debug().Str("key", key).Err(err).Msg("Cache load failed, nothing stored")
		return nil, err
	}

	log.Debug().Str("key", key).Bool("shared", shared).Msg("Cache miss resolved")
	return v, nil
}

// Put stores a value directly, bypassing the loader path.
func (c *Cache) Put(key string, value any) {
	c.store(key, value, c.generation(namespaceOf(key)))
}

// InvalidateNamespace drops every entry in the namespace and orphans
// in-flight loads for it, so a load started before the invalidation
// cannot re-populate the cache with pre-invalidation data.
func (c *Cache) InvalidateNamespace(namespace string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generations[namespace]++

	prefix := namespace + ":"
	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) || key == namespace {
			delete(c.entries, key)
			removed++
		}
	}

	log.Debug().Str("namespace", namespace).Int("removed", removed).Msg("Cache namespace invalidated")
	return removed
}

// Len reports the number of live (unexpired) entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	at := c.now()
	for _, e := range c.entries {
		if at.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

func (c *Cache) lookup(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) generation(namespace string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[namespace]
}

func (c *Cache) store(key string, value any, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The namespace was invalidated while the load was in flight; the
	// value may predate the invalidation, so it must not be stored.
	if c.generations[namespaceOf(key)] != gen {
		return
	}

	c.entries[key] = entry{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
}
