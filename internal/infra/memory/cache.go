package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is an in-process app.Cache backed by go-cache.
type Cache struct {
	items *gocache.Cache

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewCache creates a cache whose expired entries are purged every cleanup interval.
func NewCache(cleanup time.Duration) *Cache {
	return &Cache{
		items: gocache.New(gocache.NoExpiration, cleanup),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	raw := v.([]byte)
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, true, nil
}

// Set stores value for ttl plus jitter. A ttl <= 0 never expires.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	raw := make([]byte, len(value))
	copy(raw, value)
	c.items.Set(key, raw, c.ttlWithJitter(ttl))
	return nil
}

func (c *Cache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.items.Delete(key)
	}
	return nil
}

func (c *Cache) Len() int { return c.items.ItemCount() }

func (c *Cache) ttlWithJitter(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
