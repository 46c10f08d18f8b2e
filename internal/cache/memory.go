package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	position int
	expires  time.Time
}

// MemoryCache is an in-process TTL cache, used when no Redis endpoint is
// configured (single-process deployments, tests).
type MemoryCache struct {
	mu   sync.Mutex
	data map[string]memEntry
	now  func() time.Time
}

func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{data: make(map[string]memEntry), now: now}
}

func (c *MemoryCache) Set(ctx context.Context, queueID, userIdentifier string, position int, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key(queueID, userIdentifier)] = memEntry{position: position, expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Get(ctx context.Context, queueID, userIdentifier string) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key(queueID, userIdentifier)]
	if !ok {
		return 0, false, nil
	}
	if c.now().After(e.expires) {
		delete(c.data, key(queueID, userIdentifier))
		return 0, false, nil
	}
	return e.position, true, nil
}

func (c *MemoryCache) Evict(ctx context.Context, queueID, userIdentifier string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key(queueID, userIdentifier))
	return nil
}
