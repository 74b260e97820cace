package cache

import (
	"context"
	"encoding/json"
	"maps"
	"sync"
	"time"
)

// MemorySettingsCache is an in-process cache used when no redis address is
// configured.
type MemorySettingsCache struct {
	mu        sync.Mutex
	values    map[string]json.RawMessage
	expiresAt time.Time
	now       func() time.Time
}

func NewMemorySettingsCache() *MemorySettingsCache {
	return &MemorySettingsCache{now: time.Now}
}

func (c *MemorySettingsCache) Get(_ context.Context) (map[string]json.RawMessage, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.values == nil || !c.now().Before(c.expiresAt) {
		return nil, false, nil
	}
	return maps.Clone(c.values), true, nil
}

func (c *MemorySettingsCache) Set(_ context.Context, values map[string]json.RawMessage, ttl time.Duration) error {
	if values == nil || ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values = maps.Clone(values)
	c.expiresAt = c.now().Add(ttl)
	return nil
}

func (c *MemorySettingsCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values = nil
	return nil
}
