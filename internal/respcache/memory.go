package respcache

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type MemoryCache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[uuid.UUID]string)}
}

func (c *MemoryCache) Put(ctx context.Context, key uuid.UUID, response string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = response
	return nil
}

func (c *MemoryCache) TryGet(ctx context.Context, key uuid.UUID) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	response, ok := c.entries[key]
	return response, ok, nil
}

func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
