package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value     string
	expiresAt time.Time
}

// Memory is a map-backed store. Its lifetime is that of the value, which suits tests and one-off runs.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	ttl   time.Duration
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{items: make(map[string]memoryItem), ttl: ttl}
}

func (c *Memory) Get(_ context.Context, namespace, key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[namespace+"\x00"+key]
	if !ok {
		return "", ErrMiss
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		return "", ErrMiss
	}
	return item.value, nil
}

func (c *Memory) Set(_ context.Context, namespace, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := memoryItem{value: value}
	if c.ttl > 0 {
		item.expiresAt = time.Now().Add(c.ttl)
	}
	c.items[namespace+"\x00"+key] = item
	return nil
}

func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Memory) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]memoryItem)
	return nil
}
