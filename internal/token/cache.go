package token

import (
	"sync"

	"payPlanner/internal/model"
)

// Cache caches token descriptors by (chain, address).
type Cache struct {
	mu   sync.RWMutex
	data map[model.TokenKey]model.TokenDescriptor
}

func NewCache() *Cache {
	return &Cache{data: make(map[model.TokenKey]model.TokenDescriptor)}
}

func (c *Cache) Get(key model.TokenKey) (model.TokenDescriptor, bool) {
	c.mu.RLock()
	meta, ok := c.data[key]
	c.mu.RUnlock()
	return meta, ok
}

func (c *Cache) Set(meta model.TokenDescriptor) {
	c.mu.Lock()
	c.data[meta.Key()] = meta
	c.mu.Unlock()
}
