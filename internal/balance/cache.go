package balance

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type cacheKey struct {
	chainID uint64
	wallet  common.Address
}

type cacheEntry struct {
	fetchedAt time.Time
	balances  map[common.Address]*big.Int
}

// Cache holds recently fetched balances per (chain, wallet).
type Cache struct {
	ttl  time.Duration
	mu   sync.Mutex
	data map[cacheKey]cacheEntry
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, data: make(map[cacheKey]cacheEntry)}
}

// Lookup returns cached balances only when the entry is fresh and holds every
// requested token.
func (c *Cache) Lookup(chainID uint64, wallet common.Address, tokens []common.Address, now time.Time) (map[common.Address]*big.Int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[cacheKey{chainID: chainID, wallet: wallet}]
	if !ok || now.Sub(entry.fetchedAt) >= c.ttl {
		return nil, false
	}
	out := make(map[common.Address]*big.Int, len(tokens))
	for _, token := range tokens {
		v, ok := entry.balances[token]
		if !ok {
			return nil, false
		}
		out[token] = new(big.Int).Set(v)
	}
	return out, true
}

// Store records balances. A fresh entry is extended; a stale one is replaced.
func (c *Cache) Store(chainID uint64, wallet common.Address, balances map[common.Address]*big.Int, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{chainID: chainID, wallet: wallet}
	entry, ok := c.data[key]
	if !ok || now.Sub(entry.fetchedAt) >= c.ttl {
		entry = cacheEntry{fetchedAt: now, balances: make(map[common.Address]*big.Int, len(balances))}
	}
	for token, v := range balances {
		entry.balances[token] = new(big.Int).Set(v)
	}
	c.data[key] = entry
}

// Invalidate drops every cached entry for wallet.
func (c *Cache) Invalidate(wallet common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.data {
		if key.wallet == wallet {
			delete(c.data, key)
		}
	}
}
