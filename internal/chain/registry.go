package chain

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Registry holds one Client per supported chain.
type Registry struct {
	clients map[uint64]*Client
}

// Dial connects to every configured chain and checks each node reports the
// configured chain id. Already opened clients are closed when a later dial
// fails.
func Dial(ctx context.Context, configs []ClientConfig) (*Registry, error) {
	r := &Registry{clients: make(map[uint64]*Client, len(configs))}
	for _, cfg := range configs {
		if _, dup := r.clients[cfg.ChainID]; dup {
			r.Close()
			return nil, fmt.Errorf("chain %d configured twice", cfg.ChainID)
		}
		client, err := NewClient(ctx, cfg)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("dial chain %d: %w", cfg.ChainID, err)
		}
		r.clients[cfg.ChainID] = client
		if err := verifyChainID(ctx, client); err != nil {
			r.Close()
			return nil, err
		}
	}
	return r, nil
}

// verifyChainID rejects an endpoint that serves a different chain than configured.
func verifyChainID(ctx context.Context, c *Client) error {
	remote, err := c.RemoteChainID(ctx)
	if err != nil {
		return fmt.Errorf("query chain id of chain %d: %w", c.ChainID(), err)
	}
	if !remote.IsUint64() || remote.Uint64() != c.ChainID() {
		return fmt.Errorf("rpc for chain %d serves chain %s", c.ChainID(), remote)
	}
	return nil
}

// Client returns the client for chainID.
func (r *Registry) Client(chainID uint64) (*Client, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.clients[chainID]
	return c, ok
}

// ChainIDs returns the configured chain ids in ascending order.
func (r *Registry) ChainIDs() []uint64 {
	if r == nil {
		return nil
	}
	ids := make([]uint64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close closes every client.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for _, c := range r.clients {
		c.Close()
	}
}

// TokenMeta reads ERC-20 metadata on chainID.
func (r *Registry) TokenMeta(ctx context.Context, chainID uint64, token common.Address) (TokenMeta, error) {
	c, ok := r.Client(chainID)
	if !ok {
		return TokenMeta{}, fmt.Errorf("chain %d not configured", chainID)
	}
	return c.TokenMeta(ctx, token)
}
