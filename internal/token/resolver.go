package token

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"payPlanner/internal/chain"
	"payPlanner/internal/model"
)

// MetadataSource reads ERC-20 metadata from a chain.
type MetadataSource interface {
	TokenMeta(ctx context.Context, chainID uint64, token common.Address) (chain.TokenMeta, error)
}

// Resolver resolves token descriptors. Resolution never fails: an unreadable
// token yields a placeholder descriptor.
type Resolver struct {
	source MetadataSource
	cache  *Cache
	logger *zap.Logger
}

func NewResolver(source MetadataSource, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		source: source,
		cache:  NewCache(),
		logger: logger,
	}
}

// Resolve returns metadata for (chainID, address), consulting the native
// table, then idx, then the chain.
func (r *Resolver) Resolve(ctx context.Context, idx *Index, chainID uint64, address common.Address) model.TokenDescriptor {
	if address == (common.Address{}) {
		return NativeToken(chainID)
	}

	key := model.TokenKey{ChainID: chainID, Address: address}
	if item, ok := idx.Lookup(chainID, address); ok {
		r.cache.Set(item.TokenDescriptor)
		return item.TokenDescriptor
	}
	if meta, ok := r.cache.Get(key); ok {
		return meta
	}

	if r.source == nil {
		return model.PlaceholderToken(chainID, address)
	}
	meta, err := r.source.TokenMeta(ctx, chainID, address)
	if err != nil || meta.Symbol == "" {
		r.logger.Debug("token metadata fallback",
			zap.Uint64("chain_id", chainID),
			zap.String("token", address.Hex()),
			zap.Error(err),
		)
		return model.PlaceholderToken(chainID, address)
	}

	desc := model.TokenDescriptor{
		Address:  address,
		Symbol:   meta.Symbol,
		Decimals: meta.Decimals,
		ChainID:  chainID,
	}
	r.cache.Set(desc)
	return desc
}
