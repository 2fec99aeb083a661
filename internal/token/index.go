package token

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"payPlanner/internal/model"
)

// Index is the per-refresh symbol and price lookup built from the pricing
// catalogue and the wrapped-native table.
type Index struct {
	tokens  map[model.TokenKey]model.ListedToken
	wrapped map[uint64]common.Address
}

// NewIndex builds an Index. Wrapped tokens missing from the catalogue are
// added with the chain's native symbol prefixed by "W".
func NewIndex(listed []model.ListedToken, wrapped map[uint64]common.Address) *Index {
	idx := &Index{
		tokens:  make(map[model.TokenKey]model.ListedToken, len(listed)),
		wrapped: MergeWrapped(wrapped),
	}
	for _, item := range listed {
		idx.tokens[item.Key()] = item
	}
	for chainID, addr := range idx.wrapped {
		key := model.TokenKey{ChainID: chainID, Address: addr}
		if _, ok := idx.tokens[key]; ok {
			continue
		}
		native := NativeToken(chainID)
		idx.tokens[key] = model.ListedToken{TokenDescriptor: model.TokenDescriptor{
			Address:  addr,
			Symbol:   "W" + native.Symbol,
			Decimals: native.Decimals,
			ChainID:  chainID,
		}}
	}
	return idx
}

// Lookup returns the catalogue entry for (chainID, address).
func (idx *Index) Lookup(chainID uint64, address common.Address) (model.ListedToken, bool) {
	if idx == nil {
		return model.ListedToken{}, false
	}
	item, ok := idx.tokens[model.TokenKey{ChainID: chainID, Address: address}]
	return item, ok
}

// Price returns the USD price of a token. The native currency is priced like
// its wrapped counterpart.
func (idx *Index) Price(chainID uint64, address common.Address) (decimal.Decimal, bool) {
	if idx == nil {
		return decimal.Zero, false
	}
	if address == (common.Address{}) {
		wrapped, ok := idx.wrapped[chainID]
		if !ok {
			return decimal.Zero, false
		}
		address = wrapped
	}
	item, ok := idx.tokens[model.TokenKey{ChainID: chainID, Address: address}]
	if !ok || item.PriceUSD == nil {
		return decimal.Zero, false
	}
	return *item.PriceUSD, true
}

// Wrapped returns the wrapped native token for chainID.
func (idx *Index) Wrapped(chainID uint64) (common.Address, bool) {
	if idx == nil {
		return common.Address{}, false
	}
	addr, ok := idx.wrapped[chainID]
	return addr, ok
}

// IsWrappedNative reports whether address is the wrapped native token of chainID.
func (idx *Index) IsWrappedNative(chainID uint64, address common.Address) bool {
	wrapped, ok := idx.Wrapped(chainID)
	return ok && wrapped == address
}

// Tokens returns the catalogue entries on chainID.
func (idx *Index) Tokens(chainID uint64) []model.ListedToken {
	if idx == nil {
		return nil
	}
	out := make([]model.ListedToken, 0)
	for key, item := range idx.tokens {
		if key.ChainID == chainID {
			out = append(out, item)
		}
	}
	return out
}
