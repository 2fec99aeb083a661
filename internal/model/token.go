package model

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// UnknownTokenSymbol is used when token metadata cannot be resolved.
const UnknownTokenSymbol = "UNKNOWN TOKEN"

// TokenDescriptor captures resolved token metadata on a chain.
type TokenDescriptor struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	ChainID  uint64         `json:"chain_id"`
	LogoURL  string         `json:"logo_url,omitempty"`
}

// IsNative reports whether the descriptor refers to the chain's native currency.
func (t TokenDescriptor) IsNative() bool {
	return t.Address == (common.Address{})
}

// Key returns the (chain, address) identity of the token.
func (t TokenDescriptor) Key() TokenKey {
	return TokenKey{ChainID: t.ChainID, Address: t.Address}
}

// TokenKey identifies a token by chain and address.
type TokenKey struct {
	ChainID uint64
	Address common.Address
}

func (k TokenKey) String() string {
	return strings.ToLower(k.Address.Hex()) + "@" + uintString(k.ChainID)
}

// PlaceholderToken is returned when on-chain metadata reads fail.
func PlaceholderToken(chainID uint64, address common.Address) TokenDescriptor {
	return TokenDescriptor{
		Address:  address,
		Symbol:   UnknownTokenSymbol,
		Decimals: 18,
		ChainID:  chainID,
	}
}

// ListedToken is a catalogue entry from the pricing service.
type ListedToken struct {
	TokenDescriptor
	PriceUSD *decimal.Decimal
}
