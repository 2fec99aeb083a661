package token

import (
	"github.com/ethereum/go-ethereum/common"

	"payPlanner/internal/model"
)

type nativeCurrency struct {
	Symbol   string
	Decimals uint8
}

var nativeCurrencies = map[uint64]nativeCurrency{
	1:        {Symbol: "ETH", Decimals: 18},
	10:       {Symbol: "ETH", Decimals: 18},
	56:       {Symbol: "BNB", Decimals: 18},
	137:      {Symbol: "POL", Decimals: 18},
	324:      {Symbol: "ETH", Decimals: 18},
	480:      {Symbol: "ETH", Decimals: 18},
	8453:     {Symbol: "ETH", Decimals: 18},
	34443:    {Symbol: "ETH", Decimals: 18},
	42161:    {Symbol: "ETH", Decimals: 18},
	57073:    {Symbol: "ETH", Decimals: 18},
	59144:    {Symbol: "ETH", Decimals: 18},
	81457:    {Symbol: "ETH", Decimals: 18},
	534352:   {Symbol: "ETH", Decimals: 18},
	7777777:  {Symbol: "ETH", Decimals: 18},
	11155111: {Symbol: "ETH", Decimals: 18},
}

// DefaultWrappedNative maps chain id to the wrapped native token.
var DefaultWrappedNative = map[uint64]common.Address{
	1:        common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
	10:       common.HexToAddress("0x4200000000000000000000000000000000000006"),
	56:       common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"),
	137:      common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270"),
	324:      common.HexToAddress("0x5AEa5775959fBC2557Cc8789bC1bf90A239D9a91"),
	8453:     common.HexToAddress("0x4200000000000000000000000000000000000006"),
	42161:    common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
	59144:    common.HexToAddress("0xe5D7C2a44FfDDf6b295A15c148167daaAf5Cf34f"),
	81457:    common.HexToAddress("0x4300000000000000000000000000000000000004"),
	534352:   common.HexToAddress("0x5300000000000000000000000000000000000004"),
	11155111: common.HexToAddress("0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14"),
}

// NativeToken describes the native currency of chainID.
func NativeToken(chainID uint64) model.TokenDescriptor {
	native, ok := nativeCurrencies[chainID]
	if !ok {
		native = nativeCurrency{Symbol: "ETH", Decimals: 18}
	}
	return model.TokenDescriptor{
		Address:  common.Address{},
		Symbol:   native.Symbol,
		Decimals: native.Decimals,
		ChainID:  chainID,
	}
}

// MergeWrapped overlays the caller table on the default table per chain.
func MergeWrapped(overrides map[uint64]common.Address) map[uint64]common.Address {
	out := make(map[uint64]common.Address, len(DefaultWrappedNative)+len(overrides))
	for chainID, addr := range DefaultWrappedNative {
		out[chainID] = addr
	}
	for chainID, addr := range overrides {
		out[chainID] = addr
	}
	return out
}
