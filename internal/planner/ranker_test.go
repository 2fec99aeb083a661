package planner

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"payPlanner/internal/model"
)

func rankOption(mode model.Mode, chainID uint64, token string, meets bool, value int64) model.PaymentOption {
	opt := model.PaymentOption{
		Mode:          mode,
		Token:         model.TokenDescriptor{ChainID: chainID, Address: common.HexToAddress(token)},
		CanMeetTarget: meets,
	}
	switch mode {
	case model.ModeDirect:
		opt.SetBalance(big.NewInt(value))
	case model.ModeBridge:
		opt.Quote = &model.QuoteSummary{OutputAmount: big.NewInt(value)}
	case model.ModeSwap:
		opt.SwapQuote = &model.SwapQuoteSummary{ExpectedOutput: big.NewInt(value)}
	}
	opt.ID = model.OptionID(mode, opt.Token.Key(), false)
	return opt
}

func TestRankOrdersMeetingDirectFirst(t *testing.T) {
	ranked := Rank([]model.PaymentOption{
		rankOption(model.ModeSwap, 10, "0x1", true, 900),
		rankOption(model.ModeBridge, 8453, "0x2", false, 5000),
		rankOption(model.ModeBridge, 137, "0x3", true, 800),
		rankOption(model.ModeDirect, 42161, "0x4", true, 100),
		rankOption(model.ModeSwap, 1, "0x5", false, 10),
	}, true)

	ids := make([]string, 0, len(ranked))
	for _, opt := range ranked {
		ids = append(ids, string(opt.Mode)+"@"+opt.Token.Address.Hex()[40:])
	}
	require.Equal(t, []string{"direct@04", "swap@01", "bridge@03", "bridge@02", "swap@05"}, ids)

	seenUnmet := false
	for _, opt := range ranked {
		if !opt.CanMeetTarget {
			seenUnmet = true
			continue
		}
		require.False(t, seenUnmet, "meeting option after a failing one")
	}
}

func TestRankDedupesByLowestPriority(t *testing.T) {
	ranked := Rank([]model.PaymentOption{
		rankOption(model.ModeSwap, 8453, "0xaa", true, 2000),
		rankOption(model.ModeBridge, 8453, "0xaa", false, 10),
		rankOption(model.ModeSwap, 10, "0xbb", true, 100),
		rankOption(model.ModeSwap, 10, "0xbb", true, 300),
	}, true)

	require.Len(t, ranked, 2)
	byChain := map[uint64]model.PaymentOption{}
	for _, opt := range ranked {
		byChain[opt.Token.ChainID] = opt
	}
	require.Equal(t, model.ModeBridge, byChain[8453].Mode)
	require.Equal(t, "300", byChain[10].DeliverableValue().String())
}

func TestRankHidesUnavailableByDefault(t *testing.T) {
	ranked := Rank([]model.PaymentOption{
		rankOption(model.ModeBridge, 8453, "0x2", false, 5000),
		rankOption(model.ModeDirect, 42161, "0x4", true, 100),
	}, false)
	require.Len(t, ranked, 1)
	require.Equal(t, model.ModeDirect, ranked[0].Mode)
}
