package quote

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"payPlanner/internal/model"
	"payPlanner/internal/pricing"
)

type fakePricer struct {
	mu         sync.Mutex
	limits     model.DepositLimits
	limitsErr  map[uint64]error
	quoteCalls int
	swapCalls  map[common.Address]int
	swapInput  *big.Int
	messages   []*pricing.CrossChainMessage
}

func (f *fakePricer) Limits(_ context.Context, route model.Route) (model.DepositLimits, error) {
	if err := f.limitsErr[route.OriginChainID]; err != nil {
		return model.DepositLimits{}, err
	}
	return f.limits, nil
}

func (f *fakePricer) Quote(ctx context.Context, req pricing.QuoteRequest) (model.QuoteSummary, error) {
	f.mu.Lock()
	f.quoteCalls++
	f.messages = append(f.messages, req.Message)
	f.mu.Unlock()
	calls := 0
	return feeQuote(&calls)(ctx, req.Amount)
}

func (f *fakePricer) SwapQuote(_ context.Context, req pricing.SwapQuoteRequest) (model.SwapQuoteSummary, error) {
	f.mu.Lock()
	if f.swapCalls == nil {
		f.swapCalls = map[common.Address]int{}
	}
	f.swapCalls[req.Route.InputToken]++
	f.mu.Unlock()
	return model.SwapQuoteSummary{
		InputAmount:    new(big.Int).Set(f.swapInput),
		ExpectedOutput: new(big.Int).Set(req.Amount),
		MinOutput:      new(big.Int).Set(req.Amount),
	}, nil
}

func usd(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func testTarget() Target {
	return Target{
		Token:    model.TokenDescriptor{ChainID: 42161, Decimals: 6, Symbol: "USDC"},
		Amount:   big.NewInt(100_000_000),
		PriceUSD: usd(1),
	}
}

func option(mode model.Mode, chainID uint64, token string, balance int64, estUSD *decimal.Decimal) model.PaymentOption {
	addr := common.HexToAddress(token)
	opt := model.PaymentOption{
		Mode:         mode,
		Token:        model.TokenDescriptor{ChainID: chainID, Address: addr, Decimals: 6},
		EstimatedUSD: estUSD,
		Route:        model.Route{OriginChainID: chainID, DestinationChainID: 42161, InputToken: addr},
	}
	opt.SetBalance(big.NewInt(balance))
	opt.ID = model.OptionID(mode, opt.Token.Key(), false)
	return opt
}

func TestApplyUSDShortfallSkipsQuote(t *testing.T) {
	pricer := &fakePricer{limits: limits(1, 1_000_000_000)}
	engine := NewEngine(pricer, Config{Slippage: halfPercent}, nil, nil)

	out := engine.Apply(context.Background(), Request{Target: testTarget()}, []model.PaymentOption{
		option(model.ModeBridge, 8453, "0xa1", 90_000_000, usd(90)),
	})
	require.Zero(t, pricer.quoteCalls)
	require.False(t, out[0].CanMeetTarget)
	short, ok := out[0].Unavailable.(model.USDShortfall)
	require.True(t, ok)
	require.True(t, short.RequiredUSD.Equal(decimal.NewFromInt(98)))
	require.True(t, short.AvailableUSD.Equal(decimal.NewFromInt(90)))
}

func TestApplyDirectBridgeAndFailures(t *testing.T) {
	pricer := &fakePricer{
		limits:    limits(5_000_000, 1_000_000_000),
		limitsErr: map[uint64]error{10: errors.New("route disabled")},
	}
	engine := NewEngine(pricer, Config{Slippage: halfPercent}, nil, nil)

	out := engine.Apply(context.Background(), Request{Target: testTarget()}, []model.PaymentOption{
		option(model.ModeDirect, 42161, "0xd1", 150_000_000, usd(150)),
		option(model.ModeDirect, 42161, "0xd2", 10, nil),
		option(model.ModeBridge, 8453, "0xb1", 500_000_000, usd(500)),
		option(model.ModeBridge, 137, "0xb2", 1_000_000, nil),
		option(model.ModeBridge, 10, "0xb3", 500_000_000, usd(500)),
	})

	require.True(t, out[0].CanMeetTarget)
	require.Nil(t, out[0].Unavailable)

	require.False(t, out[1].CanMeetTarget)
	require.IsType(t, model.InsufficientBalance{}, out[1].Unavailable)

	require.True(t, out[2].CanMeetTarget)
	require.NotNil(t, out[2].Quote)
	require.GreaterOrEqual(t, out[2].Quote.OutputAmount.Cmp(big.NewInt(100_000_000)), 0)

	require.IsType(t, model.MinDepositShortfall{}, out[3].Unavailable)

	failed, ok := out[4].Unavailable.(model.QuoteFetchFailed)
	require.True(t, ok)
	require.Contains(t, failed.Reason, "route disabled")
}

func TestApplyRequiresFallbackRecipient(t *testing.T) {
	pricer := &fakePricer{limits: limits(1, 1_000_000_000)}
	engine := NewEngine(pricer, Config{Slippage: halfPercent}, nil, nil)
	opts := []model.PaymentOption{option(model.ModeBridge, 8453, "0xb1", 500_000_000, nil)}

	out := engine.Apply(context.Background(), Request{
		Target:       testTarget(),
		ContractCall: &ContractCall{Message: []byte{0x01}},
	}, opts)
	failed, ok := out[0].Unavailable.(model.QuoteFetchFailed)
	require.True(t, ok)
	require.Equal(t, ErrMissingFallbackRecipient.Error(), failed.Reason)
	require.Zero(t, pricer.quoteCalls)

	fallback := common.HexToAddress("0xfb")
	out = engine.Apply(context.Background(), Request{
		Target:       testTarget(),
		ContractCall: &ContractCall{Message: []byte{0x01}, FallbackRecipient: fallback},
	}, opts)
	require.True(t, out[0].CanMeetTarget)
	require.NotEmpty(t, pricer.messages)
	require.Equal(t, fallback, pricer.messages[0].FallbackRecipient)
}

func TestApplySwapQuotesOnlyTopCandidates(t *testing.T) {
	pricer := &fakePricer{swapInput: big.NewInt(120_000_000)}
	engine := NewEngine(pricer, Config{SwapCandidates: 2}, nil, nil)

	out := engine.Apply(context.Background(), Request{Target: testTarget()}, []model.PaymentOption{
		option(model.ModeSwap, 8453, "0xc1", 100_000_000, usd(100)),
		option(model.ModeSwap, 8453, "0xc2", 300_000_000, usd(300)),
		option(model.ModeSwap, 8453, "0xc3", 200_000_000, usd(200)),
	})

	require.Len(t, pricer.swapCalls, 2)
	require.Zero(t, pricer.swapCalls[common.HexToAddress("0xc1")])
	require.Nil(t, out[0].SwapQuote)
	require.False(t, out[0].CanMeetTarget)
	require.True(t, out[1].CanMeetTarget)
	require.True(t, out[2].CanMeetTarget)
}

func TestApplySwapInsufficientForInput(t *testing.T) {
	pricer := &fakePricer{swapInput: big.NewInt(120_000_000)}
	engine := NewEngine(pricer, Config{}, nil, nil)

	out := engine.Apply(context.Background(), Request{Target: testTarget()}, []model.PaymentOption{
		option(model.ModeSwap, 8453, "0xc1", 110_000_000, nil),
	})
	require.NotNil(t, out[0].SwapQuote)
	require.False(t, out[0].CanMeetTarget)
	insufficient, ok := out[0].Unavailable.(model.InsufficientBalance)
	require.True(t, ok)
	require.Equal(t, "120000000", insufficient.Required.String())
}
