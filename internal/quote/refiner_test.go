package quote

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"payPlanner/internal/model"
)

// feeQuote charges 0.3% plus a flat 3 units.
func feeQuote(calls *int) QuoteFunc {
	return func(_ context.Context, amount *big.Int) (model.QuoteSummary, error) {
		*calls++
		out := new(big.Int).Mul(amount, big.NewInt(997))
		out.Quo(out, big.NewInt(1000))
		out.Sub(out, big.NewInt(3))
		if out.Sign() < 0 {
			out.SetInt64(0)
		}
		return model.QuoteSummary{
			InputAmount:  new(big.Int).Set(amount),
			OutputAmount: out,
			TotalFee:     new(big.Int).Sub(amount, out),
		}, nil
	}
}

func limits(lo, hi int64) model.DepositLimits {
	return model.DepositLimits{MinDeposit: big.NewInt(lo), MaxDeposit: big.NewInt(hi)}
}

var halfPercent = decimal.RequireFromString("0.005")

func TestRefineConvergesIntoWindow(t *testing.T) {
	calls := 0
	res, err := Refine(context.Background(), RefineParams{
		Target:   big.NewInt(1_000_000),
		Balance:  big.NewInt(10_000_000),
		Limits:   limits(1_000, 5_000_000),
		Slippage: halfPercent,
	}, feeQuote(&calls))
	require.NoError(t, err)
	require.True(t, res.Converged)
	require.LessOrEqual(t, res.Attempts, MaxRefineAttempts)
	require.Equal(t, calls, res.Attempts)

	out := res.Quote.OutputAmount
	require.GreaterOrEqual(t, out.Cmp(big.NewInt(1_000_000)), 0)
	require.LessOrEqual(t, out.Cmp(big.NewInt(1_005_000)), 0)
}

func TestRefineMonotoneQuotesStayWithinAttemptCap(t *testing.T) {
	targets := []int64{10, 999, 123_456, 7_000_000}
	for _, target := range targets {
		calls := 0
		res, err := Refine(context.Background(), RefineParams{
			Target:   big.NewInt(target),
			Balance:  big.NewInt(50_000_000),
			Limits:   limits(1, 40_000_000),
			Slippage: halfPercent,
		}, feeQuote(&calls))
		require.NoError(t, err)
		require.LessOrEqual(t, calls, MaxRefineAttempts, "target %d", target)
		require.NotNil(t, res.Quote)
	}
}

func TestRefineShortfallSkipsFetch(t *testing.T) {
	calls := 0
	res, err := Refine(context.Background(), RefineParams{
		Target:   big.NewInt(1_000),
		Balance:  big.NewInt(50),
		Limits:   limits(100, 1_000_000),
		Slippage: halfPercent,
	}, feeQuote(&calls))
	require.NoError(t, err)
	require.True(t, res.Shortfall)
	require.Nil(t, res.Quote)
	require.Zero(t, calls)
}

func TestRefineStopsWhenBalanceCapsInput(t *testing.T) {
	calls := 0
	res, err := Refine(context.Background(), RefineParams{
		Target:   big.NewInt(1_000_000),
		Balance:  big.NewInt(500_000),
		Limits:   limits(1_000, 5_000_000),
		Slippage: halfPercent,
	}, feeQuote(&calls))
	require.NoError(t, err)
	require.False(t, res.Converged)
	require.Equal(t, 1, calls)
	require.Equal(t, "500000", res.Quote.InputAmount.String())
}

func TestRefineStartsFromInitialQuote(t *testing.T) {
	calls := 0
	initial := model.QuoteSummary{InputAmount: big.NewInt(1_003_013), OutputAmount: big.NewInt(1_000_000)}
	res, err := Refine(context.Background(), RefineParams{
		Target:   big.NewInt(1_000_000),
		Balance:  big.NewInt(2_000_000),
		Limits:   limits(1, 2_000_000),
		Slippage: halfPercent,
		Initial:  &initial,
	}, feeQuote(&calls))
	require.NoError(t, err)
	require.True(t, res.Converged)
	require.Zero(t, calls)
}

func TestRefineNoQuote(t *testing.T) {
	failing := func(context.Context, *big.Int) (model.QuoteSummary, error) {
		return model.QuoteSummary{}, errors.New("relayer offline")
	}
	_, err := Refine(context.Background(), RefineParams{
		Target:   big.NewInt(10),
		Balance:  big.NewInt(100),
		Limits:   limits(1, 100),
		Slippage: halfPercent,
	}, failing)
	require.ErrorIs(t, err, ErrNoQuote)
}

func TestCheckUSDAppliesBuffer(t *testing.T) {
	price := decimal.NewFromInt(1)
	target := Target{
		Token:    model.TokenDescriptor{Decimals: 6},
		Amount:   big.NewInt(100_000_000),
		PriceUSD: &price,
	}
	available := decimal.NewFromInt(90)
	short, ok := CheckUSD(target, &available, DefaultUSDBuffer)
	require.True(t, ok)
	require.True(t, short.RequiredUSD.Equal(decimal.NewFromInt(98)))
	require.True(t, short.AvailableUSD.Equal(available))

	enough := decimal.NewFromInt(98)
	_, ok = CheckUSD(target, &enough, DefaultUSDBuffer)
	require.False(t, ok)

	_, ok = CheckUSD(Target{Amount: big.NewInt(1)}, &available, DefaultUSDBuffer)
	require.False(t, ok)
}
