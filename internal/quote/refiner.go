package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"payPlanner/internal/model"
)

// MaxRefineAttempts caps quote fetches per refinement.
const MaxRefineAttempts = 6

// ErrNoQuote is returned when refinement never obtained a quote.
var ErrNoQuote = errors.New("no quote obtained")

// QuoteFunc prices a bridge deposit of amount.
type QuoteFunc func(ctx context.Context, amount *big.Int) (model.QuoteSummary, error)

// RefineParams bounds a refinement.
type RefineParams struct {
	Target   *big.Int
	Balance  *big.Int
	Limits   model.DepositLimits
	Slippage decimal.Decimal
	// Initial is an already fetched quote to start from.
	Initial *model.QuoteSummary
}

// Refinement is the outcome of Refine.
type Refinement struct {
	Quote     *model.QuoteSummary
	Attempts  int
	Converged bool
	Shortfall bool
}

// Refine searches for an input whose output lands in [target, target*(1+slippage)]
// within [minDeposit, min(balance, maxDeposit)]. Each step rescales the last input
// by upper/output; it stops on success, when the next input repeats, or after
// MaxRefineAttempts fetches.
func Refine(ctx context.Context, params RefineParams, fetch QuoteFunc) (Refinement, error) {
	if params.Target == nil || params.Target.Sign() <= 0 {
		return Refinement{}, fmt.Errorf("refine target must be positive")
	}
	balance := params.Balance
	if balance == nil {
		balance = new(big.Int)
	}
	floor := params.Limits.MinDeposit
	if floor == nil {
		floor = new(big.Int)
	}
	if balance.Cmp(floor) < 0 {
		return Refinement{Shortfall: true}, nil
	}
	ceiling := new(big.Int).Set(balance)
	if maxDeposit := params.Limits.MaxDeposit; maxDeposit != nil && maxDeposit.Sign() > 0 && maxDeposit.Cmp(ceiling) < 0 {
		ceiling.Set(maxDeposit)
	}
	if ceiling.Sign() == 0 {
		return Refinement{Shortfall: true}, nil
	}

	upper := upperBound(params.Target, params.Slippage)
	var (
		result       Refinement
		current      = params.Initial
		last         *model.QuoteSummary
		prevRequired *big.Int
		lastErr      error
	)
	next := ceiling
	if current != nil {
		last = current
		next = requiredInput(current, upper, floor, ceiling)
		result.Quote = betterQuote(nil, current, params.Target)
		if inWindow(current.OutputAmount, params.Target, upper) {
			result.Converged = true
			return result, nil
		}
	}

	for result.Attempts < MaxRefineAttempts {
		if current == nil || next.Cmp(current.InputAmount) != 0 {
			q, err := fetch(ctx, new(big.Int).Set(next))
			result.Attempts++
			if err != nil {
				lastErr = err
				break
			}
			current = &q
			last = current
			result.Quote = betterQuote(result.Quote, current, params.Target)
		}

		if inWindow(current.OutputAmount, params.Target, upper) {
			result.Converged = true
			break
		}

		required := requiredInput(current, upper, floor, ceiling)
		if required.Cmp(current.InputAmount) == 0 || (prevRequired != nil && required.Cmp(prevRequired) == 0) {
			break
		}
		prevRequired = required
		next = required
	}

	if result.Quote == nil {
		result.Quote = last
	}
	if result.Quote == nil {
		if lastErr != nil {
			return result, fmt.Errorf("%w: %v", ErrNoQuote, lastErr)
		}
		return result, ErrNoQuote
	}
	return result, nil
}

func upperBound(target *big.Int, slippage decimal.Decimal) *big.Int {
	factor := decimal.NewFromInt(1).Add(slippage)
	return decimal.NewFromBigInt(target, 0).Mul(factor).Floor().BigInt()
}

func inWindow(output, target, upper *big.Int) bool {
	if output == nil {
		return false
	}
	return output.Cmp(target) >= 0 && output.Cmp(upper) <= 0
}

// requiredInput scales the quote's input by upper/output, clamped to bounds.
func requiredInput(q *model.QuoteSummary, upper, floor, ceiling *big.Int) *big.Int {
	if q.OutputAmount == nil || q.OutputAmount.Sign() <= 0 || q.InputAmount == nil {
		return new(big.Int).Set(ceiling)
	}
	next := new(big.Int).Mul(q.InputAmount, upper)
	next.Quo(next, q.OutputAmount)
	return clamp(next, floor, ceiling)
}

func clamp(v, lo, hi *big.Int) *big.Int {
	switch {
	case v.Cmp(lo) < 0:
		return new(big.Int).Set(lo)
	case v.Cmp(hi) > 0:
		return new(big.Int).Set(hi)
	default:
		return v
	}
}

// betterQuote keeps the quote closest to target among those not below it.
func betterQuote(best, candidate *model.QuoteSummary, target *big.Int) *model.QuoteSummary {
	if candidate == nil || candidate.OutputAmount == nil || candidate.OutputAmount.Cmp(target) < 0 {
		return best
	}
	if best == nil || candidate.OutputAmount.Cmp(best.OutputAmount) < 0 {
		return candidate
	}
	return best
}
