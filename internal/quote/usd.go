package quote

import (
	"math/big"

	"github.com/shopspring/decimal"

	"payPlanner/internal/model"
)

// DefaultUSDBuffer discounts the target USD value before comparing balances.
var DefaultUSDBuffer = decimal.RequireFromString("0.98")

// Target is the amount of a token the payment must deliver.
type Target struct {
	Token    model.TokenDescriptor
	Amount   *big.Int
	PriceUSD *decimal.Decimal
}

// USD returns the target's USD value when the token price is known.
func (t Target) USD() (decimal.Decimal, bool) {
	if t.PriceUSD == nil || t.Amount == nil {
		return decimal.Zero, false
	}
	return model.USDValue(t.Amount, t.Token.Decimals, *t.PriceUSD), true
}

// CheckUSD reports a shortfall when the candidate's estimated USD balance is
// below the buffered target value. Unknown values never produce a shortfall.
func CheckUSD(target Target, estimated *decimal.Decimal, buffer decimal.Decimal) (model.USDShortfall, bool) {
	targetUSD, ok := target.USD()
	if !ok || estimated == nil {
		return model.USDShortfall{}, false
	}
	required := targetUSD.Mul(buffer)
	if estimated.GreaterThanOrEqual(required) {
		return model.USDShortfall{}, false
	}
	return model.USDShortfall{RequiredUSD: required, AvailableUSD: *estimated}, true
}
