package model

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a non-negative base-10 integer amount.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return v, nil
}

// AmountString formats an amount as a decimal string, treating nil as zero.
func AmountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// CopyAmount returns an independent copy of v, or nil.
func CopyAmount(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// FormatUnits renders a base-unit amount with the token's decimal precision.
func FormatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(abs, denom)
	text := rat.FloatString(int(decimals))
	if sign < 0 {
		return "-" + text
	}
	return text
}

// USDValue converts a base-unit amount into a USD value using a unit price.
func USDValue(amount *big.Int, decimals uint8, priceUSD decimal.Decimal) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	units := decimal.NewFromBigInt(amount, -int32(decimals))
	return units.Mul(priceUSD)
}

func uintString(v uint64) string {
	return strconv.FormatUint(v, 10)
}
