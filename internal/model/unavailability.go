package model

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// UnavailabilityKind tags the reason an option cannot be used.
type UnavailabilityKind string

const (
	UnavailableMinDepositShortfall UnavailabilityKind = "minDepositShortfall"
	UnavailableInsufficientBalance UnavailabilityKind = "insufficientBalance"
	UnavailableUSDShortfall        UnavailabilityKind = "usdShortfall"
	UnavailableQuoteFetchFailed    UnavailabilityKind = "quoteFetchFailed"
)

// Unavailability explains why an option cannot meet the target. It is a closed
// set: only the variants in this package implement it.
type Unavailability interface {
	Kind() UnavailabilityKind
	Message() string
	unavailability()
}

// MinDepositShortfall means the balance is below the route's minimum deposit.
type MinDepositShortfall struct {
	MinDeposit *big.Int
	Balance    *big.Int
}

func (MinDepositShortfall) Kind() UnavailabilityKind { return UnavailableMinDepositShortfall }
func (u MinDepositShortfall) Message() string {
	return fmt.Sprintf("balance %s below minimum deposit %s", AmountString(u.Balance), AmountString(u.MinDeposit))
}
func (MinDepositShortfall) unavailability() {}

// InsufficientBalance means the balance does not cover the required input.
type InsufficientBalance struct {
	Required *big.Int
	Balance  *big.Int
}

func (InsufficientBalance) Kind() UnavailabilityKind { return UnavailableInsufficientBalance }
func (u InsufficientBalance) Message() string {
	return fmt.Sprintf("balance %s below required %s", AmountString(u.Balance), AmountString(u.Required))
}
func (InsufficientBalance) unavailability() {}

// USDShortfall means the estimated USD balance is below the buffered target value.
type USDShortfall struct {
	RequiredUSD  decimal.Decimal
	AvailableUSD decimal.Decimal
}

func (USDShortfall) Kind() UnavailabilityKind { return UnavailableUSDShortfall }
func (u USDShortfall) Message() string {
	return fmt.Sprintf("balance worth $%s, need $%s", u.AvailableUSD.StringFixed(2), u.RequiredUSD.StringFixed(2))
}
func (USDShortfall) unavailability() {}

// QuoteFetchFailed means the quote service could not price the route.
type QuoteFetchFailed struct {
	Reason string
}

func (QuoteFetchFailed) Kind() UnavailabilityKind { return UnavailableQuoteFetchFailed }
func (u QuoteFetchFailed) Message() string         { return "quote unavailable: " + u.Reason }
func (QuoteFetchFailed) unavailability()           {}

// UnavailabilityJSON is the wire shape of an Unavailability.
type UnavailabilityJSON struct {
	Kind         UnavailabilityKind `json:"kind"`
	Message      string             `json:"message"`
	MinDeposit   string             `json:"min_deposit,omitempty"`
	Required     string             `json:"required,omitempty"`
	Balance      string             `json:"balance,omitempty"`
	RequiredUSD  string             `json:"required_usd,omitempty"`
	AvailableUSD string             `json:"available_usd,omitempty"`
}

// EncodeUnavailability flattens u for JSON output; nil yields nil.
func EncodeUnavailability(u Unavailability) *UnavailabilityJSON {
	if u == nil {
		return nil
	}
	out := &UnavailabilityJSON{Kind: u.Kind(), Message: u.Message()}
	switch v := u.(type) {
	case MinDepositShortfall:
		out.MinDeposit = AmountString(v.MinDeposit)
		out.Balance = AmountString(v.Balance)
	case InsufficientBalance:
		out.Required = AmountString(v.Required)
		out.Balance = AmountString(v.Balance)
	case USDShortfall:
		out.RequiredUSD = v.RequiredUSD.String()
		out.AvailableUSD = v.AvailableUSD.String()
	}
	return out
}
