package model

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Mode is the way an option delivers the target.
type Mode string

const (
	ModeDirect Mode = "direct"
	ModeBridge Mode = "bridge"
	ModeSwap   Mode = "swap"
)

// Priority orders modes for deduplication; lower wins.
func (m Mode) Priority() int {
	switch m {
	case ModeDirect:
		return 1
	case ModeBridge:
		return 2
	case ModeSwap:
		return 3
	default:
		return 99
	}
}

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDirect:
		return ModeDirect, nil
	case ModeBridge:
		return ModeBridge, nil
	case ModeSwap:
		return ModeSwap, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Route describes how value moves from the payer's asset to the target.
type Route struct {
	OriginChainID      uint64         `json:"origin_chain_id"`
	DestinationChainID uint64         `json:"destination_chain_id"`
	InputToken         common.Address `json:"input_token"`
	OutputToken        common.Address `json:"output_token"`
	IsNative           bool           `json:"is_native"`
}

// CrossChain reports whether the route leaves the origin chain.
func (r Route) CrossChain() bool {
	return r.OriginChainID != r.DestinationChainID
}

// PaymentOption is one candidate way to pay the target, recomputed every refresh.
type PaymentOption struct {
	ID            string
	Mode          Mode
	Token         TokenDescriptor
	WrappedToken  *TokenDescriptor
	RequiresWrap  bool
	Balance       *big.Int
	PriceUSD      *decimal.Decimal
	EstimatedUSD  *decimal.Decimal
	Route         Route
	Quote         *QuoteSummary
	SwapQuote     *SwapQuoteSummary
	CanMeetTarget bool
	Unavailable   Unavailability
}

// OptionID derives the per-refresh identity of a candidate.
func OptionID(mode Mode, token TokenKey, requiresWrap bool) string {
	id := string(mode) + ":" + token.String()
	if requiresWrap {
		id += ":wrap"
	}
	return id
}

// GroupKey identifies options that pay with the same asset.
func (o PaymentOption) GroupKey() TokenKey {
	return o.Token.Key()
}

// DeliverableValue estimates how much of the target token the option delivers.
func (o PaymentOption) DeliverableValue() *big.Int {
	switch {
	case o.Mode == ModeSwap && o.SwapQuote != nil && o.SwapQuote.ExpectedOutput != nil:
		return o.SwapQuote.ExpectedOutput
	case o.Mode == ModeBridge && o.Quote != nil && o.Quote.OutputAmount != nil:
		return o.Quote.OutputAmount
	case o.Mode == ModeDirect && o.Balance != nil:
		return o.Balance
	default:
		return new(big.Int)
	}
}

// SetBalance stores a copy of v, clamping negatives and nil to zero.
func (o *PaymentOption) SetBalance(v *big.Int) {
	if v == nil || v.Sign() < 0 {
		o.Balance = new(big.Int)
		return
	}
	o.Balance = new(big.Int).Set(v)
}

// MarkUnavailable attaches a reason and clears canMeetTarget.
func (o *PaymentOption) MarkUnavailable(u Unavailability) {
	o.Unavailable = u
	o.CanMeetTarget = false
}

type optionJSON struct {
	ID            string              `json:"id"`
	Mode          Mode                `json:"mode"`
	Token         TokenDescriptor     `json:"token"`
	WrappedToken  *TokenDescriptor    `json:"wrapped_token,omitempty"`
	RequiresWrap  bool                `json:"requires_wrap"`
	Balance       string              `json:"balance"`
	BalanceUnits  string              `json:"balance_units"`
	PriceUSD      *decimal.Decimal    `json:"price_usd,omitempty"`
	EstimatedUSD  *decimal.Decimal    `json:"estimated_usd,omitempty"`
	Route         Route               `json:"route"`
	Quote         *QuoteSummary       `json:"quote,omitempty"`
	SwapQuote     *SwapQuoteSummary   `json:"swap_quote,omitempty"`
	CanMeetTarget bool                `json:"can_meet_target"`
	Unavailable   *UnavailabilityJSON `json:"unavailable,omitempty"`
}

// MarshalJSON renders amounts as decimal strings and flattens the unavailability.
func (o PaymentOption) MarshalJSON() ([]byte, error) {
	return json.Marshal(optionJSON{
		ID:            o.ID,
		Mode:          o.Mode,
		Token:         o.Token,
		WrappedToken:  o.WrappedToken,
		RequiresWrap:  o.RequiresWrap,
		Balance:       AmountString(o.Balance),
		BalanceUnits:  FormatUnits(o.Balance, o.Token.Decimals),
		PriceUSD:      o.PriceUSD,
		EstimatedUSD:  o.EstimatedUSD,
		Route:         o.Route,
		Quote:         o.Quote,
		SwapQuote:     o.SwapQuote,
		CanMeetTarget: o.CanMeetTarget,
		Unavailable:   EncodeUnavailability(o.Unavailable),
	})
}
