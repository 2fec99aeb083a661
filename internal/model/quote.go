package model

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DepositLimits bounds the input amount accepted by a bridge route.
type DepositLimits struct {
	MinDeposit *big.Int
	MaxDeposit *big.Int
}

// QuoteSummary is a priced bridge quote.
type QuoteSummary struct {
	InputAmount  *big.Int
	OutputAmount *big.Int
	TotalFee     *big.Int
	ExpiresAt    time.Time
	Limits       DepositLimits
}

// ApprovalTx is an allowance transaction required before a swap.
type ApprovalTx struct {
	ChainID uint64         `json:"chain_id"`
	To      common.Address `json:"to"`
	Data    string         `json:"data"`
}

// SwapQuoteSummary is a priced swap (optionally cross-chain) quote.
type SwapQuoteSummary struct {
	InputAmount       *big.Int
	ExpectedOutput    *big.Int
	MinOutput         *big.Int
	Approvals         []ApprovalTx
	EstimatedFillTime time.Duration
}

// MarshalJSON renders amounts as decimal strings.
func (q QuoteSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		InputAmount  string    `json:"input_amount"`
		OutputAmount string    `json:"output_amount"`
		TotalFee     string    `json:"total_fee"`
		ExpiresAt    time.Time `json:"expires_at"`
		MinDeposit   string    `json:"min_deposit"`
		MaxDeposit   string    `json:"max_deposit"`
	}{
		InputAmount:  AmountString(q.InputAmount),
		OutputAmount: AmountString(q.OutputAmount),
		TotalFee:     AmountString(q.TotalFee),
		ExpiresAt:    q.ExpiresAt,
		MinDeposit:   AmountString(q.Limits.MinDeposit),
		MaxDeposit:   AmountString(q.Limits.MaxDeposit),
	})
}

// MarshalJSON renders amounts as decimal strings.
func (q SwapQuoteSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		InputAmount       string       `json:"input_amount"`
		ExpectedOutput    string       `json:"expected_output"`
		MinOutput         string       `json:"min_output"`
		Approvals         []ApprovalTx `json:"approvals,omitempty"`
		EstimatedFillSecs float64      `json:"estimated_fill_seconds"`
	}{
		InputAmount:       AmountString(q.InputAmount),
		ExpectedOutput:    AmountString(q.ExpectedOutput),
		MinOutput:         AmountString(q.MinOutput),
		Approvals:         q.Approvals,
		EstimatedFillSecs: q.EstimatedFillTime.Seconds(),
	})
}
