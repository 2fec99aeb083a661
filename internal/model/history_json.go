package model

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

type entryRecord struct {
	ID                   string                 `json:"id"`
	Mode                 Mode                   `json:"mode"`
	Status               Stage                  `json:"status"`
	Source               EntrySource            `json:"source,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
	InputToken           TokenDescriptor        `json:"input_token"`
	OutputToken          TokenDescriptor        `json:"output_token"`
	InputAmount          string                 `json:"input_amount"`
	OutputAmount         string                 `json:"output_amount"`
	OriginChainID        uint64                 `json:"origin_chain_id"`
	DestinationChainID   uint64                 `json:"destination_chain_id"`
	DepositID            string                 `json:"deposit_id,omitempty"`
	DepositTxHash        string                 `json:"deposit_tx_hash,omitempty"`
	FillTxHash           string                 `json:"fill_tx_hash,omitempty"`
	WrapTxHash           string                 `json:"wrap_tx_hash,omitempty"`
	SwapTxHash           string                 `json:"swap_tx_hash,omitempty"`
	ApprovalTxHashes     []string               `json:"approval_tx_hashes,omitempty"`
	Errors               []string               `json:"errors,omitempty"`
	Timeline             []PaymentTimelineEntry `json:"timeline"`
	Depositor            string                 `json:"depositor,omitempty"`
	Recipient            string                 `json:"recipient,omitempty"`
	OriginSpokePool      string                 `json:"origin_spoke_pool,omitempty"`
	DestinationSpokePool string                 `json:"destination_spoke_pool,omitempty"`
	DepositMessage       string                 `json:"deposit_message,omitempty"`
}

// MarshalJSON encodes amounts as decimal strings.
func (e PaymentHistoryEntry) MarshalJSON() ([]byte, error) {
	rec := entryRecord{
		ID:                   e.ID,
		Mode:                 e.Mode,
		Status:               e.Status,
		Source:               e.Source,
		CreatedAt:            e.CreatedAt,
		UpdatedAt:            e.UpdatedAt,
		InputToken:           e.InputToken,
		OutputToken:          e.OutputToken,
		InputAmount:          AmountString(e.InputAmount),
		OutputAmount:         AmountString(e.OutputAmount),
		OriginChainID:        e.OriginChainID,
		DestinationChainID:   e.DestinationChainID,
		DepositTxHash:        e.DepositTxHash,
		FillTxHash:           e.FillTxHash,
		WrapTxHash:           e.WrapTxHash,
		SwapTxHash:           e.SwapTxHash,
		ApprovalTxHashes:     e.ApprovalTxHashes,
		Errors:               e.Errors,
		Timeline:             e.Timeline,
		Depositor:            e.Depositor,
		Recipient:            e.Recipient,
		OriginSpokePool:      e.OriginSpokePool,
		DestinationSpokePool: e.DestinationSpokePool,
		DepositMessage:       e.DepositMessage,
	}
	if e.DepositID != nil {
		rec.DepositID = e.DepositID.String()
	}
	return json.Marshal(rec)
}

// UnmarshalJSON parses decimal-string amounts back into big integers.
func (e *PaymentHistoryEntry) UnmarshalJSON(data []byte) error {
	var rec entryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	if rec.ID == "" {
		return fmt.Errorf("entry id is empty")
	}
	if !rec.Status.Valid() {
		return fmt.Errorf("entry %s: invalid status %q", rec.ID, rec.Status)
	}
	input, err := parseOptionalAmount(rec.InputAmount)
	if err != nil {
		return fmt.Errorf("entry %s input amount: %w", rec.ID, err)
	}
	output, err := parseOptionalAmount(rec.OutputAmount)
	if err != nil {
		return fmt.Errorf("entry %s output amount: %w", rec.ID, err)
	}
	var depositID *big.Int
	if rec.DepositID != "" {
		if depositID, err = ParseAmount(rec.DepositID); err != nil {
			return fmt.Errorf("entry %s deposit id: %w", rec.ID, err)
		}
	}

	*e = PaymentHistoryEntry{
		ID:                   rec.ID,
		Mode:                 rec.Mode,
		Status:               rec.Status,
		Source:               rec.Source,
		CreatedAt:            rec.CreatedAt,
		UpdatedAt:            rec.UpdatedAt,
		InputToken:           rec.InputToken,
		OutputToken:          rec.OutputToken,
		InputAmount:          input,
		OutputAmount:         output,
		OriginChainID:        rec.OriginChainID,
		DestinationChainID:   rec.DestinationChainID,
		DepositID:            depositID,
		DepositTxHash:        rec.DepositTxHash,
		FillTxHash:           rec.FillTxHash,
		WrapTxHash:           rec.WrapTxHash,
		SwapTxHash:           rec.SwapTxHash,
		ApprovalTxHashes:     rec.ApprovalTxHashes,
		Errors:               rec.Errors,
		Timeline:             rec.Timeline,
		Depositor:            rec.Depositor,
		Recipient:            rec.Recipient,
		OriginSpokePool:      rec.OriginSpokePool,
		DestinationSpokePool: rec.DestinationSpokePool,
		DepositMessage:       rec.DepositMessage,
	}
	if e.Source == "" {
		e.Source = SourceLocal
	}
	return nil
}

func parseOptionalAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	return ParseAmount(s)
}

// EncodeEntries serializes an account's entry list.
func EncodeEntries(entries []PaymentHistoryEntry) ([]byte, error) {
	if entries == nil {
		entries = []PaymentHistoryEntry{}
	}
	return json.Marshal(entries)
}

// DecodeEntries parses an account's entry list. Any malformed entry fails the
// whole list.
func DecodeEntries(data []byte) ([]PaymentHistoryEntry, error) {
	var entries []PaymentHistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
