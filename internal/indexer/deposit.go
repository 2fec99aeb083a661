package indexer

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"payPlanner/internal/model"
)

// Deposit is one indexed deposit.
type Deposit struct {
	DepositID          *big.Int
	OriginChainID      uint64
	DestinationChainID uint64
	Depositor          string
	Recipient          string
	InputToken         common.Address
	OutputToken        common.Address
	InputAmount        *big.Int
	OutputAmount       *big.Int
	Message            string
	RawStatus          string
	Status             model.Stage
	DepositTxHash      string
	FillTxHash         string
	DepositedAt        time.Time
	FilledAt           time.Time
}

type depositRecord struct {
	DepositID             json.Number `json:"depositId"`
	OriginChainID         json.Number `json:"originChainId"`
	DestinationChainID    json.Number `json:"destinationChainId"`
	Depositor             string      `json:"depositor"`
	Recipient             string      `json:"recipient"`
	InputToken            string      `json:"inputToken"`
	OutputToken           string      `json:"outputToken"`
	InputAmount           json.Number `json:"inputAmount"`
	OutputAmount          json.Number `json:"outputAmount"`
	Message               string      `json:"message"`
	Status                string      `json:"status"`
	DepositTxHash         string      `json:"depositTxHash"`
	FillTx                string      `json:"fillTx"`
	FillTxHash            string      `json:"fillTxHash"`
	DepositBlockTimestamp string      `json:"depositBlockTimestamp"`
	FillBlockTimestamp    string      `json:"fillBlockTimestamp"`
}

func parseDeposit(raw json.RawMessage) (Deposit, error) {
	var rec depositRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Deposit{}, fmt.Errorf("decode record: %w", err)
	}

	depositID, err := model.ParseAmount(rec.DepositID.String())
	if err != nil {
		return Deposit{}, fmt.Errorf("deposit id: %w", err)
	}
	origin, err := strconv.ParseUint(rec.OriginChainID.String(), 10, 64)
	if err != nil {
		return Deposit{}, fmt.Errorf("origin chain: %w", err)
	}
	dest, err := strconv.ParseUint(rec.DestinationChainID.String(), 10, 64)
	if err != nil {
		return Deposit{}, fmt.Errorf("destination chain: %w", err)
	}
	if rec.DepositTxHash == "" {
		return Deposit{}, fmt.Errorf("deposit %s has no transaction hash", depositID)
	}
	inputAmount, err := optionalAmount(rec.InputAmount)
	if err != nil {
		return Deposit{}, fmt.Errorf("input amount: %w", err)
	}
	outputAmount, err := optionalAmount(rec.OutputAmount)
	if err != nil {
		return Deposit{}, fmt.Errorf("output amount: %w", err)
	}

	fill := rec.FillTx
	if fill == "" {
		fill = rec.FillTxHash
	}
	return Deposit{
		DepositID:          depositID,
		OriginChainID:      origin,
		DestinationChainID: dest,
		Depositor:          rec.Depositor,
		Recipient:          rec.Recipient,
		InputToken:         addressOrZero(rec.InputToken),
		OutputToken:        addressOrZero(rec.OutputToken),
		InputAmount:        inputAmount,
		OutputAmount:       outputAmount,
		Message:            rec.Message,
		RawStatus:          rec.Status,
		Status:             model.StageFromRemoteStatus(rec.Status),
		DepositTxHash:      rec.DepositTxHash,
		FillTxHash:         fill,
		DepositedAt:        parseTimestamp(rec.DepositBlockTimestamp),
		FilledAt:           parseTimestamp(rec.FillBlockTimestamp),
	}, nil
}

func optionalAmount(n json.Number) (*big.Int, error) {
	if n == "" {
		return nil, nil
	}
	return model.ParseAmount(n.String())
}

// addressOrZero accepts 20-byte addresses and 32-byte left-padded ones.
func addressOrZero(s string) common.Address {
	s = strings.TrimSpace(s)
	if common.IsHexAddress(s) {
		return common.HexToAddress(s)
	}
	if len(s) == 66 && strings.HasPrefix(s, "0x") {
		return common.HexToAddress("0x" + s[26:])
	}
	return common.Address{}
}

// parseTimestamp accepts RFC3339 strings and unix seconds.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC()
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	return time.Time{}
}

// Entry converts the deposit into a history entry owned by the indexer.
func (d Deposit) Entry() model.PaymentHistoryEntry {
	created := d.DepositedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	updated := created
	if !d.FilledAt.IsZero() {
		updated = d.FilledAt
	}

	entry := model.PaymentHistoryEntry{
		ID:                 "indexer:" + strconv.FormatUint(d.OriginChainID, 10) + ":" + d.DepositID.String(),
		Mode:               model.ModeBridge,
		Status:             d.Status,
		Source:             model.SourceIndexer,
		CreatedAt:          created,
		UpdatedAt:          updated,
		InputToken:         model.TokenDescriptor{Address: d.InputToken, ChainID: d.OriginChainID},
		OutputToken:        model.TokenDescriptor{Address: d.OutputToken, ChainID: d.DestinationChainID},
		InputAmount:        model.CopyAmount(d.InputAmount),
		OutputAmount:       model.CopyAmount(d.OutputAmount),
		OriginChainID:      d.OriginChainID,
		DestinationChainID: d.DestinationChainID,
		DepositID:          model.CopyAmount(d.DepositID),
		DepositTxHash:      d.DepositTxHash,
		FillTxHash:         d.FillTxHash,
		Depositor:          d.Depositor,
		Recipient:          d.Recipient,
		DepositMessage:     d.Message,
	}
	entry.UpsertTimeline(model.StageDepositConfirmed, created, d.DepositTxHash, "")
	if d.Status != model.StageDepositConfirmed {
		entry.UpsertTimeline(d.Status, updated, d.FillTxHash, "")
	}
	return entry
}
