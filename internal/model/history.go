package model

import (
	"math/big"
	"strings"
	"time"
)

// EntrySource records where an entry was first observed.
type EntrySource string

const (
	SourceLocal   EntrySource = "local"
	SourceIndexer EntrySource = "indexer"
)

// PaymentTimelineEntry records when an entry reached a stage.
type PaymentTimelineEntry struct {
	Stage     Stage     `json:"stage"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Note      string    `json:"note,omitempty"`
}

// PaymentHistoryEntry is the persisted state of one payment attempt.
type PaymentHistoryEntry struct {
	ID                   string
	Mode                 Mode
	Status               Stage
	Source               EntrySource
	CreatedAt            time.Time
	UpdatedAt            time.Time
	InputToken           TokenDescriptor
	OutputToken          TokenDescriptor
	InputAmount          *big.Int
	OutputAmount         *big.Int
	OriginChainID        uint64
	DestinationChainID   uint64
	DepositID            *big.Int
	DepositTxHash        string
	FillTxHash           string
	WrapTxHash           string
	SwapTxHash           string
	ApprovalTxHashes     []string
	Errors               []string
	Timeline             []PaymentTimelineEntry
	Depositor            string
	Recipient            string
	OriginSpokePool      string
	DestinationSpokePool string
	DepositMessage       string
}

// Clone returns a deep copy safe to hand to subscribers.
func (e PaymentHistoryEntry) Clone() PaymentHistoryEntry {
	out := e
	out.InputAmount = CopyAmount(e.InputAmount)
	out.OutputAmount = CopyAmount(e.OutputAmount)
	out.DepositID = CopyAmount(e.DepositID)
	out.ApprovalTxHashes = append([]string(nil), e.ApprovalTxHashes...)
	out.Errors = append([]string(nil), e.Errors...)
	out.Timeline = append([]PaymentTimelineEntry(nil), e.Timeline...)
	return out
}

// Terminal reports whether the entry reached a final stage.
func (e PaymentHistoryEntry) Terminal() bool {
	return e.Status.Terminal()
}

// Trackable reports whether a remote lookup key is known.
func (e PaymentHistoryEntry) Trackable() bool {
	return e.DepositID != nil || e.DepositTxHash != ""
}

// TimelineEntry returns the timeline record for stage, if any.
func (e PaymentHistoryEntry) TimelineEntry(stage Stage) (PaymentTimelineEntry, bool) {
	for _, item := range e.Timeline {
		if item.Stage == stage {
			return item, true
		}
	}
	return PaymentTimelineEntry{}, false
}

// UpsertTimeline records stage at ts. An existing record for the stage is
// overwritten field by field with the non-empty new values.
func (e *PaymentHistoryEntry) UpsertTimeline(stage Stage, ts time.Time, txHash, note string) {
	for i := range e.Timeline {
		item := &e.Timeline[i]
		if item.Stage != stage {
			continue
		}
		if !ts.IsZero() {
			item.Timestamp = ts
		}
		if txHash != "" {
			item.TxHash = txHash
		}
		if note != "" {
			item.Note = note
		}
		return
	}
	e.Timeline = append(e.Timeline, PaymentTimelineEntry{
		Stage:     stage,
		Label:     stage.Label(),
		Timestamp: ts,
		TxHash:    txHash,
		Note:      note,
	})
}

// AddApproval records an approval hash once.
func (e *PaymentHistoryEntry) AddApproval(hash string) {
	if hash == "" {
		return
	}
	for _, existing := range e.ApprovalTxHashes {
		if strings.EqualFold(existing, hash) {
			return
		}
	}
	e.ApprovalTxHashes = append(e.ApprovalTxHashes, hash)
}

// AppendError adds msg to the error list.
func (e *PaymentHistoryEntry) AppendError(msg string) {
	if msg == "" {
		return
	}
	e.Errors = append(e.Errors, msg)
}

// NormalizeHash lower-cases a transaction hash for comparison.
func NormalizeHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}
