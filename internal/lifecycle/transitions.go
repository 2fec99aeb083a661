package lifecycle

import (
	"context"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"payPlanner/internal/metrics"
	"payPlanner/internal/model"
)

// Payment describes a payment attempt at initiation.
type Payment struct {
	InputToken           model.TokenDescriptor
	OutputToken          model.TokenDescriptor
	InputAmount          *big.Int
	OutputAmount         *big.Int
	OriginChainID        uint64
	DestinationChainID   uint64
	Depositor            string
	Recipient            string
	OriginSpokePool      string
	DestinationSpokePool string
	DepositMessage       string
	TxHash               string
}

// DepositObserved is reported once the origin deposit is mined.
type DepositObserved struct {
	TxHash    string
	DepositID *big.Int
}

func (s *Store) create(ctx context.Context, mode model.Mode, p Payment, stages ...model.Stage) model.PaymentHistoryEntry {
	now := s.now()
	entry := model.PaymentHistoryEntry{
		ID:                   uuid.NewString(),
		Mode:                 mode,
		Source:               model.SourceLocal,
		CreatedAt:            now,
		UpdatedAt:            now,
		InputToken:           p.InputToken,
		OutputToken:          p.OutputToken,
		InputAmount:          model.CopyAmount(p.InputAmount),
		OutputAmount:         model.CopyAmount(p.OutputAmount),
		OriginChainID:        p.OriginChainID,
		DestinationChainID:   p.DestinationChainID,
		Depositor:            p.Depositor,
		Recipient:            p.Recipient,
		OriginSpokePool:      p.OriginSpokePool,
		DestinationSpokePool: p.DestinationSpokePool,
		DepositMessage:       p.DepositMessage,
	}
	entry.UpsertTimeline(model.StageInitial, now, "", "")
	for _, stage := range stages {
		entry.UpsertTimeline(stage, now, "", "")
		entry.Status = stage
	}
	if p.TxHash != "" {
		entry.UpsertTimeline(entry.Status, time.Time{}, p.TxHash, "")
	}
	if mode != model.ModeDirect && entry.OriginSpokePool == "" {
		entry.OriginSpokePool = s.spokePool(p.OriginChainID)
	}
	if mode != model.ModeDirect && entry.DestinationSpokePool == "" && p.OriginChainID != p.DestinationChainID {
		entry.DestinationSpokePool = s.spokePool(p.DestinationChainID)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	s.entries = append([]model.PaymentHistoryEntry{entry}, s.entries...)
	s.recorder.IncCounter(metrics.LifecycleTransition, map[string]string{"stage": string(entry.Status)})
	out := entry.Clone()
	s.commitLocked(ctx, true)
	s.logger.Info("payment recorded", zap.String("entry_id", entry.ID), zap.String("mode", string(mode)))
	return out
}

// mutate applies fn to the entry with id. Terminal entries and unknown ids are
// left untouched.
func (s *Store) mutate(ctx context.Context, id, transition string, fn func(e *model.PaymentHistoryEntry, now time.Time)) (model.PaymentHistoryEntry, bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		s.logger.Warn("transition for unknown entry", zap.String("entry_id", id), zap.String("transition", transition))
		return model.PaymentHistoryEntry{}, false
	}
	e := &s.entries[i]
	if e.Terminal() {
		out := e.Clone()
		s.mu.Unlock()
		s.logger.Debug("ignoring transition on terminal entry",
			zap.String("entry_id", id),
			zap.String("transition", transition),
			zap.String("status", string(out.Status)),
		)
		return out, true
	}

	now := s.now()
	fn(e, now)
	e.UpdatedAt = now
	s.recorder.IncCounter(metrics.LifecycleTransition, map[string]string{"stage": string(e.Status)})
	s.syncPollerLocked(e)
	out := e.Clone()
	s.commitLocked(ctx, true)
	return out, true
}

func advance(e *model.PaymentHistoryEntry, stage model.Stage, now time.Time, txHash string) {
	e.UpsertTimeline(stage, now, txHash, "")
	e.Status = stage
}

// RecordDirectInit records a same-chain transfer that has been submitted.
func (s *Store) RecordDirectInit(ctx context.Context, p Payment) model.PaymentHistoryEntry {
	return s.create(ctx, model.ModeDirect, p, model.StageDirectPending)
}

// CompleteDirect confirms a direct transfer.
func (s *Store) CompleteDirect(ctx context.Context, id, txHash string) (model.PaymentHistoryEntry, bool) {
	return s.mutate(ctx, id, "complete_direct", func(e *model.PaymentHistoryEntry, now time.Time) {
		advance(e, model.StageDirectConfirmed, now, txHash)
	})
}

// RecordBridgeInit records a bridge payment. Native inputs start by wrapping.
func (s *Store) RecordBridgeInit(ctx context.Context, p Payment, requiresWrap bool) model.PaymentHistoryEntry {
	if requiresWrap {
		return s.create(ctx, model.ModeBridge, p, model.StageWrapPending)
	}
	return s.create(ctx, model.ModeBridge, p, model.StageDepositPending)
}

// UpdateBridgeAfterWrap records the wrap transaction and moves on to the deposit.
func (s *Store) UpdateBridgeAfterWrap(ctx context.Context, id, wrapTxHash string) (model.PaymentHistoryEntry, bool) {
	return s.mutate(ctx, id, "bridge_wrapped", func(e *model.PaymentHistoryEntry, now time.Time) {
		e.WrapTxHash = wrapTxHash
		advance(e, model.StageWrapConfirmed, now, wrapTxHash)
		advance(e, model.StageDepositPending, now, "")
	})
}

// UpdateBridgeAfterDeposit records the deposit and starts waiting for the relay.
func (s *Store) UpdateBridgeAfterDeposit(ctx context.Context, id string, dep DepositObserved) (model.PaymentHistoryEntry, bool) {
	return s.mutate(ctx, id, "bridge_deposited", func(e *model.PaymentHistoryEntry, now time.Time) {
		recordDeposit(e, dep, now)
	})
}

// UpdateBridgeFilled records the destination fill and settles the payment.
func (s *Store) UpdateBridgeFilled(ctx context.Context, id, fillTxHash string) (model.PaymentHistoryEntry, bool) {
	return s.mutate(ctx, id, "bridge_filled", func(e *model.PaymentHistoryEntry, now time.Time) {
		settle(e, model.StageRelayFilled, fillTxHash, now, now)
	})
}

// RecordSwapInit records a swap. With approvals outstanding it waits for them first.
func (s *Store) RecordSwapInit(ctx context.Context, p Payment, approvalCount int) model.PaymentHistoryEntry {
	if approvalCount > 0 {
		return s.create(ctx, model.ModeSwap, p, model.StageApprovalPending)
	}
	return s.create(ctx, model.ModeSwap, p, model.StageSwapPending)
}

// UpdateSwapApprovalSubmitted records an approval hash; repeated hashes are kept once.
func (s *Store) UpdateSwapApprovalSubmitted(ctx context.Context, id, txHash string) (model.PaymentHistoryEntry, bool) {
	return s.mutate(ctx, id, "swap_approval_submitted", func(e *model.PaymentHistoryEntry, now time.Time) {
		e.AddApproval(txHash)
		advance(e, model.StageApprovalPending, now, txHash)
	})
}

// UpdateSwapApprovalConfirmed marks the approvals as mined.
func (s *Store) UpdateSwapApprovalConfirmed(ctx context.Context, id, txHash string) (model.PaymentHistoryEntry, bool) {
	return s.mutate(ctx, id, "swap_approval_confirmed", func(e *model.PaymentHistoryEntry, now time.Time) {
		e.AddApproval(txHash)
		advance(e, model.StageApprovalConfirmed, now, txHash)
	})
}

// UpdateSwapSubmitted records the swap transaction.
func (s *Store) UpdateSwapSubmitted(ctx context.Context, id, txHash string) (model.PaymentHistoryEntry, bool) {
	return s.mutate(ctx, id, "swap_submitted", func(e *model.PaymentHistoryEntry, now time.Time) {
		e.SwapTxHash = txHash
		advance(e, model.StageSwapPending, now, txHash)
	})
}

// UpdateSwapConfirmed records the mined swap. A same-chain swap settles here.
func (s *Store) UpdateSwapConfirmed(ctx context.Context, id, txHash string) (model.PaymentHistoryEntry, bool) {
	return s.mutate(ctx, id, "swap_confirmed", func(e *model.PaymentHistoryEntry, now time.Time) {
		if txHash != "" {
			e.SwapTxHash = txHash
		}
		advance(e, model.StageSwapConfirmed, now, txHash)
		if e.OriginChainID == e.DestinationChainID {
			advance(e, model.StageSettled, now, "")
		}
	})
}

// UpdateSwapAfterDeposit records the deposit of a cross-chain swap.
func (s *Store) UpdateSwapAfterDeposit(ctx context.Context, id string, dep DepositObserved) (model.PaymentHistoryEntry, bool) {
	return s.mutate(ctx, id, "swap_deposited", func(e *model.PaymentHistoryEntry, now time.Time) {
		recordDeposit(e, dep, now)
	})
}

// UpdateSwapFilled records the destination fill of a cross-chain swap.
func (s *Store) UpdateSwapFilled(ctx context.Context, id, fillTxHash string) (model.PaymentHistoryEntry, bool) {
	return s.mutate(ctx, id, "swap_filled", func(e *model.PaymentHistoryEntry, now time.Time) {
		settle(e, model.StageFilled, fillTxHash, now, now)
	})
}

// RecordFillObserved settles an entry whose fill was observed at `at`.
func (s *Store) RecordFillObserved(ctx context.Context, id, fillTxHash string, at time.Time) (model.PaymentHistoryEntry, bool) {
	return s.mutate(ctx, id, "fill_observed", func(e *model.PaymentHistoryEntry, now time.Time) {
		settle(e, fillStage(e.Mode), fillTxHash, at, now)
	})
}

// RecordSlowFill records a slow fill request, or its readiness.
func (s *Store) RecordSlowFill(ctx context.Context, id string, ready bool) (model.PaymentHistoryEntry, bool) {
	stage := model.StageRequestedSlowFill
	if ready {
		stage = model.StageSlowFillReady
	}
	return s.mutate(ctx, id, "slow_fill", func(e *model.PaymentHistoryEntry, now time.Time) {
		advance(e, stage, now, "")
	})
}

// MarkDepositExpired notes that the fill deadline passed. The entry keeps
// polling since a refund or late fill may still be observed.
func (s *Store) MarkDepositExpired(ctx context.Context, id string) (model.PaymentHistoryEntry, bool) {
	return s.mutate(ctx, id, "deposit_expired", func(e *model.PaymentHistoryEntry, now time.Time) {
		e.UpsertTimeline(model.StageExpired, now, "", "fill deadline passed")
		e.Status = model.StageExpired
	})
}

// Fail marks the entry failed with msg. Polling stops for good.
func (s *Store) Fail(ctx context.Context, id, msg string) (model.PaymentHistoryEntry, bool) {
	return s.mutate(ctx, id, "fail", func(e *model.PaymentHistoryEntry, now time.Time) {
		e.AppendError(msg)
		e.UpsertTimeline(model.StageFailed, now, "", msg)
		e.Status = model.StageFailed
	})
}

// FailDirect marks a direct transfer failed.
func (s *Store) FailDirect(ctx context.Context, id, msg string) (model.PaymentHistoryEntry, bool) {
	return s.Fail(ctx, id, msg)
}

// FailBridge marks a bridge payment failed, typically a reverted wrap or deposit.
func (s *Store) FailBridge(ctx context.Context, id, msg string) (model.PaymentHistoryEntry, bool) {
	return s.Fail(ctx, id, msg)
}

// FailSwap marks a swap failed, including rejected approvals.
func (s *Store) FailSwap(ctx context.Context, id, msg string) (model.PaymentHistoryEntry, bool) {
	return s.Fail(ctx, id, msg)
}

// Remove deletes one entry and stops its poller.
func (s *Store) Remove(ctx context.Context, id string) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.stopPollerLocked(id)
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.commitLocked(ctx, true)
	return true
}

func recordDeposit(e *model.PaymentHistoryEntry, dep DepositObserved, now time.Time) {
	if dep.TxHash != "" {
		e.DepositTxHash = dep.TxHash
	}
	if dep.DepositID != nil {
		e.DepositID = new(big.Int).Set(dep.DepositID)
	}
	switch {
	case e.Status == model.StageDepositPending:
		e.UpsertTimeline(model.StageDepositPending, time.Time{}, dep.TxHash, "")
	case e.Status == model.StageSwapConfirmed:
		e.UpsertTimeline(model.StageDepositPending, now, dep.TxHash, "")
	}
	advance(e, model.StageDepositConfirmed, now, dep.TxHash)
	advance(e, model.StageRelayPending, now, "")
}

func settle(e *model.PaymentHistoryEntry, stage model.Stage, fillTxHash string, at, now time.Time) {
	if fillTxHash != "" {
		e.FillTxHash = fillTxHash
	}
	if at.IsZero() {
		at = now
	}
	advance(e, stage, at, fillTxHash)
	advance(e, model.StageSettled, now, "")
}

func fillStage(mode model.Mode) model.Stage {
	if mode == model.ModeSwap {
		return model.StageFilled
	}
	return model.StageRelayFilled
}
