package lifecycle

import (
	"sort"

	"payPlanner/internal/model"
)

// progress orders stages so remote observations never move an entry backwards.
var progress = map[model.Stage]int{
	model.StageInitial:           0,
	model.StageDirectPending:     1,
	model.StageWrapPending:       1,
	model.StageApprovalPending:   1,
	model.StageWrapConfirmed:     2,
	model.StageApprovalConfirmed: 2,
	model.StageSwapPending:       3,
	model.StageSwapConfirmed:     4,
	model.StageDepositPending:    5,
	model.StageDepositConfirmed:  6,
	model.StageRelayPending:      7,
	model.StageExpired:           8,
	model.StageRequestedSlowFill: 9,
	model.StageSlowFillReady:     10,
	model.StageRelayFilled:       11,
	model.StageFilled:            11,
	model.StageDirectConfirmed:   12,
	model.StageSettled:           12,
	model.StageFailed:            12,
}

func ahead(next, current model.Stage) bool {
	return progress[next] > progress[current]
}

// matchEntry finds the local entry remote should merge into: same deposit
// transaction first, then same (origin, destination, deposit id), then same id.
func matchEntry(entries []model.PaymentHistoryEntry, remote model.PaymentHistoryEntry) int {
	if hash := model.NormalizeHash(remote.DepositTxHash); hash != "" {
		for i := range entries {
			if model.NormalizeHash(entries[i].DepositTxHash) == hash {
				return i
			}
		}
	}
	if remote.DepositID != nil {
		for i := range entries {
			e := entries[i]
			if e.DepositID != nil && e.DepositID.Cmp(remote.DepositID) == 0 &&
				e.OriginChainID == remote.OriginChainID && e.DestinationChainID == remote.DestinationChainID {
				return i
			}
		}
	}
	for i := range entries {
		if entries[i].ID == remote.ID {
			return i
		}
	}
	return -1
}

// Merge folds a remote record into a local entry. The local id and source are
// kept. Remote hashes win, empty local fields are filled, a terminal local
// status is never replaced, errors are unioned and timelines keep the latest
// record per stage.
func Merge(local, remote model.PaymentHistoryEntry) model.PaymentHistoryEntry {
	out := local.Clone()

	if !local.Terminal() && (remote.Terminal() || ahead(remote.Status, local.Status)) {
		out.Status = remote.Status
	}
	if remote.DepositTxHash != "" {
		out.DepositTxHash = remote.DepositTxHash
	}
	if remote.FillTxHash != "" {
		out.FillTxHash = remote.FillTxHash
	}
	if out.DepositID == nil {
		out.DepositID = model.CopyAmount(remote.DepositID)
	}
	if out.InputAmount == nil {
		out.InputAmount = model.CopyAmount(remote.InputAmount)
	}
	if out.OutputAmount == nil {
		out.OutputAmount = model.CopyAmount(remote.OutputAmount)
	}
	if out.OriginChainID == 0 {
		out.OriginChainID = remote.OriginChainID
	}
	if out.DestinationChainID == 0 {
		out.DestinationChainID = remote.DestinationChainID
	}
	out.Depositor = firstNonEmpty(out.Depositor, remote.Depositor)
	out.Recipient = firstNonEmpty(out.Recipient, remote.Recipient)
	out.OriginSpokePool = firstNonEmpty(out.OriginSpokePool, remote.OriginSpokePool)
	out.DestinationSpokePool = firstNonEmpty(out.DestinationSpokePool, remote.DestinationSpokePool)
	out.DepositMessage = firstNonEmpty(out.DepositMessage, remote.DepositMessage)

	for _, msg := range remote.Errors {
		if !contains(out.Errors, msg) {
			out.Errors = append(out.Errors, msg)
		}
	}
	out.Timeline = mergeTimelines(out.Timeline, remote.Timeline)
	if remote.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = remote.UpdatedAt
	}
	return out
}

// settleFilled moves a remote record with a known fill straight to settled.
func settleFilled(e model.PaymentHistoryEntry) model.PaymentHistoryEntry {
	if e.Status != model.StageRelayFilled && e.Status != model.StageFilled {
		return e
	}
	e.UpsertTimeline(model.StageSettled, e.UpdatedAt, "", "")
	e.Status = model.StageSettled
	return e
}

func mergeTimelines(local, remote []model.PaymentTimelineEntry) []model.PaymentTimelineEntry {
	out := append([]model.PaymentTimelineEntry(nil), local...)
	for _, r := range remote {
		found := false
		for i := range out {
			if out[i].Stage != r.Stage {
				continue
			}
			found = true
			if r.Timestamp.After(out[i].Timestamp) {
				out[i] = r
			}
			break
		}
		if !found {
			out = append(out, r)
		}
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// sortEntries orders entries newest first.
func sortEntries(entries []model.PaymentHistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}
