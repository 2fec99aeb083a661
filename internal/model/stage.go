package model

import (
	"encoding/json"
	"fmt"
)

// Stage is the lifecycle status of a payment attempt.
type Stage string

const (
	StageInitial           Stage = "initial"
	StageDirectPending     Stage = "direct_pending"
	StageDirectConfirmed   Stage = "direct_confirmed"
	StageWrapPending       Stage = "wrap_pending"
	StageWrapConfirmed     Stage = "wrap_confirmed"
	StageApprovalPending   Stage = "approval_pending"
	StageApprovalConfirmed Stage = "approval_confirmed"
	StageSwapPending       Stage = "swap_pending"
	StageSwapConfirmed     Stage = "swap_confirmed"
	StageDepositPending    Stage = "deposit_pending"
	StageDepositConfirmed  Stage = "deposit_confirmed"
	StageRelayPending      Stage = "relay_pending"
	StageRequestedSlowFill Stage = "requested_slow_fill"
	StageSlowFillReady     Stage = "slow_fill_ready"
	StageRelayFilled       Stage = "relay_filled"
	StageFilled            Stage = "filled"
	StageExpired           Stage = "expired"
	StageSettled           Stage = "settled"
	StageFailed            Stage = "failed"
)

var stageLabels = map[Stage]string{
	StageInitial:           "Payment started",
	StageDirectPending:     "Transfer submitted",
	StageDirectConfirmed:   "Transfer confirmed",
	StageWrapPending:       "Wrapping native token",
	StageWrapConfirmed:     "Wrap confirmed",
	StageApprovalPending:   "Awaiting approval",
	StageApprovalConfirmed: "Approval confirmed",
	StageSwapPending:       "Swap submitted",
	StageSwapConfirmed:     "Swap confirmed",
	StageDepositPending:    "Deposit submitted",
	StageDepositConfirmed:  "Deposit confirmed",
	StageRelayPending:      "Waiting for relayer",
	StageRequestedSlowFill: "Slow fill requested",
	StageSlowFillReady:     "Slow fill ready",
	StageRelayFilled:       "Relay filled",
	StageFilled:            "Filled",
	StageExpired:           "Deposit expired",
	StageSettled:           "Settled",
	StageFailed:            "Failed",
}

// Stages lists every stage in lifecycle order.
func Stages() []Stage {
	return []Stage{
		StageInitial, StageDirectPending, StageDirectConfirmed,
		StageWrapPending, StageWrapConfirmed,
		StageApprovalPending, StageApprovalConfirmed, StageSwapPending, StageSwapConfirmed,
		StageDepositPending, StageDepositConfirmed, StageRelayPending,
		StageRequestedSlowFill, StageSlowFillReady, StageRelayFilled, StageFilled,
		StageExpired, StageSettled, StageFailed,
	}
}

// ParseStage validates a stage name.
func ParseStage(s string) (Stage, error) {
	stage := Stage(s)
	if _, ok := stageLabels[stage]; !ok {
		return "", fmt.Errorf("unknown stage %q", s)
	}
	return stage, nil
}

// Valid reports whether s is a member of the stage set.
func (s Stage) Valid() bool {
	_, ok := stageLabels[s]
	return ok
}

// Label is the human readable name of the stage.
func (s Stage) Label() string {
	if label, ok := stageLabels[s]; ok {
		return label
	}
	return string(s)
}

// Terminal reports whether no further transitions are expected.
func (s Stage) Terminal() bool {
	switch s {
	case StageDirectConfirmed, StageSettled, StageFailed:
		return true
	default:
		return false
	}
}

// UnmarshalJSON rejects stages outside the fixed set.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	stage, err := ParseStage(raw)
	if err != nil {
		return err
	}
	*s = stage
	return nil
}

// StageFromRemoteStatus maps an indexer status string onto a stage.
func StageFromRemoteStatus(status string) Stage {
	switch status {
	case "filled":
		return StageRelayFilled
	case "settled":
		return StageSettled
	case "requested_slow_fill":
		return StageRequestedSlowFill
	case "slow_fill_ready":
		return StageSlowFillReady
	case "failed":
		return StageFailed
	default:
		return StageRelayPending
	}
}
