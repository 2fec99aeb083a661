package planner

import (
	"sort"

	"payPlanner/internal/model"
)

// Rank deduplicates options paying with the same asset, keeping the lowest
// priority mode, and orders them: options meeting the target first, direct
// first among those, then by descending deliverable value. Options that cannot
// meet the target are dropped unless showUnavailable is set.
func Rank(options []model.PaymentOption, showUnavailable bool) []model.PaymentOption {
	deduped := dedupe(options)

	out := deduped[:0]
	for _, opt := range deduped {
		if opt.CanMeetTarget || showUnavailable {
			out = append(out, opt)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CanMeetTarget != b.CanMeetTarget {
			return a.CanMeetTarget
		}
		if a.CanMeetTarget {
			aDirect, bDirect := a.Mode == model.ModeDirect, b.Mode == model.ModeDirect
			if aDirect != bDirect {
				return aDirect
			}
		}
		return a.DeliverableValue().Cmp(b.DeliverableValue()) > 0
	})
	return out
}

func dedupe(options []model.PaymentOption) []model.PaymentOption {
	best := make(map[model.TokenKey]int, len(options))
	order := make([]model.TokenKey, 0, len(options))
	for i, opt := range options {
		key := opt.GroupKey()
		j, seen := best[key]
		if !seen {
			best[key] = i
			order = append(order, key)
			continue
		}
		if preferred(opt, options[j]) {
			best[key] = i
		}
	}

	out := make([]model.PaymentOption, 0, len(order))
	for _, key := range order {
		out = append(out, options[best[key]])
	}
	return out
}

// preferred reports whether a should replace b within one group.
func preferred(a, b model.PaymentOption) bool {
	if pa, pb := a.Mode.Priority(), b.Mode.Priority(); pa != pb {
		return pa < pb
	}
	if a.CanMeetTarget != b.CanMeetTarget {
		return a.CanMeetTarget
	}
	return a.DeliverableValue().Cmp(b.DeliverableValue()) > 0
}
