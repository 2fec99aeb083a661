package metrics

import "time"

// Recorder receives counters and latencies from planning and lifecycle code.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Metric names.
const (
	PlanRefresh         = "plan_refresh"
	PlanRefreshStale    = "plan_refresh_stale"
	QuoteRequest        = "quote_request"
	BalanceFallback     = "balance_fallback"
	BalanceCacheHit     = "balance_cache_hit"
	LifecycleTransition = "lifecycle_transition"
	PollTick            = "poll_tick"
	PersistFailure      = "persist_failure"
)
