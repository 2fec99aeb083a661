package planner

import "time"

// Stage is the loading stage of a refresh.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageDiscovering Stage = "discovering"
	StageResolving   Stage = "resolving"
	StageBalances    Stage = "balances"
	StageQuoting     Stage = "quoting"
	StageRanking     Stage = "ranking"
	StageReady       Stage = "ready"
	StageError       Stage = "error"
)

// Status is the planning status reported to callers.
type Status struct {
	Stage     Stage     `json:"stage"`
	Err       string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	RefreshID string    `json:"refresh_id,omitempty"`
}
