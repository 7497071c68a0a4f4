package audit

import "time"

// ActorType identifies who performed an action.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
)

// Action describes what was done.
type Action string

const (
	ActionSessionCreated      Action = "session_created"
	ActionReconciliationRun   Action = "reconciliation_run"
	ActionTierFailed          Action = "tier_failed"
	ActionStatusChanged       Action = "status_changed"
	ActionMatchApproved       Action = "match_approved"
	ActionMatchRejected       Action = "match_rejected"
	ActionDiscrepancyResolved Action = "discrepancy_resolved"
	ActionSessionCompleted    Action = "session_completed"
)

// Scope describes the kind of entity an action applies to.
type Scope string

const (
	ScopeSession     Scope = "session"
	ScopeMatch       Scope = "match"
	ScopeDiscrepancy Scope = "discrepancy"
)

// Event is a single append-only audit record. Events are never mutated or
// deleted.
type Event struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	ActorType     ActorType `json:"actor_type"`
	ActorID       string    `json:"actor_id"`
	Action        Action    `json:"action"`
	Scope         Scope     `json:"scope"`
	ScopeID       string    `json:"scope_id"`
	SessionID     string    `json:"session_id"`
	Summary       string    `json:"summary"`
	PreviousValue string    `json:"previous_value,omitempty"`
	NewValue      string    `json:"new_value,omitempty"`
}
