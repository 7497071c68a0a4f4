package session

import "time"

// Status is a session's position in the reconciliation lifecycle.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusMatching   Status = "MATCHING"
	StatusValidating Status = "VALIDATING"
	StatusReview     Status = "REVIEW"
	StatusCompleted  Status = "COMPLETED"
	StatusError      Status = "ERROR"
)

// transitions is the closed state machine. COMPLETED is terminal; ERROR is
// not, a retry re-enters MATCHING with already-persisted rows intact.
var transitions = map[Status][]Status{
	StatusCreated:    {StatusMatching},
	StatusMatching:   {StatusValidating, StatusError},
	StatusValidating: {StatusReview, StatusMatching, StatusError},
	StatusReview:     {StatusCompleted, StatusMatching},
	StatusError:      {StatusMatching},
	StatusCompleted:  {},
}

// CanTransitionTo reports whether the state machine permits moving to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions exist from s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Session is one reconciliation run scope: a property, a financial period,
// and everything matched and flagged within them. Sessions are never deleted,
// only completed.
type Session struct {
	ID            string     `json:"id"`
	PropertyID    string     `json:"property_id"`
	PeriodID      string     `json:"period_id"`
	SessionType   string     `json:"session_type"`
	Status        Status     `json:"status"`
	FrozenSummary *Summary   `json:"frozen_summary,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Summary is the session's live counters, always computed from the match and
// discrepancy rows themselves. It is persisted only once, frozen at
// completion.
type Summary struct {
	TotalMatches       int            `json:"total_matches"`
	MatchesByTier      map[string]int `json:"matches_by_tier"`
	MatchesByApproval  map[string]int `json:"matches_by_approval"`
	TotalDiscrepancies int            `json:"total_discrepancies"`
	BySeverity         map[string]int `json:"discrepancies_by_severity"`
	OpenDiscrepancies  int            `json:"open_discrepancies"`
}

// ListFilter controls which sessions List returns.
type ListFilter struct {
	PropertyID string
	PeriodID   string
	Status     Status
	Limit      int
	Offset     int
}
