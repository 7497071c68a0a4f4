package discrepancy

import "time"

// Severity ranks how much a discrepancy threatens the reconciliation.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ResolutionState tracks the discrepancy's review lifecycle. Resolution is
// terminal; a resolved discrepancy is never reopened.
type ResolutionState string

const (
	StateOpen     ResolutionState = "open"
	StateResolved ResolutionState = "resolved"
)

// Discrepancy records a disagreement between line items or between a rule's
// expected and actual values. Its identity within a session is ItemKey, so
// re-runs upsert rather than duplicate.
type Discrepancy struct {
	ID              string          `json:"id"`
	SessionID       string          `json:"session_id"`
	ItemKey         string          `json:"item_key"`
	LeftItemID      string          `json:"left_item_id"`
	RightItemID     string          `json:"right_item_id,omitempty"`
	Severity        Severity        `json:"severity"`
	Difference      float64         `json:"difference"`
	PercentVariance float64         `json:"percent_variance"`
	WithinTolerance bool            `json:"within_tolerance"`
	Description     string          `json:"description"`
	ResolutionState ResolutionState `json:"resolution_state"`
	ResolutionNotes string          `json:"resolution_notes,omitempty"`
	CorrectedValue  *float64        `json:"corrected_value,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

// ListFilter controls which discrepancies List returns.
type ListFilter struct {
	SessionID       string
	Severity        Severity
	ResolutionState ResolutionState
	Limit           int
	Offset          int
}
