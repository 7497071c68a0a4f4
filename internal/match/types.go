package match

import "time"

// ApprovalState is a match's position in the review workflow.
type ApprovalState string

const (
	StatePending  ApprovalState = "pending"
	StateApproved ApprovalState = "approved"
	StateRejected ApprovalState = "rejected"
)

// Match links line items across documents within one session. Its identity
// is (session_id, pair_key); re-runs upsert by identity, never duplicate.
type Match struct {
	ID              string        `json:"id"`
	SessionID       string        `json:"session_id"`
	PairKey         string        `json:"pair_key"`
	MatchType       string        `json:"match_type"`
	TierPriority    int           `json:"tier_priority"`
	Confidence      int           `json:"confidence"`
	Evidence        []string      `json:"evidence"`
	LeftItemID      string        `json:"left_item_id"`
	RightItemID     string        `json:"right_item_id"`
	RelatedItemIDs  []string      `json:"related_item_ids,omitempty"`
	ApprovalState   ApprovalState `json:"approval_state"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// ListFilter controls which matches List returns.
type ListFilter struct {
	SessionID     string
	MatchType     string
	ApprovalState ApprovalState
	Limit         int
	Offset        int
}
