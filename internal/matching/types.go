package matching

import (
	"sort"
	"strings"

	"github.com/havenfield/reconcile/internal/confidence"
	"github.com/havenfield/reconcile/internal/lineitem"
)

// MatchType identifies which tier produced a candidate.
type MatchType string

const (
	TypeExact      MatchType = "exact"
	TypeFuzzy      MatchType = "fuzzy"
	TypeCalculated MatchType = "calculated"
	TypeInferred   MatchType = "inferred"
	TypeRuleBased  MatchType = "rule_based"
)

// Priority returns the tier's execution/priority order. Lower wins when two
// tiers propose the same pair.
func (t MatchType) Priority() int {
	switch t {
	case TypeExact:
		return 1
	case TypeFuzzy:
		return 2
	case TypeCalculated:
		return 3
	case TypeInferred:
		return 4
	case TypeRuleBased:
		return 5
	}
	return 99
}

// TierFlags toggles individual tiers for one reconciliation run.
type TierFlags struct {
	Exact      bool `json:"exact"`
	Fuzzy      bool `json:"fuzzy"`
	Calculated bool `json:"calculated"`
	Inferred   bool `json:"inferred"`
	Rules      bool `json:"rules"`
}

// AllTiers enables every tier.
func AllTiers() TierFlags {
	return TierFlags{Exact: true, Fuzzy: true, Calculated: true, Inferred: true, Rules: true}
}

// Candidate is a proposed correspondence between line items across documents,
// produced by one tier and scored by the confidence package.
type Candidate struct {
	Tier    MatchType
	Left    lineitem.LineItem
	Right   lineitem.LineItem
	Related []lineitem.LineItem
	Score   confidence.Score
}

// PairKey is the candidate's identity: the sorted ids of every line item it
// links. Re-runs with the same inputs produce the same keys.
func (c Candidate) PairKey() string {
	ids := make([]string, 0, 2+len(c.Related))
	ids = append(ids, c.Left.ID, c.Right.ID)
	for _, it := range c.Related {
		ids = append(ids, it.ID)
	}
	sort.Strings(ids)
	return strings.Join(ids, "+")
}

// ItemIDs returns every line item id the candidate references.
func (c Candidate) ItemIDs() []string {
	ids := []string{c.Left.ID, c.Right.ID}
	for _, it := range c.Related {
		ids = append(ids, it.ID)
	}
	return ids
}

// RuleViolation is a rule whose accounts disagree. Within-tolerance
// violations flag acceptable noise; the rest are real reconciliation failures.
type RuleViolation struct {
	Rule            Rule
	Left            lineitem.LineItem
	Right           lineitem.LineItem
	Related         []lineitem.LineItem
	Difference      float64
	PercentVariance float64
	WithinTolerance bool
}

// Result is the outcome of one engine run. A failed tier contributes a
// warning without discarding the other tiers' candidates.
type Result struct {
	Candidates []Candidate
	Violations []RuleViolation
	Warnings   []string
}
