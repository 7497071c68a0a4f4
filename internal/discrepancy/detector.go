package discrepancy

import (
	"fmt"

	"github.com/havenfield/reconcile/internal/config"
	"github.com/havenfield/reconcile/internal/confidence"
	"github.com/havenfield/reconcile/internal/lineitem"
	"github.com/havenfield/reconcile/internal/matching"
)

// timingEpsilon is the amount difference under which two values count as
// identical for the timing-difference pattern.
const timingEpsilon = 0.01

// Detector turns unmatched line items and rule violations into discrepancies.
type Detector struct {
	cfg config.SeverityConfig
}

// NewDetector creates a Detector with the given severity thresholds.
func NewDetector(cfg config.SeverityConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Detect runs after matching. Every line item no tier matched and every rule
// violation becomes a discrepancy. Output order is deterministic: items in
// document order, then violations in engine order.
func (d *Detector) Detect(sessionID string, snap lineitem.Snapshot, matched map[string]bool, violations []matching.RuleViolation) []Discrepancy {
	var out []Discrepancy
	consumed := make(map[string]bool)

	for _, dt := range lineitem.AllDocumentTypes {
		for _, item := range snap[dt] {
			if matched[item.ID] || consumed[item.ID] {
				continue
			}
			disc := d.classifyUnmatched(item, snap, matched)
			disc.SessionID = sessionID
			if disc.RightItemID != "" {
				consumed[disc.RightItemID] = true
			}
			out = append(out, disc)
		}
	}

	for _, v := range violations {
		out = append(out, d.fromViolation(sessionID, v))
	}
	return out
}

// classifyUnmatched finds the closest counterpart for an unmatched item and
// grades the disagreement.
func (d *Detector) classifyUnmatched(item lineitem.LineItem, snap lineitem.Snapshot, matched map[string]bool) Discrepancy {
	disc := Discrepancy{
		ItemKey:         "item:" + item.ID,
		LeftItemID:      item.ID,
		ResolutionState: StateOpen,
	}

	// Identical amount under a different account in another document is the
	// timing-difference pattern.
	if twin, ok := findTimingTwin(item, snap); ok {
		disc.RightItemID = twin.ID
		disc.Severity = SeverityMedium
		disc.WithinTolerance = true
		disc.Description = fmt.Sprintf(
			"%s %q (%s) has an identical amount under %q (%s); likely a timing difference",
			item.AccountCode, item.AccountName, item.DocumentType,
			twin.AccountName, twin.DocumentType)
		return disc
	}

	// A counterpart under the same canonical account concept gives a real
	// variance to grade.
	if other, ok := findCounterpart(item, snap, matched); ok {
		key, _ := matching.KeyFor(item)
		disc.RightItemID = other.ID
		disc.Difference = confidence.AbsoluteDifference(item.Amount, other.Amount)
		disc.PercentVariance = confidence.PercentVariance(item.Amount, other.Amount)
		disc.WithinTolerance = disc.PercentVariance <= d.cfg.DefaultTolerancePct
		disc.Severity = d.severityFor(disc.PercentVariance, matching.BalanceAffecting(key), disc.WithinTolerance)
		disc.Description = fmt.Sprintf(
			"%q (%s) reports %.2f but %q (%s) reports %.2f, a %.2f%% variance",
			item.AccountName, item.DocumentType, item.Amount,
			other.AccountName, other.DocumentType, other.Amount, disc.PercentVariance)
		return disc
	}

	disc.Severity = SeverityLow
	disc.Difference = item.Amount
	disc.Description = fmt.Sprintf(
		"%q (%s) for %.2f has no counterpart in any other document",
		item.AccountName, item.DocumentType, item.Amount)
	return disc
}

// fromViolation converts a rule violation into a discrepancy keyed on the
// rule id, so re-runs update rather than duplicate.
func (d *Detector) fromViolation(sessionID string, v matching.RuleViolation) Discrepancy {
	balance := false
	items := append([]lineitem.LineItem{v.Left, v.Right}, v.Related...)
	for _, it := range items {
		if key, ok := matching.KeyFor(it); ok && matching.BalanceAffecting(key) {
			balance = true
			break
		}
	}

	return Discrepancy{
		SessionID:       sessionID,
		ItemKey:         "rule:" + v.Rule.ID,
		LeftItemID:      v.Left.ID,
		RightItemID:     v.Right.ID,
		Severity:        d.severityFor(v.PercentVariance, balance, v.WithinTolerance),
		Difference:      v.Difference,
		PercentVariance: v.PercentVariance,
		WithinTolerance: v.WithinTolerance,
		Description: fmt.Sprintf("rule %q: accounts disagree by %.2f (%.2f%% variance)",
			v.Rule.Name, v.Difference, v.PercentVariance),
		ResolutionState: StateOpen,
	}
}

// severityFor applies the grading policy. Balance variances over the critical
// threshold outrank everything; within-tolerance disagreements are noise worth
// a look, never more than medium.
func (d *Detector) severityFor(variance float64, balanceAffecting, withinTolerance bool) Severity {
	switch {
	case balanceAffecting && variance > d.cfg.CriticalPct:
		return SeverityCritical
	case variance > d.cfg.HighPct:
		return SeverityHigh
	case withinTolerance && variance > 0:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// findTimingTwin looks for an identical amount booked under a different
// account concept in another document.
func findTimingTwin(item lineitem.LineItem, snap lineitem.Snapshot) (lineitem.LineItem, bool) {
	itemKey, itemKeyOK := matching.KeyFor(item)
	for _, dt := range lineitem.AllDocumentTypes {
		if dt == item.DocumentType {
			continue
		}
		for _, other := range snap[dt] {
			if confidence.AbsoluteDifference(item.Amount, other.Amount) > timingEpsilon {
				continue
			}
			otherKey, otherKeyOK := matching.KeyFor(other)
			if itemKeyOK && otherKeyOK && sameConcept(itemKey, otherKey) {
				continue
			}
			return other, true
		}
	}
	return lineitem.LineItem{}, false
}

// findCounterpart looks for an unmatched item in another document under the
// same canonical key or equivalence group.
func findCounterpart(item lineitem.LineItem, snap lineitem.Snapshot, matched map[string]bool) (lineitem.LineItem, bool) {
	itemKey, ok := matching.KeyFor(item)
	if !ok {
		return lineitem.LineItem{}, false
	}
	for _, dt := range lineitem.AllDocumentTypes {
		if dt == item.DocumentType {
			continue
		}
		for _, other := range snap[dt] {
			if matched[other.ID] {
				continue
			}
			otherKey, ok := matching.KeyFor(other)
			if !ok || !sameConcept(itemKey, otherKey) {
				continue
			}
			return other, true
		}
	}
	return lineitem.LineItem{}, false
}

// sameConcept reports whether two keys describe the same value, directly or
// through an equivalence group.
func sameConcept(a, b matching.AccountKey) bool {
	if a == b {
		return true
	}
	ga, okA := matching.EquivalenceGroup(a)
	gb, okB := matching.EquivalenceGroup(b)
	return okA && okB && ga == gb
}
