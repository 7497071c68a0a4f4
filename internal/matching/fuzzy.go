package matching

import (
	"fmt"
	"math"

	"github.com/havenfield/reconcile/internal/confidence"
	"github.com/havenfield/reconcile/internal/lineitem"
)

// runFuzzy compares account names (not codes) across documents with the
// similarity measure, and amounts within the configured percentage/absolute
// tolerance. Confidence scales with similarity and inverse amount deviation;
// candidates below the fuzzy floor do not qualify at all.
func (e *Engine) runFuzzy(snap lineitem.Snapshot) Result {
	var out Result

	for i, leftDoc := range lineitem.AllDocumentTypes {
		for _, rightDoc := range lineitem.AllDocumentTypes[i+1:] {
			for _, left := range snap[leftDoc] {
				for _, right := range snap[rightDoc] {
					if c, ok := e.fuzzyPair(left, right); ok {
						out.Candidates = append(out.Candidates, c)
					}
				}
			}
		}
	}
	return out
}

func (e *Engine) fuzzyPair(left, right lineitem.LineItem) (Candidate, bool) {
	similarity := NameSimilarity(left.AccountName, right.AccountName)
	if similarity < e.cfg.FuzzyMinSimilarity {
		return Candidate{}, false
	}

	diff := confidence.AbsoluteDifference(left.Amount, right.Amount)
	tolerance := e.fuzzyTolerance(left.Amount, right.Amount)
	if diff > tolerance {
		return Candidate{}, false
	}

	shared, total := SharedTokens(left.AccountName, right.AccountName)
	score := confidence.Compose([]confidence.Component{
		{
			Name:     "name_similarity",
			Weight:   0.6,
			Value:    similarity,
			Evidence: fmt.Sprintf("account names share %d of %d tokens (similarity %.2f)", shared, total, similarity),
		},
		{
			Name:     "amount_closeness",
			Weight:   0.4,
			Value:    confidence.Closeness(diff, tolerance),
			Evidence: fmt.Sprintf("amounts differ by $%.2f against a $%.2f tolerance", diff, tolerance),
		},
	}, 100)

	if score.Value < e.cfg.FuzzyMinConfidence {
		return Candidate{}, false
	}
	return Candidate{Tier: TypeFuzzy, Left: left, Right: right, Score: score}, true
}

// fuzzyTolerance is the larger of the absolute tolerance and the percentage
// tolerance applied to the bigger amount.
func (e *Engine) fuzzyTolerance(a, b float64) float64 {
	base := math.Max(math.Abs(a), math.Abs(b))
	pct := base * e.cfg.FuzzyAmountTolerancePct / 100
	return math.Max(pct, e.cfg.FuzzyAmountToleranceAbs)
}
