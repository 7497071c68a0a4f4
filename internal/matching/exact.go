package matching

import (
	"fmt"
	"math"

	"github.com/havenfield/reconcile/internal/confidence"
	"github.com/havenfield/reconcile/internal/lineitem"
)

// runExact matches items across documents whose account codes are identical,
// whose canonical keys agree, or whose keys fall in the same cross-document
// equivalence group, with amounts within the configured epsilon. Confidence
// is fixed at 100.
func (e *Engine) runExact(snap lineitem.Snapshot) Result {
	var out Result

	for i, leftDoc := range lineitem.AllDocumentTypes {
		for _, rightDoc := range lineitem.AllDocumentTypes[i+1:] {
			for _, left := range snap[leftDoc] {
				for _, right := range snap[rightDoc] {
					reason, ok := e.exactPair(left, right)
					if !ok {
						continue
					}
					out.Candidates = append(out.Candidates, Candidate{
						Tier:  TypeExact,
						Left:  left,
						Right: right,
						Score: confidence.Score{
							Value: 100,
							Evidence: []string{
								reason,
								fmt.Sprintf("amounts agree within $%.2f (%.2f vs %.2f)", e.cfg.AmountEpsilon, left.Amount, right.Amount),
							},
						},
					})
				}
			}
		}
	}
	return out
}

// exactPair reports whether two items form an exact match and why.
func (e *Engine) exactPair(left, right lineitem.LineItem) (string, bool) {
	if math.Abs(left.Amount-right.Amount) > e.cfg.AmountEpsilon {
		return "", false
	}

	if left.AccountCode != "" && left.AccountCode == right.AccountCode {
		return fmt.Sprintf("identical account code %s on %s and %s", left.AccountCode, left.DocumentType, right.DocumentType), true
	}

	leftKey, okL := KeyFor(left)
	rightKey, okR := KeyFor(right)
	if !okL || !okR {
		return "", false
	}
	if leftKey == rightKey {
		return fmt.Sprintf("both %s and %s resolve to account %s", left.DocumentType, right.DocumentType, leftKey), true
	}
	gl, glOK := EquivalenceGroup(leftKey)
	gr, grOK := EquivalenceGroup(rightKey)
	if glOK && grOK && gl == gr {
		return fmt.Sprintf("account mapping ties %s (%s) to %s (%s)", leftKey, left.DocumentType, rightKey, right.DocumentType), true
	}
	return "", false
}
