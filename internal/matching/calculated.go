package matching

import (
	"fmt"

	"github.com/havenfield/reconcile/internal/confidence"
	"github.com/havenfield/reconcile/internal/lineitem"
)

// formula is a deterministic relationship between a reported line item and a
// value computed from other already-known line items.
type formula struct {
	name    string
	target  AccountKey
	operand func(index map[AccountKey]lineitem.LineItem) (computed float64, inputs []lineitem.LineItem, ok bool)
}

// formulas are evaluated in order; each may produce at most one candidate.
var formulas = []formula{
	{
		name:   "net operating income",
		target: KeyNetOperatingIncome,
		operand: func(index map[AccountKey]lineitem.LineItem) (float64, []lineitem.LineItem, bool) {
			revenue, okR := index[KeyTotalRevenue]
			expenses, okE := index[KeyOperatingExpenses]
			if !okR || !okE {
				return 0, nil, false
			}
			return revenue.Amount - expenses.Amount, []lineitem.LineItem{revenue, expenses}, true
		},
	},
	{
		name:   "ending cash balance",
		target: KeyCashEnding,
		operand: func(index map[AccountKey]lineitem.LineItem) (float64, []lineitem.LineItem, bool) {
			beginning, okB := index[KeyCashBeginning]
			flow, okF := index[KeyNetCashFlow]
			if !okB || !okF {
				return 0, nil, false
			}
			return beginning.Amount + flow.Amount, []lineitem.LineItem{beginning, flow}, true
		},
	},
	{
		// Net income on the income statement ties to the balance sheet's
		// current-period retained earnings movement.
		name:   "retained earnings movement",
		target: KeyCurrentYearEarnings,
		operand: func(index map[AccountKey]lineitem.LineItem) (float64, []lineitem.LineItem, bool) {
			netIncome, ok := index[KeyNetIncome]
			if !ok {
				return 0, nil, false
			}
			return netIncome.Amount, []lineitem.LineItem{netIncome}, true
		},
	},
}

// runCalculated evaluates each formula against the snapshot's canonical-key
// index and compares the computed value to the reported one. Confidence
// depends on how close computed and reported are.
func (e *Engine) runCalculated(snap lineitem.Snapshot) Result {
	var out Result
	index := indexByKey(snap)

	for _, f := range formulas {
		target, ok := index[f.target]
		if !ok {
			continue
		}
		computed, inputs, ok := f.operand(index)
		if !ok {
			continue
		}
		// The target must not feed its own formula.
		selfReferential := false
		for _, in := range inputs {
			if in.ID == target.ID {
				selfReferential = true
			}
		}
		if selfReferential || len(inputs) == 0 {
			continue
		}

		variance := confidence.PercentVariance(computed, target.Amount)
		if variance > e.cfg.CalculatedTolerancePct {
			continue
		}

		score := confidence.Compose([]confidence.Component{
			{
				Name:     "computed_closeness",
				Weight:   1,
				Value:    confidence.Closeness(variance, e.cfg.CalculatedTolerancePct),
				Evidence: fmt.Sprintf("computed %s (%.2f) differs from reported value (%.2f) by %.1f%%", f.name, computed, target.Amount, variance),
			},
		}, 100)

		out.Candidates = append(out.Candidates, Candidate{
			Tier:    TypeCalculated,
			Left:    target,
			Right:   inputs[0],
			Related: inputs[1:],
			Score:   score,
		})
	}
	return out
}
