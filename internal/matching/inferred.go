package matching

import (
	"fmt"

	"github.com/havenfield/reconcile/internal/confidence"
	"github.com/havenfield/reconcile/internal/lineitem"
)

// chain is a multi-hop relationship spanning three or more documents. Each
// hop asserts that two canonical accounts report the same value.
type chain struct {
	name      string
	documents []lineitem.DocumentType
	hops      [][2]AccountKey
}

var chains = []chain{
	{
		// Principal paydown on the mortgage statement must equal the
		// financing-activity principal line on the cash-flow statement and
		// the reduction implied by the mortgage balances, while the balance
		// sheet carries the ending balance.
		name: "mortgage principal paydown",
		documents: []lineitem.DocumentType{
			lineitem.DocMortgageStatement,
			lineitem.DocCashFlow,
			lineitem.DocBalanceSheet,
		},
		hops: [][2]AccountKey{
			{KeyPrincipalPaid, KeyFinancingPrincipal},
			{KeyMortgageEndingBalance, KeyMortgagePayable},
		},
	},
	{
		// Scheduled rent on the rent roll flows through income-statement
		// rental income into cash-flow operating receipts.
		name: "rent collections",
		documents: []lineitem.DocumentType{
			lineitem.DocRentRoll,
			lineitem.DocIncomeStatement,
			lineitem.DocCashFlow,
		},
		hops: [][2]AccountKey{
			{KeyScheduledRent, KeyRentalIncome},
			{KeyRentalIncome, KeyOperatingReceipts},
		},
	},
}

// runInferred evaluates multi-hop chains. Every hop must hold within the
// calculated tolerance; confidence averages hop closeness and is capped at
// the inferred ceiling because hops compound uncertainty.
func (e *Engine) runInferred(snap lineitem.Snapshot) Result {
	var out Result
	index := indexByKey(snap)

	for _, ch := range chains {
		docsPresent := true
		for _, dt := range ch.documents {
			if len(snap[dt]) == 0 {
				docsPresent = false
				break
			}
		}
		if !docsPresent {
			continue
		}

		var (
			components []confidence.Component
			items      []lineitem.LineItem
			seen       = map[string]bool{}
			broken     bool
		)
		for _, hop := range ch.hops {
			left, okL := index[hop[0]]
			right, okR := index[hop[1]]
			if !okL || !okR {
				broken = true
				break
			}
			variance := confidence.PercentVariance(left.Amount, right.Amount)
			if variance > e.cfg.CalculatedTolerancePct {
				broken = true
				break
			}
			components = append(components, confidence.Component{
				Name:     string(hop[0]) + "~" + string(hop[1]),
				Weight:   1,
				Value:    confidence.Closeness(variance, e.cfg.CalculatedTolerancePct),
				Evidence: fmt.Sprintf("%s (%s) agrees with %s (%s) within %.1f%%", hop[0], left.DocumentType, hop[1], right.DocumentType, variance),
			})
			for _, it := range []lineitem.LineItem{left, right} {
				if !seen[it.ID] {
					seen[it.ID] = true
					items = append(items, it)
				}
			}
		}
		if broken || len(items) < 2 {
			continue
		}

		score := confidence.Compose(components, e.cfg.InferredMaxConfidence)
		score.Evidence = append(score.Evidence,
			fmt.Sprintf("%s chain spans %d documents", ch.name, len(ch.documents)))

		out.Candidates = append(out.Candidates, Candidate{
			Tier:    TypeInferred,
			Left:    items[0],
			Right:   items[1],
			Related: items[2:],
			Score:   score,
		})
	}
	return out
}
