package matching

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/havenfield/reconcile/internal/confidence"
	"github.com/havenfield/reconcile/internal/lineitem"
)

// RuleAccount names one account a rule ties together, scoped to a document.
// Resolution prefers the account code; the canonical key is the fallback.
type RuleAccount struct {
	Document    lineitem.DocumentType `yaml:"document"`
	AccountKey  AccountKey            `yaml:"account_key"`
	AccountCode string                `yaml:"account_code"`
}

// Rule is a named reconciliation rule: two or more accounts that must report
// the same value within a tolerance. Rules are matched by id, not discovered.
type Rule struct {
	ID           string        `yaml:"id"`
	Name         string        `yaml:"name"`
	Description  string        `yaml:"description"`
	Accounts     []RuleAccount `yaml:"accounts"`
	TolerancePct float64       `yaml:"tolerance_pct"`
	Confidence   int           `yaml:"confidence"`
}

// BuiltinRules are always available; a rules file may override them by id.
func BuiltinRules() []Rule {
	return []Rule{
		{
			ID:          "property-tax-4way",
			Name:        "Property tax cross-document tie",
			Description: "Property tax expense must agree with the accrued liability, the cash disbursement, and the mortgage escrow disbursement.",
			Accounts: []RuleAccount{
				{Document: lineitem.DocIncomeStatement, AccountKey: KeyPropertyTaxExpense},
				{Document: lineitem.DocBalanceSheet, AccountKey: KeyPropertyTaxPayable},
				{Document: lineitem.DocCashFlow, AccountKey: KeyPropertyTaxPaid},
				{Document: lineitem.DocMortgageStatement, AccountKey: KeyPropertyTaxEscrow},
			},
			TolerancePct: 5.0,
			Confidence:   92,
		},
		{
			ID:          "insurance-2way",
			Name:        "Insurance expense vs cash paid",
			Description: "Insurance expense on the income statement must agree with insurance paid on the cash-flow statement.",
			Accounts: []RuleAccount{
				{Document: lineitem.DocIncomeStatement, AccountKey: KeyInsuranceExpense},
				{Document: lineitem.DocCashFlow, AccountKey: KeyInsurancePaid},
			},
			TolerancePct: 5.0,
			Confidence:   90,
		},
	}
}

// rulesFile is the YAML shape of a user-defined rules file.
type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules merges user-defined rules from a YAML file over the built-ins.
// An empty path returns the built-ins alone.
func LoadRules(path string) ([]Rule, error) {
	rules := BuiltinRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file %s: %w", path, err)
	}
	var rf rulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing rules file %s: %w", path, err)
	}

	byID := make(map[string]int, len(rules))
	for i, r := range rules {
		byID[r.ID] = i
	}
	for _, r := range rf.Rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rules file %s: rule without id", path)
		}
		if len(r.Accounts) < 2 {
			return nil, fmt.Errorf("rule %s: needs at least two accounts", r.ID)
		}
		if i, ok := byID[r.ID]; ok {
			rules[i] = r
		} else {
			byID[r.ID] = len(rules)
			rules = append(rules, r)
		}
	}
	return rules, nil
}

// runRules evaluates every configured rule. Agreement within epsilon yields a
// match at the rule's configured confidence; any other disagreement becomes a
// violation, flagged within-tolerance when below the rule's threshold.
func (e *Engine) runRules(snap lineitem.Snapshot) Result {
	var out Result

	for _, rule := range e.rules {
		items, ok := resolveRuleAccounts(rule, snap)
		if !ok {
			continue
		}

		base := items[0]
		var maxDiff, maxVariance float64
		for _, other := range items[1:] {
			diff := confidence.AbsoluteDifference(base.Amount, other.Amount)
			if diff > maxDiff {
				maxDiff = diff
			}
			if v := confidence.PercentVariance(base.Amount, other.Amount); v > maxVariance {
				maxVariance = v
			}
		}

		if maxDiff <= e.cfg.AmountEpsilon {
			out.Candidates = append(out.Candidates, Candidate{
				Tier:    TypeRuleBased,
				Left:    items[0],
				Right:   items[1],
				Related: items[2:],
				Score: confidence.Score{
					Value: rule.Confidence,
					Evidence: []string{
						fmt.Sprintf("rule %s: all %d accounts agree within $%.2f", rule.ID, len(items), e.cfg.AmountEpsilon),
					},
				},
			})
			continue
		}

		out.Violations = append(out.Violations, RuleViolation{
			Rule:            rule,
			Left:            items[0],
			Right:           items[1],
			Related:         items[2:],
			Difference:      maxDiff,
			PercentVariance: maxVariance,
			WithinTolerance: maxVariance <= rule.TolerancePct,
		})
	}
	return out
}

// resolveRuleAccounts finds one line item per rule account. Every account
// must resolve for the rule to apply.
func resolveRuleAccounts(rule Rule, snap lineitem.Snapshot) ([]lineitem.LineItem, bool) {
	items := make([]lineitem.LineItem, 0, len(rule.Accounts))
	for _, acct := range rule.Accounts {
		found := false
		for _, it := range snap[acct.Document] {
			if acct.AccountCode != "" && it.AccountCode == acct.AccountCode {
				items = append(items, it)
				found = true
				break
			}
			if acct.AccountKey != "" {
				if key, ok := KeyFor(it); ok && key == acct.AccountKey {
					items = append(items, it)
					found = true
					break
				}
			}
		}
		if !found {
			return nil, false
		}
	}
	return items, len(items) >= 2
}
