package matching

import (
	"strings"

	"github.com/havenfield/reconcile/internal/lineitem"
)

// AccountKey is a canonical identifier for an account concept. Cross-document
// lookups go through this closed mapping rather than ad hoc string
// comparison, so the exact tier stays O(1) and auditable.
type AccountKey string

const (
	KeyCash                     AccountKey = "cash"
	KeyMortgagePayable          AccountKey = "mortgage_payable"
	KeyPropertyTaxPayable       AccountKey = "property_tax_payable"
	KeyCurrentYearEarnings      AccountKey = "current_year_earnings"
	KeyRentalIncome             AccountKey = "rental_income"
	KeyTotalRevenue             AccountKey = "total_revenue"
	KeyOperatingExpenses        AccountKey = "operating_expenses"
	KeyPropertyTaxExpense       AccountKey = "property_tax_expense"
	KeyInsuranceExpense         AccountKey = "insurance_expense"
	KeyNetOperatingIncome       AccountKey = "net_operating_income"
	KeyNetIncome                AccountKey = "net_income"
	KeyCashBeginning            AccountKey = "cash_beginning"
	KeyNetCashFlow              AccountKey = "net_cash_flow"
	KeyCashEnding               AccountKey = "cash_ending"
	KeyOperatingReceipts        AccountKey = "operating_receipts"
	KeyFinancingPrincipal       AccountKey = "financing_principal"
	KeyPropertyTaxPaid          AccountKey = "property_tax_paid"
	KeyInsurancePaid            AccountKey = "insurance_paid"
	KeyScheduledRent            AccountKey = "scheduled_rent"
	KeyMortgageBeginningBalance AccountKey = "mortgage_beginning_balance"
	KeyPrincipalPaid            AccountKey = "principal_paid"
	KeyMortgageEndingBalance    AccountKey = "mortgage_ending_balance"
	KeyPropertyTaxEscrow        AccountKey = "property_tax_escrow"
)

// codeMappings is the default chart of accounts: document-scoped account
// codes resolved to canonical keys.
var codeMappings = map[lineitem.DocumentType]map[string]AccountKey{
	lineitem.DocBalanceSheet: {
		"1010": KeyCash,
		"2310": KeyPropertyTaxPayable,
		"2500": KeyMortgagePayable,
		"3900": KeyCurrentYearEarnings,
	},
	lineitem.DocIncomeStatement: {
		"4000": KeyRentalIncome,
		"4900": KeyTotalRevenue,
		"5300": KeyPropertyTaxExpense,
		"5400": KeyInsuranceExpense,
		"5900": KeyOperatingExpenses,
		"6100": KeyNetOperatingIncome,
		"6900": KeyNetIncome,
	},
	lineitem.DocCashFlow: {
		"7000": KeyCashBeginning,
		"7100": KeyNetCashFlow,
		"7200": KeyCashEnding,
		"7300": KeyOperatingReceipts,
		"7310": KeyPropertyTaxPaid,
		"7320": KeyInsurancePaid,
		"7500": KeyFinancingPrincipal,
	},
	lineitem.DocRentRoll: {
		"8000": KeyScheduledRent,
	},
	lineitem.DocMortgageStatement: {
		"9000": KeyMortgageBeginningBalance,
		"9100": KeyPrincipalPaid,
		"9200": KeyMortgageEndingBalance,
		"9300": KeyPropertyTaxEscrow,
	},
}

// nameMappings resolves normalized account names when the code is unknown.
var nameMappings = map[string]AccountKey{
	"cash":                             KeyCash,
	"operating cash":                   KeyCash,
	"mortgage payable":                 KeyMortgagePayable,
	"property tax payable":             KeyPropertyTaxPayable,
	"current year earnings":            KeyCurrentYearEarnings,
	"retained earnings movement":       KeyCurrentYearEarnings,
	"rental income":                    KeyRentalIncome,
	"total revenue":                    KeyTotalRevenue,
	"total operating expenses":         KeyOperatingExpenses,
	"operating expenses":               KeyOperatingExpenses,
	"property tax expense":             KeyPropertyTaxExpense,
	"property tax":                     KeyPropertyTaxExpense,
	"insurance expense":                KeyInsuranceExpense,
	"net operating income":             KeyNetOperatingIncome,
	"net income":                       KeyNetIncome,
	"beginning cash":                   KeyCashBeginning,
	"beginning cash balance":           KeyCashBeginning,
	"net cash flow":                    KeyNetCashFlow,
	"ending cash":                      KeyCashEnding,
	"ending cash balance":              KeyCashEnding,
	"cash received from tenants":       KeyOperatingReceipts,
	"operating receipts":               KeyOperatingReceipts,
	"mortgage principal payments":      KeyFinancingPrincipal,
	"principal payments":               KeyFinancingPrincipal,
	"property tax paid":                KeyPropertyTaxPaid,
	"insurance paid":                   KeyInsurancePaid,
	"total scheduled rent":             KeyScheduledRent,
	"gross scheduled rent":             KeyScheduledRent,
	"beginning principal balance":      KeyMortgageBeginningBalance,
	"principal paid":                   KeyPrincipalPaid,
	"ending principal balance":         KeyMortgageEndingBalance,
	"property tax escrow disbursement": KeyPropertyTaxEscrow,
}

// equivalenceGroups names keys that describe the same value reported on
// different documents. Pairs in one group are exact-tier material.
var equivalenceGroups = map[AccountKey]string{
	KeyCash:                  "cash_balance",
	KeyCashEnding:            "cash_balance",
	KeyMortgagePayable:       "mortgage_balance",
	KeyMortgageEndingBalance: "mortgage_balance",
	KeyRentalIncome:          "rent",
	KeyScheduledRent:         "rent",
}

// KeyFor resolves a line item to its canonical account key via its document's
// code map, falling back to the normalized account name.
func KeyFor(item lineitem.LineItem) (AccountKey, bool) {
	if codes, ok := codeMappings[item.DocumentType]; ok {
		if key, ok := codes[item.AccountCode]; ok {
			return key, true
		}
	}
	key, ok := nameMappings[NormalizeName(item.AccountName)]
	return key, ok
}

// balanceAffecting marks keys that represent balance-sheet or loan balances.
// Variances on these escalate severity faster than flow accounts.
var balanceAffecting = map[AccountKey]bool{
	KeyCash:                     true,
	KeyMortgagePayable:          true,
	KeyPropertyTaxPayable:       true,
	KeyCurrentYearEarnings:      true,
	KeyCashBeginning:            true,
	KeyCashEnding:               true,
	KeyMortgageBeginningBalance: true,
	KeyMortgageEndingBalance:    true,
}

// BalanceAffecting reports whether the key represents a balance rather than a
// period flow.
func BalanceAffecting(key AccountKey) bool {
	return balanceAffecting[key]
}

// EquivalenceGroup returns the cross-document group for a key, if any.
func EquivalenceGroup(key AccountKey) (string, bool) {
	g, ok := equivalenceGroups[key]
	return g, ok
}

// NormalizeName lowercases and collapses whitespace. Pure and
// locale-independent so matching stays deterministic.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// indexByKey builds a canonical-key index over the snapshot. When a key
// appears more than once the first item in document order wins.
func indexByKey(snap lineitem.Snapshot) map[AccountKey]lineitem.LineItem {
	index := make(map[AccountKey]lineitem.LineItem)
	for _, dt := range lineitem.AllDocumentTypes {
		for _, it := range snap[dt] {
			key, ok := KeyFor(it)
			if !ok {
				continue
			}
			if _, exists := index[key]; !exists {
				index[key] = it
			}
		}
	}
	return index
}
