package health

import (
	"context"
	"fmt"

	"github.com/havenfield/reconcile/internal/lineitem"
)

// Availability reports whether a property/period holds enough line items to
// reconcile, and what to do about it when it does not.
type Availability struct {
	CanReconcile      bool                          `json:"can_reconcile"`
	PerDocumentCounts map[lineitem.DocumentType]int `json:"per_document_counts"`
	Recommendations   []string                      `json:"recommendations"`
}

// Counter supplies per-document line-item counts for a property/period.
type Counter interface {
	Counts(ctx context.Context, propertyID, periodID string) (map[lineitem.DocumentType]int, error)
}

// CheckAvailability inspects per-document line-item counts. Cross-document
// matching needs at least two document types with data.
func CheckAvailability(ctx context.Context, counter Counter, propertyID, periodID string) (*Availability, error) {
	counts, err := counter.Counts(ctx, propertyID, periodID)
	if err != nil {
		return nil, err
	}

	present := 0
	for _, n := range counts {
		if n > 0 {
			present++
		}
	}

	av := &Availability{
		CanReconcile:      present >= 2,
		PerDocumentCounts: counts,
	}
	if !av.CanReconcile {
		av.Recommendations = ZeroMatchDiagnosis(counts)
	} else if present < len(lineitem.AllDocumentTypes) {
		for _, dt := range lineitem.AllDocumentTypes {
			if counts[dt] == 0 {
				av.Recommendations = append(av.Recommendations,
					fmt.Sprintf("ingest the %s to widen match coverage", docLabel(dt)))
			}
		}
	}
	return av, nil
}

// ZeroMatchDiagnosis composes an ordered list of likely causes and next
// actions for a run that produced no matches. Most fundamental cause first.
func ZeroMatchDiagnosis(counts map[lineitem.DocumentType]int) []string {
	present := 0
	total := 0
	for _, dt := range lineitem.AllDocumentTypes {
		if counts[dt] > 0 {
			present++
		}
		total += counts[dt]
	}

	switch {
	case total == 0:
		return []string{
			"no line items found for this property and period",
			"ingest at least two document types before reconciling",
		}
	case present == 1:
		only := lineitem.DocumentType("")
		for _, dt := range lineitem.AllDocumentTypes {
			if counts[dt] > 0 {
				only = dt
			}
		}
		return []string{
			fmt.Sprintf("only one document type present (%s); cross-document matching requires at least two", docLabel(only)),
			"ingest a second document type for the same property and period",
		}
	}

	out := []string{
		"documents are present but no account pairs lined up",
		"verify the account codes follow the standard chart of accounts",
		"check that every document covers the same property and period",
	}
	for _, dt := range lineitem.AllDocumentTypes {
		if counts[dt] == 0 {
			out = append(out, fmt.Sprintf("the %s is missing; some tiers need it", docLabel(dt)))
		}
	}
	return out
}

func docLabel(dt lineitem.DocumentType) string {
	switch dt {
	case lineitem.DocBalanceSheet:
		return "balance sheet"
	case lineitem.DocIncomeStatement:
		return "income statement"
	case lineitem.DocCashFlow:
		return "cash flow statement"
	case lineitem.DocRentRoll:
		return "rent roll"
	case lineitem.DocMortgageStatement:
		return "mortgage statement"
	}
	return string(dt)
}
