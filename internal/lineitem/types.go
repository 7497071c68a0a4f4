package lineitem

import (
	"context"
	"errors"
	"time"
)

// DocumentType identifies which of the five source documents a line item
// belongs to. The set is closed; cross-document account mapping depends on it.
type DocumentType string

const (
	DocBalanceSheet      DocumentType = "balance_sheet"
	DocIncomeStatement   DocumentType = "income_statement"
	DocCashFlow          DocumentType = "cash_flow"
	DocRentRoll          DocumentType = "rent_roll"
	DocMortgageStatement DocumentType = "mortgage_statement"
)

// AllDocumentTypes lists every document type in a fixed order.
var AllDocumentTypes = []DocumentType{
	DocBalanceSheet,
	DocIncomeStatement,
	DocCashFlow,
	DocRentRoll,
	DocMortgageStatement,
}

// Valid reports whether d is one of the five known document types.
func (d DocumentType) Valid() bool {
	switch d {
	case DocBalanceSheet, DocIncomeStatement, DocCashFlow, DocRentRoll, DocMortgageStatement:
		return true
	}
	return false
}

// LineItem is a normalized value owned by exactly one document. Immutable
// once ingested; matches reference it by id, never copy it.
type LineItem struct {
	ID           string       `json:"id"`
	PropertyID   string       `json:"property_id"`
	PeriodID     string       `json:"period_id"`
	DocumentType DocumentType `json:"document_type"`
	AccountCode  string       `json:"account_code"`
	AccountName  string       `json:"account_name"`
	Amount       float64      `json:"amount"`
	CreatedAt    time.Time    `json:"created_at"`
}

// ErrUnavailable signals that a document type has no line items for the
// requested property and period. Callers degrade gracefully rather than fail.
var ErrUnavailable = errors.New("document not available")

// Provider supplies normalized line items per document per property/period.
//
//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks -source=types.go Provider
type Provider interface {
	GetLineItems(ctx context.Context, propertyID, periodID string, docType DocumentType) ([]LineItem, error)
}

// Snapshot is a read-only view of every available document's line items for
// one property and period. Absent documents simply have no key.
type Snapshot map[DocumentType][]LineItem

// ItemByID returns the line item with the given id, if present.
func (s Snapshot) ItemByID(id string) (LineItem, bool) {
	for _, items := range s {
		for _, it := range items {
			if it.ID == id {
				return it, true
			}
		}
	}
	return LineItem{}, false
}

// DocumentsPresent returns how many of the five document types have at least
// one line item.
func (s Snapshot) DocumentsPresent() int {
	n := 0
	for _, items := range s {
		if len(items) > 0 {
			n++
		}
	}
	return n
}

// TakeSnapshot pulls every available document from the provider, tolerating
// per-document unavailability.
func TakeSnapshot(ctx context.Context, p Provider, propertyID, periodID string) (Snapshot, error) {
	snap := make(Snapshot)
	for _, dt := range AllDocumentTypes {
		items, err := p.GetLineItems(ctx, propertyID, periodID, dt)
		if errors.Is(err, ErrUnavailable) {
			continue
		}
		if err != nil {
			return nil, err
		}
		snap[dt] = items
	}
	return snap, nil
}
