package lineitem

import (
	"strings"
	"testing"
)

func TestParseCSV(t *testing.T) {
	input := strings.Join([]string{
		"document_type,account_code,account_name,amount",
		"balance_sheet,1010,Operating Cash,\"125000.00\"",
		"income_statement,4000,Rental Income,98000.50",
	}, "\n")

	items, err := ParseCSV(strings.NewReader(input), "prop-1", "2025-Q4")
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].PropertyID != "prop-1" || items[0].PeriodID != "2025-Q4" {
		t.Errorf("scope not applied: %+v", items[0])
	}
	if items[1].Amount != 98000.50 {
		t.Errorf("Amount = %v, want 98000.50", items[1].Amount)
	}
}

func TestParseCSVHeaderOrderIndependent(t *testing.T) {
	input := "amount,account_name,account_code,document_type\n12.50,Insurance,6100,income_statement\n"

	items, err := ParseCSV(strings.NewReader(input), "p", "q")
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if items[0].AccountCode != "6100" || items[0].Amount != 12.50 {
		t.Errorf("unexpected item: %+v", items[0])
	}
}

func TestParseCSVMissingColumn(t *testing.T) {
	input := "document_type,account_code,amount\nbalance_sheet,1010,5\n"

	if _, err := ParseCSV(strings.NewReader(input), "p", "q"); err == nil {
		t.Error("expected error for missing account_name column")
	}
}

func TestParseCSVUnknownDocumentType(t *testing.T) {
	input := "document_type,account_code,account_name,amount\ngeneral_ledger,1,x,5\n"

	if _, err := ParseCSV(strings.NewReader(input), "p", "q"); err == nil {
		t.Error("expected error for unknown document type")
	}
}
