package lineitem

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// csvColumns maps expected header names to their meaning. Header order in the
// file is free; extra columns are ignored.
var csvColumns = []string{"document_type", "account_code", "account_name", "amount"}

// ParseCSV reads line items for one property/period from a CSV stream with a
// header row of document_type, account_code, account_name, amount.
func ParseCSV(r io.Reader, propertyID, periodID string) ([]LineItem, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range csvColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing required CSV column %q", col)
		}
	}

	var items []LineItem
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row %d: %w", row, err)
		}
		row++

		docType := DocumentType(strings.TrimSpace(record[index["document_type"]]))
		if !docType.Valid() {
			return nil, fmt.Errorf("row %d: unknown document type %q", row, docType)
		}

		amountRaw := strings.TrimSpace(record[index["amount"]])
		amount, err := strconv.ParseFloat(strings.ReplaceAll(amountRaw, ",", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: could not parse amount %q: %w", row, amountRaw, err)
		}

		items = append(items, LineItem{
			PropertyID:   propertyID,
			PeriodID:     periodID,
			DocumentType: docType,
			AccountCode:  strings.TrimSpace(record[index["account_code"]]),
			AccountName:  strings.TrimSpace(record[index["account_name"]]),
			Amount:       amount,
		})
	}
	return items, nil
}
