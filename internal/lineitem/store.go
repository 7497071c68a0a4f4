package lineitem

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/havenfield/reconcile/internal/db"
)

// Store persists line items and implements Provider over SQLite.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// InsertBatch ingests a batch of line items. Items with no ID get a UUID.
func (s *Store) InsertBatch(ctx context.Context, items []LineItem) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO line_items (id, property_id, period_id, document_type, account_code, account_name, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range items {
		it := &items[i]
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		if !it.DocumentType.Valid() {
			return 0, fmt.Errorf("invalid document type %q", it.DocumentType)
		}
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			it.ID, it.PropertyID, it.PeriodID, string(it.DocumentType),
			it.AccountCode, it.AccountName, it.Amount, it.CreatedAt,
		); err != nil {
			return 0, fmt.Errorf("inserting line item %s: %w", it.AccountCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing line items: %w", err)
	}
	return len(items), nil
}

// GetLineItems implements Provider. Returns ErrUnavailable when the document
// has no line items for the property/period.
func (s *Store) GetLineItems(ctx context.Context, propertyID, periodID string, docType DocumentType) ([]LineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, property_id, period_id, document_type, account_code, account_name, amount, created_at
		FROM line_items
		WHERE property_id = ? AND period_id = ? AND document_type = ?
		ORDER BY account_code, id`,
		propertyID, periodID, string(docType))
	if err != nil {
		return nil, fmt.Errorf("querying line items: %w", err)
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		var it LineItem
		var dt string
		if err := rows.Scan(&it.ID, &it.PropertyID, &it.PeriodID, &dt, &it.AccountCode, &it.AccountName, &it.Amount, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning line item: %w", err)
		}
		it.DocumentType = DocumentType(dt)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return nil, ErrUnavailable
	}
	return items, nil
}

// GetByID returns a single line item.
func (s *Store) GetByID(ctx context.Context, id string) (*LineItem, error) {
	var it LineItem
	var dt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, property_id, period_id, document_type, account_code, account_name, amount, created_at
		FROM line_items WHERE id = ?`, id,
	).Scan(&it.ID, &it.PropertyID, &it.PeriodID, &dt, &it.AccountCode, &it.AccountName, &it.Amount, &it.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting line item: %w", err)
	}
	it.DocumentType = DocumentType(dt)
	return &it, nil
}

// Counts returns the number of line items per document type for a
// property/period. Absent document types map to zero.
func (s *Store) Counts(ctx context.Context, propertyID, periodID string) (map[DocumentType]int, error) {
	counts := make(map[DocumentType]int, len(AllDocumentTypes))
	for _, dt := range AllDocumentTypes {
		counts[dt] = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT document_type, COUNT(*) FROM line_items
		WHERE property_id = ? AND period_id = ?
		GROUP BY document_type`,
		propertyID, periodID)
	if err != nil {
		return nil, fmt.Errorf("counting line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dt string
		var n int
		if err := rows.Scan(&dt, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[DocumentType(dt)] = n
	}
	return counts, rows.Err()
}
