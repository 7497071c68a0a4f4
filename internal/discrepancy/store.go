package discrepancy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/havenfield/reconcile/internal/db"
)

var (
	// ErrNotFound is returned when a discrepancy id does not exist.
	ErrNotFound = errors.New("discrepancy not found")
	// ErrAlreadyResolved is returned when resolving a resolved discrepancy.
	// Resolution is terminal.
	ErrAlreadyResolved = errors.New("discrepancy already resolved")
)

// Store provides persistence for discrepancies.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Upsert inserts a discrepancy by its (session, item_key) identity. A re-run
// refreshes an open row's measurements but never touches a resolved one.
func (s *Store) Upsert(ctx context.Context, d Discrepancy) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.ResolutionState == "" {
		d.ResolutionState = StateOpen
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discrepancies (
			id, session_id, item_key, left_item_id, right_item_id,
			severity, difference, percent_variance, within_tolerance,
			description, resolution_state, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, item_key) DO UPDATE SET
			left_item_id = excluded.left_item_id,
			right_item_id = excluded.right_item_id,
			severity = excluded.severity,
			difference = excluded.difference,
			percent_variance = excluded.percent_variance,
			within_tolerance = excluded.within_tolerance,
			description = excluded.description
		WHERE discrepancies.resolution_state = 'open'`,
		d.ID, d.SessionID, d.ItemKey, d.LeftItemID, nullString(d.RightItemID),
		string(d.Severity), d.Difference, d.PercentVariance, boolInt(d.WithinTolerance),
		d.Description, string(d.ResolutionState), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting discrepancy: %w", err)
	}
	return nil
}

// GetByID retrieves a single discrepancy.
func (s *Store) GetByID(ctx context.Context, id string) (*Discrepancy, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM discrepancies WHERE id = ?", id)
	d, err := scanDiscrepancy(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting discrepancy: %w", err)
	}
	return d, nil
}

// List returns discrepancies for a session, optionally filtered by severity
// and resolution state, in stable item-key order.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Discrepancy, error) {
	query := selectColumns + " FROM discrepancies WHERE session_id = ?"
	args := []any{filter.SessionID}

	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}
	if filter.ResolutionState != "" {
		query += " AND resolution_state = ?"
		args = append(args, string(filter.ResolutionState))
	}
	query += " ORDER BY item_key"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing discrepancies: %w", err)
	}
	defer rows.Close()

	var discs []Discrepancy
	for rows.Next() {
		d, err := scanDiscrepancy(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning discrepancy: %w", err)
		}
		discs = append(discs, *d)
	}
	return discs, rows.Err()
}

// Resolve closes a discrepancy inside the given transaction. Terminal:
// resolving twice fails. The caller owns the transaction and the
// session-state guard.
func (s *Store) Resolve(ctx context.Context, tx *sql.Tx, id, notes string, correctedValue *float64) error {
	var corrected sql.NullFloat64
	if correctedValue != nil {
		corrected = sql.NullFloat64{Float64: *correctedValue, Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE discrepancies
		SET resolution_state = 'resolved', resolution_notes = ?, corrected_value = ?, resolved_at = ?
		WHERE id = ? AND resolution_state = 'open'`,
		notes, corrected, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("resolving discrepancy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var state string
		err := tx.QueryRowContext(ctx, "SELECT resolution_state FROM discrepancies WHERE id = ?", id).Scan(&state)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking discrepancy state: %w", err)
		}
		return ErrAlreadyResolved
	}
	return nil
}

const selectColumns = `SELECT id, session_id, item_key, left_item_id, right_item_id,
	severity, difference, percent_variance, within_tolerance,
	description, resolution_state, resolution_notes, corrected_value,
	created_at, resolved_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDiscrepancy(sc scanner) (*Discrepancy, error) {
	var (
		d               Discrepancy
		severity, state string
		rightItem       sql.NullString
		withinTolerance int
		notes           sql.NullString
		corrected       sql.NullFloat64
		resolvedAt      sql.NullTime
	)
	err := sc.Scan(
		&d.ID, &d.SessionID, &d.ItemKey, &d.LeftItemID, &rightItem,
		&severity, &d.Difference, &d.PercentVariance, &withinTolerance,
		&d.Description, &state, &notes, &corrected,
		&d.CreatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Severity = Severity(severity)
	d.ResolutionState = ResolutionState(state)
	d.WithinTolerance = withinTolerance != 0
	if rightItem.Valid {
		d.RightItemID = rightItem.String
	}
	if notes.Valid {
		d.ResolutionNotes = notes.String
	}
	if corrected.Valid {
		v := corrected.Float64
		d.CorrectedValue = &v
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		d.ResolvedAt = &t
	}
	return &d, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
