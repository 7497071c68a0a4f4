package match

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/havenfield/reconcile/internal/db"
)

// ErrNotFound is returned when a match id does not exist.
var ErrNotFound = errors.New("match not found")

// Store provides persistence for matches.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Upsert inserts a match by its (session, pair_key) identity. An existing row
// is replaced only while it is still pending and only by an equal or better
// tier priority, so approved and rejected matches survive re-runs and an
// earlier tier is never overwritten by a later one. Returns true when the
// row was inserted or its content changed; re-upserting identical content
// affects nothing, so callers can count what a run actually produced.
func (s *Store) Upsert(ctx context.Context, m Match) (bool, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.ApprovalState == "" {
		m.ApprovalState = StatePending
	}
	now := time.Now().UTC()

	evidence, err := json.Marshal(m.Evidence)
	if err != nil {
		return false, fmt.Errorf("marshalling evidence: %w", err)
	}
	related, err := json.Marshal(m.RelatedItemIDs)
	if err != nil {
		return false, fmt.Errorf("marshalling related item ids: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (
			id, session_id, pair_key, match_type, tier_priority, confidence,
			evidence, left_item_id, right_item_id, related_item_ids,
			approval_state, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, pair_key) DO UPDATE SET
			match_type = excluded.match_type,
			tier_priority = excluded.tier_priority,
			confidence = excluded.confidence,
			evidence = excluded.evidence,
			left_item_id = excluded.left_item_id,
			right_item_id = excluded.right_item_id,
			related_item_ids = excluded.related_item_ids,
			updated_at = excluded.updated_at
		WHERE matches.approval_state = 'pending'
		  AND excluded.tier_priority <= matches.tier_priority
		  AND (matches.match_type != excluded.match_type
		       OR matches.confidence != excluded.confidence
		       OR matches.evidence != excluded.evidence
		       OR matches.left_item_id != excluded.left_item_id
		       OR matches.right_item_id != excluded.right_item_id
		       OR matches.related_item_ids != excluded.related_item_ids)`,
		m.ID, m.SessionID, m.PairKey, m.MatchType, m.TierPriority, m.Confidence,
		string(evidence), m.LeftItemID, m.RightItemID, string(related),
		string(m.ApprovalState), now, now,
	)
	if err != nil {
		return false, fmt.Errorf("upserting match: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading upsert result: %w", err)
	}
	return n > 0, nil
}

// GetByID retrieves a single match.
func (s *Store) GetByID(ctx context.Context, id string) (*Match, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM matches WHERE id = ?", id)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting match: %w", err)
	}
	return m, nil
}

// List returns matches for a session, optionally filtered by type and
// approval state, in stable pair-key order.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Match, error) {
	query := selectColumns + " FROM matches WHERE session_id = ?"
	args := []any{filter.SessionID}

	if filter.MatchType != "" {
		query += " AND match_type = ?"
		args = append(args, filter.MatchType)
	}
	if filter.ApprovalState != "" {
		query += " AND approval_state = ?"
		args = append(args, string(filter.ApprovalState))
	}
	query += " ORDER BY pair_key"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

// SetApproval updates the approval state of a match inside the given
// transaction. The caller owns the transaction and the session-state guard.
func (s *Store) SetApproval(ctx context.Context, tx *sql.Tx, id string, state ApprovalState, reason string) error {
	var rejection sql.NullString
	if reason != "" {
		rejection = sql.NullString{String: reason, Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE matches SET approval_state = ?, rejection_reason = ?, updated_at = ?
		WHERE id = ?`,
		string(state), rejection, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating approval state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MatchedItemIDs returns the ids of every line item referenced by any
// non-rejected match in the session.
func (s *Store) MatchedItemIDs(ctx context.Context, sessionID string) (map[string]bool, error) {
	matches, err := s.List(ctx, ListFilter{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool)
	for _, m := range matches {
		if m.ApprovalState == StateRejected {
			continue
		}
		ids[m.LeftItemID] = true
		ids[m.RightItemID] = true
		for _, id := range m.RelatedItemIDs {
			ids[id] = true
		}
	}
	return ids, nil
}

const selectColumns = `SELECT id, session_id, pair_key, match_type, tier_priority, confidence,
	evidence, left_item_id, right_item_id, related_item_ids,
	approval_state, rejection_reason, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMatch(sc scanner) (*Match, error) {
	var (
		m                 Match
		state             string
		evidence, related string
		rejection         sql.NullString
	)
	err := sc.Scan(
		&m.ID, &m.SessionID, &m.PairKey, &m.MatchType, &m.TierPriority, &m.Confidence,
		&evidence, &m.LeftItemID, &m.RightItemID, &related,
		&state, &rejection, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.ApprovalState = ApprovalState(state)
	if rejection.Valid {
		m.RejectionReason = rejection.String
	}
	if err := json.Unmarshal([]byte(evidence), &m.Evidence); err != nil {
		m.Evidence = nil
	}
	if err := json.Unmarshal([]byte(related), &m.RelatedItemIDs); err != nil {
		m.RelatedItemIDs = nil
	}
	return &m, nil
}
