package session

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

var (
	// ErrNotFound is returned when a session id does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidTransition is returned when the state machine forbids a move.
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrConflict is returned when a run is requested while another run holds
	// the session.
	ErrConflict = errors.New("reconciliation already in progress")
)

// Store provides persistence for reconciliation sessions.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create inserts a new session in the CREATED state.
func (s *Store) Create(ctx context.Context, propertyID, periodID, sessionType string) (*Session, error) {
	if propertyID == "" || periodID == "" {
		return nil, errors.New("property_id and period_id are required")
	}
	if sessionType == "" {
		sessionType = "full"
	}

	sess := &Session{
		ID:          uuid.New().String(),
		PropertyID:  propertyID,
		PeriodID:    periodID,
		SessionType: sessionType,
		Status:      StatusCreated,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, property_id, period_id, session_type, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.PropertyID, sess.PeriodID, sess.SessionType, string(sess.Status), sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return sess, nil
}

// GetByID retrieves a single session.
func (s *Store) GetByID(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return sess, nil
}

// List returns sessions matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Session, error) {
	query := selectColumns + " FROM sessions WHERE 1=1"
	var args []any

	if filter.PropertyID != "" {
		query += " AND property_id = ?"
		args = append(args, filter.PropertyID)
	}
	if filter.PeriodID != "" {
		query += " AND period_id = ?"
		args = append(args, filter.PeriodID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// Transition moves a session from one status to another. The UPDATE is
// guarded on the current status, so a concurrent transition loses cleanly
// instead of clobbering.
func (s *Store) Transition(ctx context.Context, id string, from, to Status) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET status = ? WHERE id = ? AND status = ?",
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("updating session status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: session is no longer %s", ErrInvalidTransition, from)
	}
	return nil
}

// Summary aggregates the session's matches and discrepancies directly from
// their rows. The counters can never drift from the data they summarize.
func (s *Store) Summary(ctx context.Context, sessionID string) (*Summary, error) {
	summary := &Summary{
		MatchesByTier:     make(map[string]int),
		MatchesByApproval: make(map[string]int),
		BySeverity:        make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT match_type, approval_state, COUNT(*) FROM matches WHERE session_id = ? GROUP BY match_type, approval_state",
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("aggregating matches: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tier, state string
		var n int
		if err := rows.Scan(&tier, &state, &n); err != nil {
			return nil, fmt.Errorf("scanning match counts: %w", err)
		}
		summary.TotalMatches += n
		summary.MatchesByTier[tier] += n
		summary.MatchesByApproval[state] += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	drows, err := s.db.QueryContext(ctx,
		"SELECT severity, resolution_state, COUNT(*) FROM discrepancies WHERE session_id = ? GROUP BY severity, resolution_state",
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("aggregating discrepancies: %w", err)
	}
	defer drows.Close()
	for drows.Next() {
		var severity, state string
		var n int
		if err := drows.Scan(&severity, &state, &n); err != nil {
			return nil, fmt.Errorf("scanning discrepancy counts: %w", err)
		}
		summary.TotalDiscrepancies += n
		summary.BySeverity[severity] += n
		if state == "open" {
			summary.OpenDiscrepancies += n
		}
	}
	return summary, drows.Err()
}

// Complete moves a session from REVIEW to COMPLETED and freezes the live
// summary into the row.
func (s *Store) Complete(ctx context.Context, id string) (*Session, error) {
	sess, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.Status.CanTransitionTo(StatusCompleted) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sess.Status, StatusCompleted)
	}

	summary, err := s.Summary(ctx, id)
	if err != nil {
		return nil, err
	}
	frozen, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("marshalling summary: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, frozen_summary = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusCompleted), string(frozen), now, id, string(sess.Status))
	if err != nil {
		return nil, fmt.Errorf("completing session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: session is no longer %s", ErrInvalidTransition, sess.Status)
	}

	sess.Status = StatusCompleted
	sess.FrozenSummary = summary
	sess.CompletedAt = &now
	return sess, nil
}

const selectColumns = `SELECT id, property_id, period_id, session_type, status, frozen_summary, created_at, completed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*Session, error) {
	var (
		sess        Session
		status      string
		frozen      sql.NullString
		completedAt sql.NullTime
	)
	err := sc.Scan(
		&sess.ID, &sess.PropertyID, &sess.PeriodID, &sess.SessionType,
		&status, &frozen, &sess.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	sess.Status = Status(status)
	if frozen.Valid {
		var summary Summary
		if err := json.Unmarshal([]byte(frozen.String), &summary); err == nil {
			sess.FrozenSummary = &summary
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}
	return &sess, nil
}
