package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/havenfield/reconcile/internal/db"
)

// Store provides append and query operations for audit events.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Log inserts a new audit event. If event.ID is empty a UUID is generated.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	var previousValue, newValue sql.NullString
	if event.PreviousValue != "" {
		previousValue = sql.NullString{String: event.PreviousValue, Valid: true}
	}
	if event.NewValue != "" {
		newValue = sql.NullString{String: event.NewValue, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, actor_type, actor_id, action, scope, scope_id,
			session_id, summary, previous_value, new_value
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		string(event.ActorType),
		event.ActorID,
		string(event.Action),
		string(event.Scope),
		event.ScopeID,
		event.SessionID,
		event.Summary,
		previousValue,
		newValue,
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// QueryFilter controls which audit events are returned by Query.
type QueryFilter struct {
	ActorID   string
	Scope     Scope
	ScopeID   string
	Action    Action
	SessionID string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// Query returns audit events matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	var (
		clauses []string
		args    []any
	)

	if filter.ActorID != "" {
		clauses = append(clauses, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.Scope != "" {
		clauses = append(clauses, "scope = ?")
		args = append(args, string(filter.Scope))
	}
	if filter.ScopeID != "" {
		clauses = append(clauses, "scope_id = ?")
		args = append(args, filter.ScopeID)
	}
	if filter.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Since != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, filter.Since.UTC().Format(time.DateTime))
	}
	if filter.Until != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, filter.Until.UTC().Format(time.DateTime))
	}

	query := "SELECT id, timestamp, actor_type, actor_id, action, scope, scope_id, session_id, summary, previous_value, new_value FROM audit_events"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e                        Event
			actorType, action, scope string
			ts                       string
			previousValue, newValue  sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &ts, &actorType, &e.ActorID, &action, &scope, &e.ScopeID,
			&e.SessionID, &e.Summary, &previousValue, &newValue,
		); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}

		e.ActorType = ActorType(actorType)
		e.Action = Action(action)
		e.Scope = Scope(scope)
		if t, parseErr := time.Parse(time.DateTime, ts); parseErr == nil {
			e.Timestamp = t
		}
		if previousValue.Valid {
			e.PreviousValue = previousValue.String
		}
		if newValue.Valid {
			e.NewValue = newValue.String
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
