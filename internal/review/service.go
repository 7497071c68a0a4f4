package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/havenfield/reconcile/internal/audit"
	"github.com/havenfield/reconcile/internal/db"
	"github.com/havenfield/reconcile/internal/discrepancy"
	"github.com/havenfield/reconcile/internal/match"
	"github.com/havenfield/reconcile/internal/session"
)

var (
	// ErrSessionCompleted is returned when reviewing against a completed
	// session. Completed sessions are immutable.
	ErrSessionCompleted = errors.New("session already completed")
	// ErrSessionBusy is returned while a reconciliation pass owns the
	// session. Review decisions wait until the session is back in REVIEW.
	ErrSessionBusy = errors.New("reconciliation in progress")
	// ErrReasonRequired is returned when rejecting without a reason.
	ErrReasonRequired = errors.New("rejection reason is required")
)

// Service is the human review workflow: approving and rejecting matches,
// resolving discrepancies. Every mutation runs in a transaction and lands in
// the audit trail.
type Service struct {
	db       *db.DB
	sessions *session.Store
	matches  *match.Store
	discs    *discrepancy.Store
	audits   *audit.Store
}

// NewService creates a review service over the given stores.
func NewService(database *db.DB, sessions *session.Store, matches *match.Store, discs *discrepancy.Store, audits *audit.Store) *Service {
	return &Service{db: database, sessions: sessions, matches: matches, discs: discs, audits: audits}
}

// Approve marks a match approved. The session summary needs no separate
// write; it is always aggregated from the match rows themselves.
func (s *Service) Approve(ctx context.Context, matchID, actor string) (*match.Match, error) {
	return s.setApproval(ctx, matchID, actor, match.StateApproved, "")
}

// Reject marks a match rejected. The reason is mandatory and recorded for
// audit.
func (s *Service) Reject(ctx context.Context, matchID, actor, reason string) (*match.Match, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}
	return s.setApproval(ctx, matchID, actor, match.StateRejected, reason)
}

func (s *Service) setApproval(ctx context.Context, matchID, actor string, state match.ApprovalState, reason string) (*match.Match, error) {
	m, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := s.guardSession(ctx, m.SessionID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.matches.SetApproval(ctx, tx, matchID, state, reason); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing approval: %w", err)
	}

	action := audit.ActionMatchApproved
	summary := fmt.Sprintf("match %s approved", matchID)
	if state == match.StateRejected {
		action = audit.ActionMatchRejected
		summary = fmt.Sprintf("match %s rejected: %s", matchID, reason)
	}
	s.logEvent(ctx, audit.Event{
		ActorType:     audit.ActorUser,
		ActorID:       actor,
		Action:        action,
		Scope:         audit.ScopeMatch,
		ScopeID:       matchID,
		SessionID:     m.SessionID,
		Summary:       summary,
		PreviousValue: string(m.ApprovalState),
		NewValue:      string(state),
	})

	return s.matches.GetByID(ctx, matchID)
}

// Resolve closes a discrepancy with reviewer notes and an optional corrected
// value. Terminal: a resolved discrepancy is never reopened, and resolving it
// does not retroactively alter any approved match.
func (s *Service) Resolve(ctx context.Context, discrepancyID, actor, notes string, correctedValue *float64) (*discrepancy.Discrepancy, error) {
	d, err := s.discs.GetByID(ctx, discrepancyID)
	if err != nil {
		return nil, err
	}
	if err := s.guardSession(ctx, d.SessionID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.discs.Resolve(ctx, tx, discrepancyID, notes, correctedValue); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing resolution: %w", err)
	}

	previous, _ := json.Marshal(d)
	s.logEvent(ctx, audit.Event{
		ActorType:     audit.ActorUser,
		ActorID:       actor,
		Action:        audit.ActionDiscrepancyResolved,
		Scope:         audit.ScopeDiscrepancy,
		ScopeID:       discrepancyID,
		SessionID:     d.SessionID,
		Summary:       fmt.Sprintf("discrepancy %s resolved: %s", discrepancyID, notes),
		PreviousValue: string(previous),
		NewValue:      string(discrepancy.StateResolved),
	})

	return s.discs.GetByID(ctx, discrepancyID)
}

// guardSession rejects review operations once the session is completed and
// while a reconciliation pass holds it in MATCHING or VALIDATING.
func (s *Service) guardSession(ctx context.Context, sessionID string) error {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	switch sess.Status {
	case session.StatusCompleted:
		return ErrSessionCompleted
	case session.StatusMatching, session.StatusValidating:
		return fmt.Errorf("%w: session is %s", ErrSessionBusy, sess.Status)
	}
	return nil
}

func (s *Service) logEvent(ctx context.Context, event audit.Event) {
	if err := s.audits.Log(ctx, event); err != nil {
		log.Printf("review: audit log: %v", err)
	}
}
