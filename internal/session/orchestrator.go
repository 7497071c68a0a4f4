package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/havenfield/reconcile/internal/audit"
	"github.com/havenfield/reconcile/internal/discrepancy"
	"github.com/havenfield/reconcile/internal/health"
	"github.com/havenfield/reconcile/internal/lineitem"
	"github.com/havenfield/reconcile/internal/match"
	"github.com/havenfield/reconcile/internal/matching"
)

// Orchestrator owns the session lifecycle. Every mutation of a session goes
// through its transition guard; callers pass session ids, never shared state.
type Orchestrator struct {
	sessions *Store
	provider lineitem.Provider
	engine   *matching.Engine
	matches  *match.Store
	discs    *discrepancy.Store
	detector *discrepancy.Detector
	audits   *audit.Store

	mu      sync.Mutex
	running map[string]bool
}

// NewOrchestrator wires the reconciliation pipeline together.
func NewOrchestrator(
	sessions *Store,
	provider lineitem.Provider,
	engine *matching.Engine,
	matches *match.Store,
	discs *discrepancy.Store,
	detector *discrepancy.Detector,
	audits *audit.Store,
) *Orchestrator {
	return &Orchestrator{
		sessions: sessions,
		provider: provider,
		engine:   engine,
		matches:  matches,
		discs:    discs,
		detector: detector,
		audits:   audits,
		running:  make(map[string]bool),
	}
}

// RunResult is the outcome of one reconciliation run.
type RunResult struct {
	MatchesCreated int      `json:"matches_created"`
	Summary        *Summary `json:"summary"`
	Warnings       []string `json:"warnings,omitempty"`
}

// CreateSession creates a session and records the audit trail entry.
func (o *Orchestrator) CreateSession(ctx context.Context, propertyID, periodID, sessionType string) (*Session, error) {
	sess, err := o.sessions.Create(ctx, propertyID, periodID, sessionType)
	if err != nil {
		return nil, err
	}
	o.logEvent(ctx, audit.Event{
		ActorType: audit.ActorSystem,
		ActorID:   "orchestrator",
		Action:    audit.ActionSessionCreated,
		Scope:     audit.ScopeSession,
		ScopeID:   sess.ID,
		SessionID: sess.ID,
		Summary:   fmt.Sprintf("session created for property %s period %s", propertyID, periodID),
	})
	return sess, nil
}

// Run executes one reconciliation pass: snapshot the line items, run the
// enabled tiers, persist matches and discrepancies, and move the session to
// REVIEW. Re-running is allowed from VALIDATING, REVIEW and ERROR; already-
// persisted rows are updated in place, approved matches and resolved
// discrepancies survive untouched. A second run while one is in flight
// returns ErrConflict.
func (o *Orchestrator) Run(ctx context.Context, sessionID string, flags matching.TierFlags) (result *RunResult, err error) {
	if err := o.acquire(sessionID); err != nil {
		return nil, err
	}
	defer o.release(sessionID)

	sess, err := o.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == StatusMatching {
		return nil, fmt.Errorf("%w: session is MATCHING", ErrConflict)
	}
	if !sess.Status.CanTransitionTo(StatusMatching) {
		return nil, fmt.Errorf("%w: cannot reconcile a %s session", ErrInvalidTransition, sess.Status)
	}
	if err := o.setStatus(ctx, sessionID, sess.Status, StatusMatching); err != nil {
		return nil, err
	}

	// A crash mid-run leaves the persisted rows intact and parks the session
	// in ERROR, from where a retry re-enters MATCHING.
	current := StatusMatching
	defer func() {
		if r := recover(); r != nil {
			o.fail(ctx, sessionID, current, fmt.Sprintf("panic: %v", r))
			result = nil
			err = fmt.Errorf("reconciliation failed: %v", r)
		}
	}()

	snap, err := lineitem.TakeSnapshot(ctx, o.provider, sess.PropertyID, sess.PeriodID)
	if err != nil {
		o.fail(ctx, sessionID, current, err.Error())
		return nil, fmt.Errorf("snapshotting line items: %w", err)
	}

	engineResult := o.engine.Run(ctx, snap, flags)
	for _, w := range engineResult.Warnings {
		o.logEvent(ctx, audit.Event{
			ActorType: audit.ActorSystem,
			ActorID:   "orchestrator",
			Action:    audit.ActionTierFailed,
			Scope:     audit.ScopeSession,
			ScopeID:   sessionID,
			SessionID: sessionID,
			Summary:   w,
		})
	}

	created := 0
	for _, c := range engineResult.Candidates {
		changed, err := o.matches.Upsert(ctx, candidateToMatch(sessionID, c))
		if err != nil {
			o.fail(ctx, sessionID, current, err.Error())
			return nil, fmt.Errorf("persisting match: %w", err)
		}
		if changed {
			created++
		}
	}

	if err := o.setStatus(ctx, sessionID, StatusMatching, StatusValidating); err != nil {
		return nil, err
	}
	current = StatusValidating

	matchedIDs, err := o.matches.MatchedItemIDs(ctx, sessionID)
	if err != nil {
		o.fail(ctx, sessionID, current, err.Error())
		return nil, fmt.Errorf("loading matched items: %w", err)
	}
	for _, d := range o.detector.Detect(sessionID, snap, matchedIDs, engineResult.Violations) {
		if err := o.discs.Upsert(ctx, d); err != nil {
			o.fail(ctx, sessionID, current, err.Error())
			return nil, fmt.Errorf("persisting discrepancy: %w", err)
		}
	}

	if err := o.setStatus(ctx, sessionID, StatusValidating, StatusReview); err != nil {
		return nil, err
	}

	summary, err := o.sessions.Summary(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	warnings := engineResult.Warnings
	if summary.TotalMatches == 0 {
		warnings = append(warnings, health.ZeroMatchDiagnosis(snapshotCounts(snap))...)
	}

	summaryJSON, _ := json.Marshal(summary)
	o.logEvent(ctx, audit.Event{
		ActorType: audit.ActorSystem,
		ActorID:   "orchestrator",
		Action:    audit.ActionReconciliationRun,
		Scope:     audit.ScopeSession,
		ScopeID:   sessionID,
		SessionID: sessionID,
		Summary:   fmt.Sprintf("reconciliation run created %d matches", created),
		NewValue:  string(summaryJSON),
	})

	return &RunResult{MatchesCreated: created, Summary: summary, Warnings: warnings}, nil
}

// Complete freezes the session summary and closes the session.
func (o *Orchestrator) Complete(ctx context.Context, sessionID string) (*Session, error) {
	if err := o.acquire(sessionID); err != nil {
		return nil, err
	}
	defer o.release(sessionID)

	sess, err := o.sessions.Complete(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	frozen, _ := json.Marshal(sess.FrozenSummary)
	o.logEvent(ctx, audit.Event{
		ActorType: audit.ActorSystem,
		ActorID:   "orchestrator",
		Action:    audit.ActionSessionCompleted,
		Scope:     audit.ScopeSession,
		ScopeID:   sessionID,
		SessionID: sessionID,
		Summary:   "session completed",
		NewValue:  string(frozen),
	})
	return sess, nil
}

// acquire takes the in-process run lock for a session.
func (o *Orchestrator) acquire(sessionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[sessionID] {
		return ErrConflict
	}
	o.running[sessionID] = true
	return nil
}

func (o *Orchestrator) release(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, sessionID)
}

// setStatus transitions and records the change in the audit trail.
func (o *Orchestrator) setStatus(ctx context.Context, sessionID string, from, to Status) error {
	if err := o.sessions.Transition(ctx, sessionID, from, to); err != nil {
		return err
	}
	o.logEvent(ctx, audit.Event{
		ActorType:     audit.ActorSystem,
		ActorID:       "orchestrator",
		Action:        audit.ActionStatusChanged,
		Scope:         audit.ScopeSession,
		ScopeID:       sessionID,
		SessionID:     sessionID,
		Summary:       fmt.Sprintf("status %s -> %s", from, to),
		PreviousValue: string(from),
		NewValue:      string(to),
	})
	return nil
}

// fail parks the session in ERROR. Already-persisted matches and
// discrepancies stay queryable.
func (o *Orchestrator) fail(ctx context.Context, sessionID string, from Status, reason string) {
	if err := o.setStatus(ctx, sessionID, from, StatusError); err != nil {
		log.Printf("session: marking %s as ERROR: %v", sessionID, err)
	}
	o.logEvent(ctx, audit.Event{
		ActorType: audit.ActorSystem,
		ActorID:   "orchestrator",
		Action:    audit.ActionStatusChanged,
		Scope:     audit.ScopeSession,
		ScopeID:   sessionID,
		SessionID: sessionID,
		Summary:   "reconciliation failed: " + reason,
	})
}

// logEvent appends to the audit trail. The trail never blocks the pipeline.
func (o *Orchestrator) logEvent(ctx context.Context, event audit.Event) {
	if err := o.audits.Log(ctx, event); err != nil {
		log.Printf("session: audit log: %v", err)
	}
}

func candidateToMatch(sessionID string, c matching.Candidate) match.Match {
	var related []string
	for _, it := range c.Related {
		related = append(related, it.ID)
	}
	return match.Match{
		SessionID:      sessionID,
		PairKey:        c.PairKey(),
		MatchType:      string(c.Tier),
		TierPriority:   c.Tier.Priority(),
		Confidence:     c.Score.Value,
		Evidence:       c.Score.Evidence,
		LeftItemID:     c.Left.ID,
		RightItemID:    c.Right.ID,
		RelatedItemIDs: related,
	}
}

func snapshotCounts(snap lineitem.Snapshot) map[lineitem.DocumentType]int {
	counts := make(map[lineitem.DocumentType]int, len(lineitem.AllDocumentTypes))
	for _, dt := range lineitem.AllDocumentTypes {
		counts[dt] = len(snap[dt])
	}
	return counts
}
