package review

import (
	"context"
	"errors"
	"testing"

	"github.com/havenfield/reconcile/internal/audit"
	"github.com/havenfield/reconcile/internal/db"
	"github.com/havenfield/reconcile/internal/discrepancy"
	"github.com/havenfield/reconcile/internal/match"
	"github.com/havenfield/reconcile/internal/session"
)

type testEnv struct {
	db       *db.DB
	svc      *Service
	sessions *session.Store
	matches  *match.Store
	discs    *discrepancy.Store
	audits   *audit.Store

	sessionID     string
	matchID       string
	discrepancyID string
}

// setupService seeds a session in REVIEW holding one pending match and one
// open discrepancy.
func setupService(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	env := &testEnv{
		db:       database,
		sessions: session.NewStore(database),
		matches:  match.NewStore(database),
		discs:    discrepancy.NewStore(database),
		audits:   audit.NewStore(database),
	}
	env.svc = NewService(database, env.sessions, env.matches, env.discs, env.audits)

	ctx := context.Background()
	sess, err := env.sessions.Create(ctx, "prop-1", "2025-Q4", "full")
	if err != nil {
		t.Fatal(err)
	}
	env.sessionID = sess.ID
	for _, step := range []struct{ from, to session.Status }{
		{session.StatusCreated, session.StatusMatching},
		{session.StatusMatching, session.StatusValidating},
		{session.StatusValidating, session.StatusReview},
	} {
		if err := env.sessions.Transition(ctx, sess.ID, step.from, step.to); err != nil {
			t.Fatal(err)
		}
	}

	for _, id := range []string{"li-1", "li-2", "li-3"} {
		if _, err := database.Exec(
			`INSERT INTO line_items (id, property_id, period_id, document_type, account_code, account_name, amount)
			 VALUES (?, 'prop-1', '2025-Q4', 'balance_sheet', '1010', 'Cash', 100)`, id,
		); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := env.matches.Upsert(ctx, match.Match{
		SessionID:    sess.ID,
		PairKey:      "li-1+li-2",
		MatchType:    "exact",
		TierPriority: 1,
		Confidence:   100,
		Evidence:     []string{"amounts agree"},
		LeftItemID:   "li-1",
		RightItemID:  "li-2",
	}); err != nil {
		t.Fatal(err)
	}
	matches, _ := env.matches.List(ctx, match.ListFilter{SessionID: sess.ID})
	env.matchID = matches[0].ID

	if err := env.discs.Upsert(ctx, discrepancy.Discrepancy{
		SessionID:       sess.ID,
		ItemKey:         "item:li-3",
		LeftItemID:      "li-3",
		Severity:        discrepancy.SeverityHigh,
		Difference:      4000,
		PercentVariance: 7.4,
		Description:     "cash disagrees across documents",
	}); err != nil {
		t.Fatal(err)
	}
	discs, _ := env.discs.List(ctx, discrepancy.ListFilter{SessionID: sess.ID})
	env.discrepancyID = discs[0].ID

	return env
}

func TestApprove(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	m, err := env.svc.Approve(ctx, env.matchID, "alex")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if m.ApprovalState != match.StateApproved {
		t.Errorf("ApprovalState = %q, want approved", m.ApprovalState)
	}

	events, err := env.audits.Query(ctx, audit.QueryFilter{
		ScopeID: env.matchID,
		Action:  audit.ActionMatchApproved,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].ActorID != "alex" {
		t.Errorf("unexpected audit events: %+v", events)
	}

	summary, err := env.sessions.Summary(ctx, env.sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if summary.MatchesByApproval["approved"] != 1 {
		t.Errorf("summary counters must reflect the approval: %v", summary.MatchesByApproval)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	env := setupService(t)

	_, err := env.svc.Reject(context.Background(), env.matchID, "alex", "")
	if !errors.Is(err, ErrReasonRequired) {
		t.Errorf("expected ErrReasonRequired, got %v", err)
	}
}

func TestRejectRecordsReason(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	m, err := env.svc.Reject(ctx, env.matchID, "alex", "amounts come from different accounts")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if m.ApprovalState != match.StateRejected {
		t.Errorf("ApprovalState = %q, want rejected", m.ApprovalState)
	}
	if m.RejectionReason != "amounts come from different accounts" {
		t.Errorf("RejectionReason = %q", m.RejectionReason)
	}

	events, _ := env.audits.Query(ctx, audit.QueryFilter{
		ScopeID: env.matchID,
		Action:  audit.ActionMatchRejected,
	})
	if len(events) != 1 {
		t.Errorf("expected one match_rejected audit event, got %d", len(events))
	}
}

func TestResolve(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	corrected := 54000.0
	d, err := env.svc.Resolve(ctx, env.discrepancyID, "alex", "restated after bank confirmation", &corrected)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.ResolutionState != discrepancy.StateResolved {
		t.Errorf("ResolutionState = %q, want resolved", d.ResolutionState)
	}
	if d.CorrectedValue == nil || *d.CorrectedValue != corrected {
		t.Errorf("CorrectedValue = %v, want %v", d.CorrectedValue, corrected)
	}

	events, _ := env.audits.Query(ctx, audit.QueryFilter{
		ScopeID: env.discrepancyID,
		Action:  audit.ActionDiscrepancyResolved,
	})
	if len(events) != 1 {
		t.Errorf("expected one discrepancy_resolved audit event, got %d", len(events))
	}
}

func TestResolveIsTerminal(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	if _, err := env.svc.Resolve(ctx, env.discrepancyID, "alex", "fixed", nil); err != nil {
		t.Fatal(err)
	}
	_, err := env.svc.Resolve(ctx, env.discrepancyID, "alex", "fixed again", nil)
	if !errors.Is(err, discrepancy.ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved, got %v", err)
	}
}

func TestCompletedSessionRejectsReview(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	if _, err := env.sessions.Complete(ctx, env.sessionID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if _, err := env.svc.Approve(ctx, env.matchID, "alex"); !errors.Is(err, ErrSessionCompleted) {
		t.Errorf("Approve on completed session: got %v", err)
	}
	if _, err := env.svc.Reject(ctx, env.matchID, "alex", "late"); !errors.Is(err, ErrSessionCompleted) {
		t.Errorf("Reject on completed session: got %v", err)
	}
	if _, err := env.svc.Resolve(ctx, env.discrepancyID, "alex", "late", nil); !errors.Is(err, ErrSessionCompleted) {
		t.Errorf("Resolve on completed session: got %v", err)
	}
}

func TestReviewBlockedDuringReconciliation(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	// A re-run takes the session back to MATCHING; review decisions must
	// wait until it lands in REVIEW again.
	if err := env.sessions.Transition(ctx, env.sessionID, session.StatusReview, session.StatusMatching); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	if _, err := env.svc.Approve(ctx, env.matchID, "alex"); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("Approve while MATCHING: got %v, want ErrSessionBusy", err)
	}
	if _, err := env.svc.Reject(ctx, env.matchID, "alex", "too early"); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("Reject while MATCHING: got %v, want ErrSessionBusy", err)
	}
	if _, err := env.svc.Resolve(ctx, env.discrepancyID, "alex", "too early", nil); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("Resolve while MATCHING: got %v, want ErrSessionBusy", err)
	}

	if err := env.sessions.Transition(ctx, env.sessionID, session.StatusMatching, session.StatusValidating); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if _, err := env.svc.Approve(ctx, env.matchID, "alex"); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("Approve while VALIDATING: got %v, want ErrSessionBusy", err)
	}

	// Back in REVIEW the decision goes through.
	if err := env.sessions.Transition(ctx, env.sessionID, session.StatusValidating, session.StatusReview); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	m, err := env.svc.Approve(ctx, env.matchID, "alex")
	if err != nil {
		t.Fatalf("Approve after REVIEW: %v", err)
	}
	if m.ApprovalState != match.StateApproved {
		t.Errorf("ApprovalState = %q, want approved", m.ApprovalState)
	}
}

func TestUnknownIDs(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	if _, err := env.svc.Approve(ctx, "nope", "alex"); !errors.Is(err, match.ErrNotFound) {
		t.Errorf("expected match.ErrNotFound, got %v", err)
	}
	if _, err := env.svc.Resolve(ctx, "nope", "alex", "notes", nil); !errors.Is(err, discrepancy.ErrNotFound) {
		t.Errorf("expected discrepancy.ErrNotFound, got %v", err)
	}
}
