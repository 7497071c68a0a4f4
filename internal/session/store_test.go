package session

import (
	"context"
	"errors"
	"testing"

	"github.com/havenfield/reconcile/internal/db"
)

func setupStore(t *testing.T) (*Store, *db.DB) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database), database
}

func TestCreateAndGet(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, "prop-1", "2025-Q4", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.Status != StatusCreated {
		t.Errorf("Status = %q, want CREATED", sess.Status)
	}
	if sess.SessionType != "full" {
		t.Errorf("SessionType = %q, want default full", sess.SessionType)
	}

	got, err := store.GetByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.PropertyID != "prop-1" || got.PeriodID != "2025-Q4" {
		t.Errorf("unexpected session: %+v", got)
	}
}

func TestCreateRequiresScope(t *testing.T) {
	store, _ := setupStore(t)

	if _, err := store.Create(context.Background(), "", "2025-Q4", "full"); err == nil {
		t.Error("expected error for missing property_id")
	}
}

func TestGetByIDNotFound(t *testing.T) {
	store, _ := setupStore(t)

	_, err := store.GetByID(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionFollowsStateMachine(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	sess, _ := store.Create(ctx, "prop-1", "2025-Q4", "full")

	if err := store.Transition(ctx, sess.ID, StatusCreated, StatusMatching); err != nil {
		t.Fatalf("CREATED -> MATCHING: %v", err)
	}

	err := store.Transition(ctx, sess.ID, StatusMatching, StatusReview)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("MATCHING -> REVIEW should be invalid, got %v", err)
	}

	// Guarded update: the session is MATCHING, not CREATED.
	err = store.Transition(ctx, sess.ID, StatusCreated, StatusMatching)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("stale transition should fail, got %v", err)
	}
}

func TestStatusTable(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusCreated, StatusMatching, true},
		{StatusMatching, StatusValidating, true},
		{StatusMatching, StatusError, true},
		{StatusValidating, StatusReview, true},
		{StatusValidating, StatusMatching, true},
		{StatusReview, StatusCompleted, true},
		{StatusReview, StatusMatching, true},
		{StatusError, StatusMatching, true},
		{StatusCreated, StatusReview, false},
		{StatusCompleted, StatusMatching, false},
		{StatusCreated, StatusCompleted, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.ok {
			t.Errorf("%s -> %s = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
	if !StatusCompleted.Terminal() {
		t.Error("COMPLETED must be terminal")
	}
	if StatusError.Terminal() {
		t.Error("ERROR must not be terminal")
	}
}

func TestSummaryAggregatesLiveRows(t *testing.T) {
	store, database := setupStore(t)
	ctx := context.Background()
	sess, _ := store.Create(ctx, "prop-1", "2025-Q4", "full")

	for _, id := range []string{"li-1", "li-2", "li-3"} {
		if _, err := database.Exec(
			`INSERT INTO line_items (id, property_id, period_id, document_type, account_code, account_name, amount)
			 VALUES (?, 'prop-1', '2025-Q4', 'balance_sheet', '1010', 'Cash', 100)`, id,
		); err != nil {
			t.Fatal(err)
		}
	}
	mustExec := func(query string, args ...any) {
		t.Helper()
		if _, err := database.Exec(query, args...); err != nil {
			t.Fatal(err)
		}
	}
	mustExec(`INSERT INTO matches (id, session_id, pair_key, match_type, tier_priority, confidence, left_item_id, right_item_id, approval_state)
		VALUES ('m-1', ?, 'li-1+li-2', 'exact', 1, 100, 'li-1', 'li-2', 'approved')`, sess.ID)
	mustExec(`INSERT INTO matches (id, session_id, pair_key, match_type, tier_priority, confidence, left_item_id, right_item_id, approval_state)
		VALUES ('m-2', ?, 'li-1+li-3', 'fuzzy', 2, 75, 'li-1', 'li-3', 'pending')`, sess.ID)
	mustExec(`INSERT INTO discrepancies (id, session_id, item_key, left_item_id, severity, resolution_state)
		VALUES ('d-1', ?, 'item:li-3', 'li-3', 'high', 'open')`, sess.ID)
	mustExec(`INSERT INTO discrepancies (id, session_id, item_key, left_item_id, severity, resolution_state)
		VALUES ('d-2', ?, 'item:li-2', 'li-2', 'low', 'resolved')`, sess.ID)

	summary, err := store.Summary(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TotalMatches != 2 {
		t.Errorf("TotalMatches = %d, want 2", summary.TotalMatches)
	}
	if summary.MatchesByTier["exact"] != 1 || summary.MatchesByTier["fuzzy"] != 1 {
		t.Errorf("MatchesByTier = %v", summary.MatchesByTier)
	}
	if summary.MatchesByApproval["approved"] != 1 || summary.MatchesByApproval["pending"] != 1 {
		t.Errorf("MatchesByApproval = %v", summary.MatchesByApproval)
	}
	if summary.TotalDiscrepancies != 2 {
		t.Errorf("TotalDiscrepancies = %d, want 2", summary.TotalDiscrepancies)
	}
	if summary.OpenDiscrepancies != 1 {
		t.Errorf("OpenDiscrepancies = %d, want 1", summary.OpenDiscrepancies)
	}
	if summary.BySeverity["high"] != 1 {
		t.Errorf("BySeverity = %v", summary.BySeverity)
	}
}

func TestCompleteFreezesSummary(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	sess, _ := store.Create(ctx, "prop-1", "2025-Q4", "full")

	// Not in REVIEW yet.
	if _, err := store.Complete(ctx, sess.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	for _, step := range []struct{ from, to Status }{
		{StatusCreated, StatusMatching},
		{StatusMatching, StatusValidating},
		{StatusValidating, StatusReview},
	} {
		if err := store.Transition(ctx, sess.ID, step.from, step.to); err != nil {
			t.Fatal(err)
		}
	}

	done, err := store.Complete(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Errorf("Status = %q, want COMPLETED", done.Status)
	}
	if done.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if done.FrozenSummary == nil {
		t.Fatal("FrozenSummary not set")
	}

	got, _ := store.GetByID(ctx, sess.ID)
	if got.FrozenSummary == nil {
		t.Error("frozen summary not persisted")
	}

	if _, err := store.Complete(ctx, sess.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("completing twice should fail, got %v", err)
	}
}

func TestListFiltersByScopeAndStatus(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	a, _ := store.Create(ctx, "prop-1", "2025-Q4", "full")
	store.Create(ctx, "prop-2", "2025-Q4", "full")
	if err := store.Transition(ctx, a.ID, StatusCreated, StatusMatching); err != nil {
		t.Fatal(err)
	}

	byProp, err := store.List(ctx, ListFilter{PropertyID: "prop-1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(byProp) != 1 || byProp[0].ID != a.ID {
		t.Errorf("unexpected property filter result: %+v", byProp)
	}

	byStatus, err := store.List(ctx, ListFilter{Status: StatusCreated})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(byStatus) != 1 || byStatus[0].PropertyID != "prop-2" {
		t.Errorf("unexpected status filter result: %+v", byStatus)
	}
}
