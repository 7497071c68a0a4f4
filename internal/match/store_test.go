package match

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

	// Matches reference a session and line items.
	if _, err := database.Exec(
		`INSERT INTO sessions (id, property_id, period_id) VALUES ('sess-1', 'prop-1', '2025-Q4')`,
	); err != nil {
		t.Fatalf("inserting session fixture: %v", err)
	}
	for _, id := range []string{"li-1", "li-2", "li-3"} {
		if _, err := database.Exec(
			`INSERT INTO line_items (id, property_id, period_id, document_type, account_code, account_name, amount)
			 VALUES (?, 'prop-1', '2025-Q4', 'balance_sheet', '1010', 'Cash', 100)`, id,
		); err != nil {
			t.Fatalf("inserting line item fixture: %v", err)
		}
	}

	return NewStore(database), database
}

func pendingMatch(pairKey, matchType string, priority, conf int) Match {
	return Match{
		SessionID:    "sess-1",
		PairKey:      pairKey,
		MatchType:    matchType,
		TierPriority: priority,
		Confidence:   conf,
		Evidence:     []string{"test evidence"},
		LeftItemID:   "li-1",
		RightItemID:  "li-2",
	}
}

func TestUpsertInsertAndGet(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	changed, err := store.Upsert(ctx, pendingMatch("li-1+li-2", "exact", 1, 100))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !changed {
		t.Error("expected insert to report a change")
	}

	matches, err := store.List(ctx, ListFilter{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	m := matches[0]
	if m.ApprovalState != StatePending {
		t.Errorf("ApprovalState = %q, want pending", m.ApprovalState)
	}
	if len(m.Evidence) != 1 {
		t.Errorf("Evidence = %v, want 1 string", m.Evidence)
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		changed, err := store.Upsert(ctx, pendingMatch("li-1+li-2", "fuzzy", 2, 85))
		if err != nil {
			t.Fatalf("Upsert #%d: %v", i, err)
		}
		if want := i == 0; changed != want {
			t.Errorf("Upsert #%d changed = %v, want %v", i, changed, want)
		}
	}

	matches, err := store.List(ctx, ListFilter{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("expected 1 match after re-runs, got %d", len(matches))
	}
}

func TestUpsertReportsContentChanges(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, pendingMatch("li-1+li-2", "fuzzy", 2, 85)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// Same tier, different confidence: the row is refreshed and reported.
	changed, err := store.Upsert(ctx, pendingMatch("li-1+li-2", "fuzzy", 2, 90))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !changed {
		t.Error("expected a confidence change to report true")
	}

	matches, _ := store.List(ctx, ListFilter{SessionID: "sess-1"})
	if matches[0].Confidence != 90 {
		t.Errorf("Confidence = %d, want 90", matches[0].Confidence)
	}
}

func TestUpsertHigherPriorityTierWins(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, pendingMatch("li-1+li-2", "fuzzy", 2, 85)); err != nil {
		t.Fatalf("Upsert fuzzy: %v", err)
	}
	if _, err := store.Upsert(ctx, pendingMatch("li-1+li-2", "exact", 1, 100)); err != nil {
		t.Fatalf("Upsert exact: %v", err)
	}

	matches, _ := store.List(ctx, ListFilter{SessionID: "sess-1"})
	if len(matches) != 1 || matches[0].MatchType != "exact" {
		t.Fatalf("expected single exact match, got %+v", matches)
	}

	// A later tier must not overwrite the earlier one.
	if _, err := store.Upsert(ctx, pendingMatch("li-1+li-2", "inferred", 4, 70)); err != nil {
		t.Fatalf("Upsert inferred: %v", err)
	}
	matches, _ = store.List(ctx, ListFilter{SessionID: "sess-1"})
	if matches[0].MatchType != "exact" {
		t.Errorf("match type = %q, want exact to survive", matches[0].MatchType)
	}
}

func TestUpsertPreservesApprovedMatches(t *testing.T) {
	store, database := setupStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, pendingMatch("li-1+li-2", "fuzzy", 2, 82)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	matches, _ := store.List(ctx, ListFilter{SessionID: "sess-1"})
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetApproval(ctx, tx, matches[0].ID, StateApproved, ""); err != nil {
		t.Fatalf("SetApproval: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	// A re-run upsert, even from a better tier, must not touch it.
	if _, err := store.Upsert(ctx, pendingMatch("li-1+li-2", "exact", 1, 100)); err != nil {
		t.Fatalf("Upsert after approval: %v", err)
	}

	matches, _ = store.List(ctx, ListFilter{SessionID: "sess-1"})
	if matches[0].ApprovalState != StateApproved {
		t.Errorf("ApprovalState = %q, want approved to survive re-run", matches[0].ApprovalState)
	}
	if matches[0].MatchType != "fuzzy" {
		t.Errorf("MatchType = %q, approved match content must not change", matches[0].MatchType)
	}
}

func TestListFilters(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, pendingMatch("li-1+li-2", "exact", 1, 100)); err != nil {
		t.Fatal(err)
	}
	m := pendingMatch("li-1+li-3", "fuzzy", 2, 75)
	m.RightItemID = "li-3"
	if _, err := store.Upsert(ctx, m); err != nil {
		t.Fatal(err)
	}

	fuzzyOnly, err := store.List(ctx, ListFilter{SessionID: "sess-1", MatchType: "fuzzy"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(fuzzyOnly) != 1 || fuzzyOnly[0].MatchType != "fuzzy" {
		t.Errorf("unexpected filter result: %+v", fuzzyOnly)
	}

	pending, err := store.List(ctx, ListFilter{SessionID: "sess-1", ApprovalState: StatePending})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 pending matches, got %d", len(pending))
	}
}

func TestGetByIDNotFound(t *testing.T) {
	store, _ := setupStore(t)

	_, err := store.GetByID(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMatchedItemIDsSkipsRejected(t *testing.T) {
	store, database := setupStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, pendingMatch("li-1+li-2", "exact", 1, 100)); err != nil {
		t.Fatal(err)
	}
	m := pendingMatch("li-1+li-3", "fuzzy", 2, 75)
	m.RightItemID = "li-3"
	if _, err := store.Upsert(ctx, m); err != nil {
		t.Fatal(err)
	}

	matches, _ := store.List(ctx, ListFilter{SessionID: "sess-1", MatchType: "fuzzy"})
	tx, _ := database.BeginTx(ctx, nil)
	if err := store.SetApproval(ctx, tx, matches[0].ID, StateRejected, "wrong pairing"); err != nil {
		t.Fatalf("SetApproval: %v", err)
	}
	tx.Commit()

	ids, err := store.MatchedItemIDs(ctx, "sess-1")
	if err != nil {
		t.Fatalf("MatchedItemIDs: %v", err)
	}
	if !ids["li-1"] || !ids["li-2"] {
		t.Error("expected li-1 and li-2 from the exact match")
	}
	if ids["li-3"] {
		t.Error("rejected match items must not count as matched")
	}
}
