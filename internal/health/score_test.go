package health

import (
	"context"
	"testing"

	"github.com/havenfield/reconcile/internal/config"
	"github.com/havenfield/reconcile/internal/db"
)

func setupScorer(t *testing.T) (*Scorer, *db.DB) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewScorer(database, config.DefaultConfig().Health), database
}

func seedSession(t *testing.T, database *db.DB) {
	t.Helper()
	mustExec := func(query string, args ...any) {
		t.Helper()
		if _, err := database.Exec(query, args...); err != nil {
			t.Fatal(err)
		}
	}

	mustExec(`INSERT INTO sessions (id, property_id, period_id, status) VALUES ('sess-1', 'prop-1', '2025-Q4', 'REVIEW')`)
	for i, doc := range []string{"balance_sheet", "income_statement", "cash_flow"} {
		mustExec(`INSERT INTO line_items (id, property_id, period_id, document_type, account_code, account_name, amount)
			VALUES (?, 'prop-1', '2025-Q4', ?, '1010', 'Cash', 100)`, "li-"+string(rune('a'+i)), doc)
	}
	mustExec(`INSERT INTO matches (id, session_id, pair_key, match_type, tier_priority, confidence, left_item_id, right_item_id, approval_state)
		VALUES ('m-1', 'sess-1', 'li-a+li-b', 'exact', 1, 100, 'li-a', 'li-b', 'pending')`)
	mustExec(`INSERT INTO matches (id, session_id, pair_key, match_type, tier_priority, confidence, left_item_id, right_item_id, approval_state)
		VALUES ('m-2', 'sess-1', 'li-a+li-c', 'fuzzy', 2, 80, 'li-a', 'li-c', 'approved')`)
	mustExec(`INSERT INTO discrepancies (id, session_id, item_key, left_item_id, severity, resolution_state)
		VALUES ('d-1', 'sess-1', 'item:li-c', 'li-c', 'medium', 'open')`)
}

func scoreValue(t *testing.T, scorer *Scorer) int {
	t.Helper()
	score, err := scorer.ScoreFor(context.Background(), "prop-1", "2025-Q4")
	if err != nil {
		t.Fatalf("ScoreFor: %v", err)
	}
	if score.Value < 0 || score.Value > 100 {
		t.Fatalf("score %d out of range", score.Value)
	}
	return score.Value
}

func TestScoreEmptyScope(t *testing.T) {
	scorer, _ := setupScorer(t)

	score, err := scorer.ScoreFor(context.Background(), "prop-1", "2025-Q4")
	if err != nil {
		t.Fatalf("ScoreFor: %v", err)
	}
	// No matches, no discrepancies, no coverage: only the clean-discrepancy
	// component contributes.
	if score.Value != 30 {
		t.Errorf("Value = %d, want 30", score.Value)
	}
	if score.SessionID != "" {
		t.Errorf("SessionID = %q, want empty", score.SessionID)
	}
}

func TestScoreBreakdown(t *testing.T) {
	scorer, database := setupScorer(t)
	seedSession(t, database)

	score, err := scorer.ScoreFor(context.Background(), "prop-1", "2025-Q4")
	if err != nil {
		t.Fatalf("ScoreFor: %v", err)
	}
	if score.SessionID != "sess-1" {
		t.Errorf("SessionID = %q", score.SessionID)
	}
	if score.ApprovedRatio != 0.5 {
		t.Errorf("ApprovedRatio = %v, want 0.5", score.ApprovedRatio)
	}
	if score.OpenBySeverity["medium"] != 1 {
		t.Errorf("OpenBySeverity = %v", score.OpenBySeverity)
	}
	if score.DocumentsPresent != 3 {
		t.Errorf("DocumentsPresent = %d, want 3", score.DocumentsPresent)
	}
	// 0.5*0.5 + 0.3*0.95 + 0.2*0.6 = 0.655
	if score.Value != 66 {
		t.Errorf("Value = %d, want 66", score.Value)
	}
}

func TestApprovingMatchNeverDecreasesScore(t *testing.T) {
	scorer, database := setupScorer(t)
	seedSession(t, database)

	before := scoreValue(t, scorer)
	if _, err := database.Exec("UPDATE matches SET approval_state = 'approved' WHERE id = 'm-1'"); err != nil {
		t.Fatal(err)
	}
	after := scoreValue(t, scorer)

	if after < before {
		t.Errorf("score dropped from %d to %d after approving a match", before, after)
	}
}

func TestResolvingDiscrepancyNeverDecreasesScore(t *testing.T) {
	scorer, database := setupScorer(t)
	seedSession(t, database)

	before := scoreValue(t, scorer)
	if _, err := database.Exec("UPDATE discrepancies SET resolution_state = 'resolved' WHERE id = 'd-1'"); err != nil {
		t.Fatal(err)
	}
	after := scoreValue(t, scorer)

	if after < before {
		t.Errorf("score dropped from %d to %d after resolving a discrepancy", before, after)
	}
}

func TestOpenCriticalDiscrepancyNeverIncreasesScore(t *testing.T) {
	scorer, database := setupScorer(t)
	seedSession(t, database)

	before := scoreValue(t, scorer)
	if _, err := database.Exec(`INSERT INTO discrepancies (id, session_id, item_key, left_item_id, severity, resolution_state)
		VALUES ('d-2', 'sess-1', 'item:li-a', 'li-a', 'critical', 'open')`); err != nil {
		t.Fatal(err)
	}
	after := scoreValue(t, scorer)

	if after > before {
		t.Errorf("score rose from %d to %d after an unresolved critical discrepancy", before, after)
	}
}

func TestHeavyPenaltyFloorsAtZeroComponent(t *testing.T) {
	scorer, database := setupScorer(t)
	seedSession(t, database)

	for i := 0; i < 6; i++ {
		if _, err := database.Exec(`INSERT INTO discrepancies (id, session_id, item_key, left_item_id, severity, resolution_state)
			VALUES (?, 'sess-1', ?, 'li-a', 'critical', 'open')`,
			"d-crit-"+string(rune('0'+i)), "item:crit-"+string(rune('0'+i))); err != nil {
			t.Fatal(err)
		}
	}

	score := scoreValue(t, scorer)
	// 0.5*0.5 + 0.3*0 + 0.2*0.6 = 0.37
	if score != 37 {
		t.Errorf("Value = %d, want 37", score)
	}
}
