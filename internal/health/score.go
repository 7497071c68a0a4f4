package health

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/havenfield/reconcile/internal/config"
	"github.com/havenfield/reconcile/internal/db"
	"github.com/havenfield/reconcile/internal/lineitem"
)

// severityPenalty is how much each open discrepancy subtracts from the
// discrepancy component, by severity.
var severityPenalty = map[string]float64{
	"critical": 0.25,
	"high":     0.15,
	"medium":   0.05,
	"low":      0.02,
}

// Score is a 0-100 reconciliation health value with its component breakdown.
type Score struct {
	Value             int            `json:"value"`
	SessionID         string         `json:"session_id,omitempty"`
	ApprovedRatio     float64        `json:"approved_ratio"`
	OpenBySeverity    map[string]int `json:"open_discrepancies_by_severity"`
	DocumentsPresent  int            `json:"documents_present"`
	DocumentsExpected int            `json:"documents_expected"`
}

// Scorer computes health scores from the live match and discrepancy rows of
// the scope's most recent session.
type Scorer struct {
	db  *db.DB
	cfg config.HealthConfig
}

// NewScorer creates a Scorer with the given blend weights.
func NewScorer(database *db.DB, cfg config.HealthConfig) *Scorer {
	return &Scorer{db: database, cfg: cfg}
}

// ScoreFor blends three monotonic components: the approved-match ratio (up
// when a pending match is approved), an open-discrepancy penalty (up when one
// is resolved, down when one appears), and document coverage.
func (s *Scorer) ScoreFor(ctx context.Context, propertyID, periodID string) (*Score, error) {
	score := &Score{
		OpenBySeverity:    make(map[string]int),
		DocumentsExpected: len(lineitem.AllDocumentTypes),
	}

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT document_type) FROM line_items WHERE property_id = ? AND period_id = ?",
		propertyID, periodID).Scan(&score.DocumentsPresent)
	if err != nil {
		return nil, fmt.Errorf("counting document coverage: %w", err)
	}

	sessionID, err := s.latestSessionID(ctx, propertyID, periodID)
	if err != nil {
		return nil, err
	}
	score.SessionID = sessionID

	approved, total := 0, 0
	penalty := 0.0
	if sessionID != "" {
		rows, err := s.db.QueryContext(ctx,
			"SELECT approval_state, COUNT(*) FROM matches WHERE session_id = ? GROUP BY approval_state",
			sessionID)
		if err != nil {
			return nil, fmt.Errorf("aggregating matches: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var state string
			var n int
			if err := rows.Scan(&state, &n); err != nil {
				return nil, fmt.Errorf("scanning match counts: %w", err)
			}
			total += n
			if state == "approved" {
				approved += n
			}
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}

		drows, err := s.db.QueryContext(ctx,
			"SELECT severity, COUNT(*) FROM discrepancies WHERE session_id = ? AND resolution_state = 'open' GROUP BY severity",
			sessionID)
		if err != nil {
			return nil, fmt.Errorf("aggregating discrepancies: %w", err)
		}
		defer drows.Close()
		for drows.Next() {
			var severity string
			var n int
			if err := drows.Scan(&severity, &n); err != nil {
				return nil, fmt.Errorf("scanning discrepancy counts: %w", err)
			}
			score.OpenBySeverity[severity] = n
			penalty += severityPenalty[severity] * float64(n)
		}
		if err := drows.Err(); err != nil {
			return nil, err
		}
	}

	if total > 0 {
		score.ApprovedRatio = float64(approved) / float64(total)
	}
	discrepancyComponent := math.Max(0, 1-penalty)
	coverage := float64(score.DocumentsPresent) / float64(score.DocumentsExpected)

	blended := s.cfg.MatchWeight*score.ApprovedRatio +
		s.cfg.DiscrepancyWeight*discrepancyComponent +
		s.cfg.CoverageWeight*coverage
	score.Value = int(math.Round(math.Max(0, math.Min(1, blended)) * 100))
	return score, nil
}

// latestSessionID returns the most recent session for the scope, or "" when
// none exists yet.
func (s *Scorer) latestSessionID(ctx context.Context, propertyID, periodID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM sessions WHERE property_id = ? AND period_id = ?
		ORDER BY created_at DESC, id LIMIT 1`,
		propertyID, periodID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("finding latest session: %w", err)
	}
	return id, nil
}
