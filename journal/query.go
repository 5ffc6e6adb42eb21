package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// GetRecommendation returns a single recommendation by ID.
func (j *SQLite) GetRecommendation(recID string) (Recommendation, error) {
	var r Recommendation
	var action string

	row := j.db.QueryRow(`
		SELECT id, source_id, symbol, action, confidence, expected_profit_pct, risk_level, time_horizon, price, created_at
		FROM recommendations
		WHERE id = ?`, recID)

	err := row.Scan(&r.ID, &r.SourceID, &r.Symbol, &action, &r.Confidence,
		&r.ExpectedProfitPct, &r.RiskLevel, &r.TimeHorizon, &r.Price, &r.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Recommendation{}, fmt.Errorf("recommendation %q not found", recID)
		}
		return Recommendation{}, err
	}
	r.Action = RecommendedAction(action)
	return r, nil
}

// ListActionResultsByRecommendation returns the audit trail for one
// recommendation, oldest first. The payload of each row is self-describing
// JSON suitable for replay without re-running the evaluator.
func (j *SQLite) ListActionResultsByRecommendation(recID string) ([]ActionResult, error) {
	rows, err := j.db.Query(`
		SELECT id, recommendation_id, action_type, success, message, payload, created_at
		FROM action_results
		WHERE recommendation_id = ?
		ORDER BY created_at ASC`, recID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActionResult
	for rows.Next() {
		var r ActionResult
		if err := rows.Scan(&r.ID, &r.RecommendationID, &r.ActionType, &r.Success,
			&r.Message, &r.Payload, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListActionResultsBetween returns all audit rows created within [start, end).
func (j *SQLite) ListActionResultsBetween(start, end time.Time) ([]ActionResult, error) {
	rows, err := j.db.Query(`
		SELECT id, recommendation_id, action_type, success, message, payload, created_at
		FROM action_results
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActionResult
	for rows.Next() {
		var r ActionResult
		if err := rows.Scan(&r.ID, &r.RecommendationID, &r.ActionType, &r.Success,
			&r.Message, &r.Payload, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
