package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Decision kinds written to the decision log.
const (
	DecisionAssignment   = "assignment"
	DecisionEscalation   = "escalation"
	DecisionNotification = "notification"
	DecisionApplied      = "applied"
	DecisionSuggestion   = "suggestion"
)

// Decision is one entry in the decision log: what the engine concluded about
// an issue and how it was delivered.
type Decision struct {
	ID           int64           `json:"id"`
	IssueID      string          `json:"issue_id,omitempty"`
	Kind         string          `json:"kind"`
	Summary      string          `json:"summary"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	DeliveredVia string          `json:"delivered_via,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// LogDecision inserts a decision entry. A zero CreatedAt is stamped with the
// current time.
func (d *DB) LogDecision(dec *Decision) error {
	if dec.CreatedAt.IsZero() {
		dec.CreatedAt = time.Now()
	}
	var payload sql.NullString
	if len(dec.Payload) > 0 {
		payload = sql.NullString{String: string(dec.Payload), Valid: true}
	}

	res, err := d.db.Exec(`
		INSERT INTO decision_log (issue_id, kind, summary, payload, delivered_via, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		nullStr(dec.IssueID), dec.Kind, dec.Summary, payload,
		nullStr(dec.DeliveredVia), formatTime(dec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("logging decision: %w", err)
	}
	dec.ID, _ = res.LastInsertId()
	return nil
}

// ListDecisions returns decision entries newest first. An empty issueID
// lists entries for every issue; limit <= 0 returns all.
func (d *DB) ListDecisions(issueID string, limit int) ([]Decision, error) {
	query := `SELECT id, issue_id, kind, summary, payload, delivered_via, created_at FROM decision_log`
	var args []any
	if issueID != "" {
		query += ` WHERE issue_id = ?`
		args = append(args, issueID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var dec Decision
		var issue, payload, via sql.NullString
		var createdAt string
		if err := rows.Scan(&dec.ID, &issue, &dec.Kind, &dec.Summary, &payload, &via, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		dec.IssueID = issue.String
		if payload.Valid {
			dec.Payload = json.RawMessage(payload.String)
		}
		dec.DeliveredVia = via.String
		dec.CreatedAt = parseTime(createdAt)
		out = append(out, dec)
	}
	return out, rows.Err()
}
