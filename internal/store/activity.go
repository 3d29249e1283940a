package store

import (
	"fmt"
	"time"

	"github.com/jacklau/dispatch/internal/model"
)

// Activity kinds recorded against a user.
const (
	ActivityComment    = "comment"
	ActivityStatus     = "status_change"
	ActivityAssignment = "assignment"
	ActivityReport     = "report"
)

// RecordActivity appends an activity event for a user.
func (d *DB) RecordActivity(userID, issueID, kind string, at time.Time) error {
	_, err := d.db.Exec(
		`INSERT INTO activity (user_id, issue_id, kind, at) VALUES (?, ?, ?, ?)`,
		userID, nullStr(issueID), kind, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("recording activity for %s: %w", userID, err)
	}
	return nil
}

// LoadCandidates builds a candidate record for every user: open assigned
// count, activity in (now-window, now], and up to historyLimit resolved
// issues, newest first.
func (d *DB) LoadCandidates(now time.Time, window time.Duration, historyLimit int) ([]model.Candidate, error) {
	users, err := d.ListUsers()
	if err != nil {
		return nil, err
	}

	open, err := d.openCounts()
	if err != nil {
		return nil, err
	}

	cands := make([]model.Candidate, 0, len(users))
	for _, u := range users {
		c := model.Candidate{
			ID:           u.ID,
			Name:         u.Name,
			Role:         u.Role,
			Active:       u.Active,
			OpenAssigned: open[u.ID],
		}
		if c.Activity, err = d.activitySince(u.ID, now.Add(-window), now); err != nil {
			return nil, err
		}
		if c.History, err = d.resolvedBy(u.ID, historyLimit); err != nil {
			return nil, err
		}
		cands = append(cands, c)
	}
	return cands, nil
}

// TeamWorkload returns the open-issue count of every active user.
func (d *DB) TeamWorkload() (model.TeamWorkloadSnapshot, error) {
	users, err := d.ListUsers()
	if err != nil {
		return model.TeamWorkloadSnapshot{}, err
	}
	open, err := d.openCounts()
	if err != nil {
		return model.TeamWorkloadSnapshot{}, err
	}

	snap := model.TeamWorkloadSnapshot{Members: make([]model.MemberLoad, 0, len(users))}
	for _, u := range users {
		if !u.Active {
			continue
		}
		name := u.Name
		if name == "" {
			name = u.ID
		}
		snap.Members = append(snap.Members, model.MemberLoad{
			UserID:    u.ID,
			Name:      name,
			Role:      u.Role,
			OpenCount: open[u.ID],
		})
	}
	return snap, nil
}

func (d *DB) openCounts() (map[string]int, error) {
	rows, err := d.db.Query(`
		SELECT assignee_id, COUNT(*) FROM issues
		WHERE assignee_id IS NOT NULL AND status != 'DONE'
		GROUP BY assignee_id`)
	if err != nil {
		return nil, fmt.Errorf("counting open assignments: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scanning open count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func (d *DB) activitySince(userID string, from, to time.Time) ([]time.Time, error) {
	rows, err := d.db.Query(
		`SELECT at FROM activity WHERE user_id = ? AND at > ? AND at <= ? ORDER BY at DESC`,
		userID, formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("loading activity for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var at string
		if err := rows.Scan(&at); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		out = append(out, parseTime(at))
	}
	return out, rows.Err()
}

func (d *DB) resolvedBy(userID string, limit int) ([]model.ResolvedIssue, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.Query(`SELECT `+issueColumns+` FROM issues
		WHERE assignee_id = ? AND status = 'DONE' AND resolved_at IS NOT NULL
		ORDER BY resolved_at DESC, id
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading history for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []model.ResolvedIssue
	for rows.Next() {
		issue, resolved, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, model.ResolvedIssue{
			ID:          issue.ID,
			Title:       issue.Title,
			Description: issue.Description,
			Tags:        issue.Tags,
			Severity:    issue.Severity,
			CreatedAt:   issue.CreatedAt,
			ResolvedAt:  *resolved,
		})
	}
	return out, rows.Err()
}
