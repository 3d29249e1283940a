package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jacklau/dispatch/internal/model"
)

const issueColumns = `id, title, description, tags, severity, status, reporter_id, assignee_id,
	created_at, updated_at, status_changed_at, resolved_at`

// IssueFilter narrows ListIssues. Zero values match everything.
type IssueFilter struct {
	Statuses   []model.Status
	OpenOnly   bool
	AssigneeID string
	Unassigned bool
	Limit      int
}

// UpsertIssue inserts or updates an issue. A status transition stamps
// status_changed_at with the snapshot's updated_at unless the caller supplied
// one, and entering DONE stamps resolved_at.
func (d *DB) UpsertIssue(issue *model.Issue) error {
	if err := issue.Validate(); err != nil {
		return err
	}

	tagsJSON, err := json.Marshal(issue.Tags)
	if err != nil {
		return fmt.Errorf("marshaling tags: %w", err)
	}

	updated := issue.UpdatedAt
	if updated.IsZero() {
		updated = issue.CreatedAt
	}
	var resolved sql.NullString
	if issue.Status == model.StatusDone {
		resolved = nullTime(&updated)
	}

	_, err = d.db.Exec(`
		INSERT INTO issues (`+issueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			tags = excluded.tags,
			severity = excluded.severity,
			reporter_id = excluded.reporter_id,
			assignee_id = excluded.assignee_id,
			updated_at = excluded.updated_at,
			status_changed_at = CASE
				WHEN issues.status != excluded.status
					THEN COALESCE(excluded.status_changed_at, excluded.updated_at)
				ELSE COALESCE(excluded.status_changed_at, issues.status_changed_at)
			END,
			resolved_at = CASE
				WHEN excluded.status != 'DONE' THEN NULL
				WHEN issues.status = 'DONE' THEN COALESCE(issues.resolved_at, excluded.resolved_at)
				ELSE excluded.resolved_at
			END,
			status = excluded.status`,
		issue.ID, issue.Title, issue.Description, string(tagsJSON),
		issue.Severity.String(), issue.Status.String(),
		nullStr(issue.ReporterID), nullStr(issue.AssigneeID),
		formatTime(issue.CreatedAt), formatTime(updated),
		nullTime(issue.StatusChangedAt), resolved,
	)
	if err != nil {
		return fmt.Errorf("upserting issue %s: %w", issue.ID, err)
	}
	return nil
}

// AssignIssue sets the assignee of an issue.
func (d *DB) AssignIssue(id, assigneeID string, at time.Time) error {
	res, err := d.db.Exec(
		`UPDATE issues SET assignee_id = ?, updated_at = ? WHERE id = ?`,
		nullStr(assigneeID), formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("assigning issue %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetIssue retrieves an issue by id.
func (d *DB) GetIssue(id string) (*model.Issue, error) {
	row := d.db.QueryRow(`SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	issue, _, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	return issue, err
}

// ListOpenIssues returns every issue that is not DONE, oldest first.
func (d *DB) ListOpenIssues() ([]model.Issue, error) {
	return d.ListIssues(IssueFilter{OpenOnly: true})
}

// ListIssues returns issues matching the filter, oldest first.
func (d *DB) ListIssues(f IssueFilter) ([]model.Issue, error) {
	var where []string
	var args []any

	if f.OpenOnly {
		where = append(where, "status != 'DONE'")
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			marks[i] = "?"
			args = append(args, s.String())
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if f.AssigneeID != "" {
		where = append(where, "assignee_id = ?")
		args = append(args, f.AssigneeID)
	}
	if f.Unassigned {
		where = append(where, "assignee_id IS NULL")
	}

	query := `SELECT ` + issueColumns + ` FROM issues`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing issues: %w", err)
	}
	defer rows.Close()

	var issues []model.Issue
	for rows.Next() {
		issue, _, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, *issue)
	}
	return issues, rows.Err()
}

// ReporterIssueCounts returns the number of issues each reporter has filed.
func (d *DB) ReporterIssueCounts() (map[string]int, error) {
	rows, err := d.db.Query(
		`SELECT reporter_id, COUNT(*) FROM issues WHERE reporter_id IS NOT NULL GROUP BY reporter_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("counting reporter issues: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scanning reporter count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// scanIssue returns the issue and its resolved_at timestamp, if any.
func scanIssue(s rowScanner) (*model.Issue, *time.Time, error) {
	var issue model.Issue
	var tagsJSON, reporter, assignee, statusChanged, resolved sql.NullString
	var severity, status, createdAt, updatedAt string

	err := s.Scan(
		&issue.ID, &issue.Title, &issue.Description, &tagsJSON, &severity, &status,
		&reporter, &assignee, &createdAt, &updatedAt, &statusChanged, &resolved,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("scanning issue: %w", err)
	}

	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &issue.Tags); err != nil {
			return nil, nil, fmt.Errorf("unmarshaling tags for %s: %w", issue.ID, err)
		}
	}
	if issue.Severity, err = model.ParseSeverity(severity); err != nil {
		return nil, nil, fmt.Errorf("issue %s: %w", issue.ID, err)
	}
	if issue.Status, err = model.ParseStatus(status); err != nil {
		return nil, nil, fmt.Errorf("issue %s: %w", issue.ID, err)
	}
	issue.ReporterID = reporter.String
	issue.AssigneeID = assignee.String
	issue.CreatedAt = parseTime(createdAt)
	issue.UpdatedAt = parseTime(updatedAt)
	issue.StatusChangedAt = parseNullTime(statusChanged)

	return &issue, parseNullTime(resolved), nil
}
