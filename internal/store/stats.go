package store

import (
	"fmt"
	"time"

	"github.com/jacklau/dispatch/internal/model"
)

// DailyStats is the per-day snapshot of issue counts by status.
type DailyStats struct {
	Date       string    `json:"date"`
	Open       int       `json:"open"`
	Triaged    int       `json:"triaged"`
	InProgress int       `json:"in_progress"`
	Done       int       `json:"done"`
	CreatedAt  time.Time `json:"created_at"`
}

// Total returns the sum of all status counts.
func (s DailyStats) Total() int {
	return s.Open + s.Triaged + s.InProgress + s.Done
}

// Summary holds aggregate issue statistics.
type Summary struct {
	Total      int                    `json:"total"`
	ByStatus   map[model.Status]int   `json:"by_status"`
	BySeverity map[model.Severity]int `json:"by_severity"` // non-DONE issues only
	Unassigned int                    `json:"unassigned"`  // non-DONE issues only
	Users      int                    `json:"users"`
	Repos      int                    `json:"repos"`
}

// AggregateDailyStats counts issues by status and upserts the row for the
// calendar day (UTC) containing day. Re-running the same day overwrites it.
func (d *DB) AggregateDailyStats(day time.Time) (*DailyStats, error) {
	stats := &DailyStats{Date: day.UTC().Format(time.DateOnly), CreatedAt: time.Now().UTC()}

	counts, err := d.statusCounts()
	if err != nil {
		return nil, err
	}
	stats.Open = counts[model.StatusOpen]
	stats.Triaged = counts[model.StatusTriaged]
	stats.InProgress = counts[model.StatusInProgress]
	stats.Done = counts[model.StatusDone]

	_, err = d.db.Exec(`
		INSERT INTO daily_stats (date, open_count, triaged_count, in_progress_count, done_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			open_count = excluded.open_count,
			triaged_count = excluded.triaged_count,
			in_progress_count = excluded.in_progress_count,
			done_count = excluded.done_count,
			created_at = excluded.created_at`,
		stats.Date, stats.Open, stats.Triaged, stats.InProgress, stats.Done, formatTime(stats.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("upserting daily stats for %s: %w", stats.Date, err)
	}
	return stats, nil
}

// ListDailyStats returns the most recent daily snapshots, newest first.
func (d *DB) ListDailyStats(limit int) ([]DailyStats, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.Query(`
		SELECT date, open_count, triaged_count, in_progress_count, done_count, created_at
		FROM daily_stats ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing daily stats: %w", err)
	}
	defer rows.Close()

	var out []DailyStats
	for rows.Next() {
		var s DailyStats
		var createdAt string
		if err := rows.Scan(&s.Date, &s.Open, &s.Triaged, &s.InProgress, &s.Done, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning daily stats: %w", err)
		}
		s.CreatedAt = parseTime(createdAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSummary returns aggregate statistics across all issues.
func (d *DB) GetSummary() (*Summary, error) {
	s := &Summary{
		ByStatus:   make(map[model.Status]int),
		BySeverity: make(map[model.Severity]int),
	}

	counts, err := d.statusCounts()
	if err != nil {
		return nil, err
	}
	for st, n := range counts {
		s.ByStatus[st] = n
		s.Total += n
	}

	rows, err := d.db.Query(`SELECT severity, COUNT(*) FROM issues WHERE status != 'DONE' GROUP BY severity`)
	if err != nil {
		return nil, fmt.Errorf("counting severities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scanning severity count: %w", err)
		}
		sev, err := model.ParseSeverity(name)
		if err != nil {
			return nil, err
		}
		s.BySeverity[sev] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = d.db.QueryRow(
		`SELECT COUNT(*) FROM issues WHERE status != 'DONE' AND assignee_id IS NULL`,
	).Scan(&s.Unassigned)
	if err != nil {
		return nil, fmt.Errorf("counting unassigned issues: %w", err)
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&s.Users); err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM repos`).Scan(&s.Repos); err != nil {
		return nil, fmt.Errorf("counting repos: %w", err)
	}
	return s, nil
}

func (d *DB) statusCounts() (map[model.Status]int, error) {
	rows, err := d.db.Query(`SELECT status, COUNT(*) FROM issues GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting statuses: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		st, err := model.ParseStatus(name)
		if err != nil {
			return nil, err
		}
		counts[st] = n
	}
	return counts, rows.Err()
}
