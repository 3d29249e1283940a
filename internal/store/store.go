package store

import (
	"time"

	"github.com/jacklau/dispatch/internal/model"
)

// Store defines the storage operations used by the pipeline.
// It is satisfied by *DB and can be replaced with a mock for testing.
type Store interface {
	// UpsertIssue inserts or updates an issue snapshot.
	UpsertIssue(issue *model.Issue) error

	// GetIssue retrieves an issue by id.
	GetIssue(id string) (*model.Issue, error)

	// ListOpenIssues returns every issue that is not DONE.
	ListOpenIssues() ([]model.Issue, error)

	// RecordActivity appends an activity event for a user.
	RecordActivity(userID, issueID, kind string, at time.Time) error

	// LoadCandidates builds candidate records for every user.
	LoadCandidates(now time.Time, window time.Duration, historyLimit int) ([]model.Candidate, error)

	// ReporterIssueCounts returns the number of issues each reporter filed.
	ReporterIssueCounts() (map[string]int, error)

	// LogDecision inserts a decision log entry.
	LogDecision(dec *Decision) error

	// AggregateDailyStats upserts the status counts for a day.
	AggregateDailyStats(day time.Time) (*DailyStats, error)
}

// Compile-time check that *DB satisfies the Store interface.
var _ Store = (*DB)(nil)
