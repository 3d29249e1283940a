package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repo is a GitHub repository that sync polls for issues.
type Repo struct {
	ID           int64      `json:"id"`
	Owner        string     `json:"owner"`
	RepoName     string     `json:"repo"`
	LastPolledAt *time.Time `json:"last_polled_at,omitempty"`
	ETag         string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
}

// FullName returns "owner/repo".
func (r Repo) FullName() string {
	return r.Owner + "/" + r.RepoName
}

const repoColumns = `id, owner, repo, last_polled_at, etag, created_at`

// CreateRepo inserts a new repo record.
func (d *DB) CreateRepo(owner, repo string) (*Repo, error) {
	result, err := d.db.Exec(`INSERT INTO repos (owner, repo) VALUES (?, ?)`, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("creating repo %s/%s: %w", owner, repo, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting repo id: %w", err)
	}
	return d.GetRepo(id)
}

// EnsureRepo returns the repo record, creating it on first use.
func (d *DB) EnsureRepo(owner, repo string) (*Repo, error) {
	r, err := d.GetRepoByOwnerRepo(owner, repo)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return d.CreateRepo(owner, repo)
}

// GetRepo retrieves a repo by its ID.
func (d *DB) GetRepo(id int64) (*Repo, error) {
	row := d.db.QueryRow(`SELECT `+repoColumns+` FROM repos WHERE id = ?`, id)
	r, err := scanRepo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repo %d: %w", id, ErrNotFound)
	}
	return r, err
}

// GetRepoByOwnerRepo retrieves a repo by owner and name.
func (d *DB) GetRepoByOwnerRepo(owner, repo string) (*Repo, error) {
	row := d.db.QueryRow(`SELECT `+repoColumns+` FROM repos WHERE owner = ? AND repo = ?`, owner, repo)
	r, err := scanRepo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repo %s/%s: %w", owner, repo, ErrNotFound)
	}
	return r, err
}

// UpdatePollState updates the last_polled_at and etag for a repo.
func (d *DB) UpdatePollState(id int64, polledAt time.Time, etag string) error {
	_, err := d.db.Exec(
		`UPDATE repos SET last_polled_at = ?, etag = ? WHERE id = ?`,
		formatTime(polledAt), nullStr(etag), id,
	)
	if err != nil {
		return fmt.Errorf("updating poll state: %w", err)
	}
	return nil
}

// ListRepos returns all tracked repos.
func (d *DB) ListRepos() ([]Repo, error) {
	rows, err := d.db.Query(`SELECT ` + repoColumns + ` FROM repos ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing repos: %w", err)
	}
	defer rows.Close()

	var repos []Repo
	for rows.Next() {
		r, err := scanRepo(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, *r)
	}
	return repos, rows.Err()
}

func scanRepo(s rowScanner) (*Repo, error) {
	var r Repo
	var lastPolled, etag sql.NullString
	var createdAt string

	if err := s.Scan(&r.ID, &r.Owner, &r.RepoName, &lastPolled, &etag, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning repo: %w", err)
	}
	r.LastPolledAt = parseNullTime(lastPolled)
	r.ETag = etag.String
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}
