package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/jacklau/dispatch/internal/model"
	"github.com/jacklau/dispatch/internal/pubsub"
	"github.com/jacklau/dispatch/internal/retry"
	"github.com/jacklau/dispatch/internal/store"
)

// watermarkBuffer is subtracted from the latest issue UpdatedAt to guard
// against clock skew and missed updates at page boundaries.
const watermarkBuffer = 2 * time.Minute

// PollStore is the storage the poller needs. *store.DB satisfies it.
type PollStore interface {
	EnsureRepo(owner, repo string) (*store.Repo, error)
	UpdatePollState(id int64, polledAt time.Time, etag string) error
	GetIssue(id string) (*model.Issue, error)
	UpsertIssue(issue *model.Issue) error
	EnsureUser(id string, role model.Role) error
	RecordActivity(userID, issueID, kind string, at time.Time) error
}

// Poller watches a GitHub repository for issue changes, mirrors them into
// the store and publishes events.
type Poller struct {
	client  *gogithub.Client
	store   PollStore
	broker  *pubsub.Broker[IssueEvent]
	owner   string
	repo    string
	labels  *LabelMapper
	backoff retry.Backoff
	logger  *slog.Logger
	now     func() time.Time
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithLabelMapper sets the label mapping used to derive severity and status.
func WithLabelMapper(m *LabelMapper) PollerOption {
	return func(p *Poller) { p.labels = m }
}

// WithPollBackoff sets the retry schedule for API requests.
func WithPollBackoff(b retry.Backoff) PollerOption {
	return func(p *Poller) { p.backoff = b }
}

// WithPollLogger sets the logger.
func WithPollLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// NewPoller creates a new issue Poller for a specific repository.
func NewPoller(client *gogithub.Client, st PollStore, broker *pubsub.Broker[IssueEvent], owner, repo string, opts ...PollerOption) *Poller {
	p := &Poller{
		client:  client,
		store:   st,
		broker:  broker,
		owner:   owner,
		repo:    repo,
		backoff: retry.Backoff{MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: time.Minute},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	if p.labels == nil {
		p.labels, _ = NewLabelMapper(nil)
	}
	p.logger = p.logger.With("repo", owner+"/"+repo)
	return p
}

// Run polls at the given interval until the context is cancelled.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	p.logger.Info("starting poll loop", "interval", interval)

	if _, err := p.Poll(ctx); err != nil {
		p.logger.Warn("initial poll failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poll loop stopped", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.Poll(ctx); err != nil {
				// Transient errors are expected; the next tick retries.
				p.logger.Warn("poll failed", "error", err)
			}
		}
	}
}

// Poll performs a single poll cycle: fetch updated issues, diff against
// stored snapshots, publish events and advance the watermark. It returns the
// number of issues that changed.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	repoRecord, err := p.store.EnsureRepo(p.owner, p.repo)
	if err != nil {
		return 0, fmt.Errorf("ensuring repo record: %w", err)
	}

	opts := &gogithub.IssueListByRepoOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "asc",
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	if repoRecord.LastPolledAt != nil {
		opts.Since = *repoRecord.LastPolledAt
	}

	var latestUpdatedAt time.Time
	var newETag string
	changed := 0

	for {
		if err := ctx.Err(); err != nil {
			return changed, err
		}

		issues, resp, err := p.fetchPage(ctx, opts, repoRecord.ETag)
		if err != nil {
			return changed, fmt.Errorf("fetching issues: %w", err)
		}
		if resp != nil && IsNotModified(resp.Response) {
			p.logger.Debug("no changes (304 Not Modified)")
			return 0, nil
		}
		if resp != nil && opts.ListOptions.Page <= 1 {
			newETag = resp.Header.Get("ETag")
		}
		if err := p.throttle(ctx, resp); err != nil {
			return changed, err
		}

		for _, ghIssue := range issues {
			// The issues endpoint also returns pull requests.
			if ghIssue.PullRequestLinks != nil {
				continue
			}

			conv := p.labels.Convert(p.owner, p.repo, ghIssue)
			changes, err := p.diffAndPublish(conv)
			if err != nil {
				p.logger.Error("processing issue failed", "number", conv.Number, "error", err)
				continue
			}
			if len(changes) > 0 {
				changed++
			}
			if conv.Issue.UpdatedAt.After(latestUpdatedAt) {
				latestUpdatedAt = conv.Issue.UpdatedAt
			}
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}

	switch {
	case !latestUpdatedAt.IsZero():
		watermark := latestUpdatedAt.Add(-watermarkBuffer)
		if err := p.store.UpdatePollState(repoRecord.ID, watermark, newETag); err != nil {
			return changed, fmt.Errorf("updating poll state: %w", err)
		}
	case newETag != "":
		polledAt := p.now().UTC()
		if repoRecord.LastPolledAt != nil {
			polledAt = *repoRecord.LastPolledAt
		}
		if err := p.store.UpdatePollState(repoRecord.ID, polledAt, newETag); err != nil {
			return changed, fmt.Errorf("updating poll state: %w", err)
		}
	}

	p.logger.Info("poll complete", "changed", changed)
	return changed, nil
}

// fetchPage lists one page of issues, retrying server errors and rate limits.
func (p *Poller) fetchPage(ctx context.Context, opts *gogithub.IssueListByRepoOptions, etag string) ([]*gogithub.Issue, *gogithub.Response, error) {
	var issues []*gogithub.Issue
	var resp *gogithub.Response

	err := p.backoff.Do(ctx, func() error {
		var err error
		issues, resp, err = p.listIssues(ctx, opts, etag)

		var httpResp *http.Response
		if resp != nil {
			httpResp = resp.Response
		}
		switch {
		case IsNotModified(httpResp):
			return nil
		case IsRateLimited(httpResp):
			wait := RetryAfter(httpResp, p.now())
			p.logger.Warn("rate limited", "wait", wait)
			if err := sleepCtx(ctx, wait); err != nil {
				return retry.Permanent(err)
			}
			return fmt.Errorf("rate limited: status %d", httpResp.StatusCode)
		case IsServerError(httpResp):
			return fmt.Errorf("server error: status %d", httpResp.StatusCode)
		case err != nil:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return retry.Permanent(err)
			}
			if httpResp == nil {
				// Transport error; worth another attempt.
				return err
			}
			return retry.Permanent(err)
		}
		return nil
	})
	return issues, resp, err
}

// listIssues calls the issues endpoint, sending If-None-Match on the first
// page when an ETag is known.
func (p *Poller) listIssues(ctx context.Context, opts *gogithub.IssueListByRepoOptions, etag string) ([]*gogithub.Issue, *gogithub.Response, error) {
	if etag == "" || opts.ListOptions.Page > 1 {
		return p.client.Issues.ListByRepo(ctx, p.owner, p.repo, opts)
	}

	// go-github has no conditional-request option, so build the request by hand.
	req, err := p.client.NewRequest(http.MethodGet, fmt.Sprintf("repos/%s/%s/issues", p.owner, p.repo), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("If-None-Match", etag)

	q := req.URL.Query()
	q.Set("state", opts.State)
	q.Set("sort", opts.Sort)
	q.Set("direction", opts.Direction)
	q.Set("per_page", strconv.Itoa(opts.PerPage))
	if !opts.Since.IsZero() {
		q.Set("since", opts.Since.Format(time.RFC3339))
	}
	req.URL.RawQuery = q.Encode()

	var issues []*gogithub.Issue
	resp, err := p.client.Do(ctx, req, &issues)
	if err != nil {
		if resp != nil && IsNotModified(resp.Response) {
			return nil, resp, nil
		}
		return nil, resp, err
	}
	return issues, resp, nil
}

// throttle pauses until the rate limit window resets when few requests remain.
func (p *Poller) throttle(ctx context.Context, resp *gogithub.Response) error {
	if resp == nil {
		return nil
	}
	rl := ParseRateLimit(resp.Response)
	if !rl.ShouldThrottle() {
		return nil
	}
	wait := rl.WaitUntilReset(p.now())
	if wait <= 0 {
		return nil
	}
	p.logger.Warn("rate limit low, pausing", "remaining", rl.Remaining, "wait", wait)
	return sleepCtx(ctx, wait)
}

// diffAndPublish compares the incoming issue against the stored snapshot,
// upserts it, records activity and publishes an event when anything changed.
func (p *Poller) diffAndPublish(conv Converted) ([]ChangeType, error) {
	incoming := conv.Issue

	existing, err := p.store.GetIssue(incoming.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("getting stored issue: %w", err)
	}

	var changes []ChangeType
	if existing == nil {
		changes = []ChangeType{ChangeNew}
	} else {
		// Keep severity and tags filled in by the suggester when GitHub
		// carries none.
		if !conv.SeverityLabeled {
			incoming.Severity = existing.Severity
		}
		if len(incoming.Tags) == 0 {
			incoming.Tags = existing.Tags
		}
		changes = DiffSnapshot(existing, &incoming)
	}
	if len(changes) == 0 {
		return nil, nil
	}

	if err := p.store.UpsertIssue(&incoming); err != nil {
		return changes, fmt.Errorf("upserting issue: %w", err)
	}
	if err := p.recordPeople(existing, incoming, changes); err != nil {
		return changes, err
	}

	// Re-read so the event carries the stored status timestamp.
	if stored, err := p.store.GetIssue(incoming.ID); err == nil {
		incoming = *stored
	}

	evtType := pubsub.Updated
	switch {
	case existing == nil:
		evtType = pubsub.Created
	case incoming.Status == model.StatusDone && existing.Status != model.StatusDone:
		evtType = pubsub.Closed
	}
	p.broker.Publish(evtType, IssueEvent{
		Repo:            p.owner + "/" + p.repo,
		Number:          conv.Number,
		Issue:           incoming,
		Changes:         changes,
		SeverityLabeled: conv.SeverityLabeled,
		ObservedAt:      p.now(),
	})
	return changes, nil
}

// recordPeople makes sure reporters and assignees exist as users and logs
// the activity implied by the change.
func (p *Poller) recordPeople(existing *model.Issue, issue model.Issue, changes []ChangeType) error {
	if issue.ReporterID != "" {
		if err := p.store.EnsureUser(issue.ReporterID, model.RoleReporter); err != nil {
			return fmt.Errorf("ensuring reporter: %w", err)
		}
		if existing == nil {
			if err := p.store.RecordActivity(issue.ReporterID, issue.ID, store.ActivityReport, issue.CreatedAt); err != nil {
				return err
			}
		}
	}
	if issue.AssigneeID == "" {
		return nil
	}
	if err := p.store.EnsureUser(issue.AssigneeID, model.RoleMaintainer); err != nil {
		return fmt.Errorf("ensuring assignee: %w", err)
	}

	var kind string
	switch {
	case existing == nil || existing.AssigneeID != issue.AssigneeID:
		kind = store.ActivityAssignment
	case slices.Contains(changes, ChangeStatusChanged):
		kind = store.ActivityStatus
	default:
		kind = store.ActivityComment
	}
	return p.store.RecordActivity(issue.AssigneeID, issue.ID, kind, issue.UpdatedAt)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
