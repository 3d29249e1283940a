package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/jacklau/dispatch/internal/model"
	"github.com/jacklau/dispatch/internal/pubsub"
	"github.com/jacklau/dispatch/internal/retry"
	"github.com/jacklau/dispatch/internal/store"
)

const issuesPath = "/repos/testowner/testrepo/issues"

func newTestClient(t *testing.T, srv *httptest.Server) *gogithub.Client {
	t.Helper()
	client := gogithub.NewClient(nil)
	baseURL, err := client.BaseURL.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("parsing base URL: %v", err)
	}
	client.BaseURL = baseURL
	return client
}

// newTestPoller creates a Poller backed by an httptest server and in-memory
// store. Everything is closed via t.Cleanup.
func newTestPoller(t *testing.T, handler http.Handler, opts ...PollerOption) (*Poller, *store.DB, *pubsub.Broker[IssueEvent]) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	broker := pubsub.NewBroker[IssueEvent]()
	opts = append([]PollerOption{
		WithPollBackoff(retry.Backoff{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}),
	}, opts...)
	return NewPoller(newTestClient(t, srv), db, broker, "testowner", "testrepo", opts...), db, broker
}

// makeGitHubIssueJSON creates a JSON-compatible issue response.
func makeGitHubIssueJSON(number int, title, body, state string, updatedAt time.Time, labels ...string) map[string]interface{} {
	ls := make([]map[string]interface{}, 0, len(labels))
	for _, l := range labels {
		ls = append(ls, map[string]interface{}{"name": l})
	}
	issue := map[string]interface{}{
		"number":     number,
		"title":      title,
		"body":       body,
		"state":      state,
		"updated_at": updatedAt.Format(time.RFC3339),
		"created_at": updatedAt.Add(-time.Hour).Format(time.RFC3339),
		"user":       map[string]interface{}{"login": "testauthor"},
		"labels":     ls,
	}
	if state == "closed" {
		issue["closed_at"] = updatedAt.Format(time.RFC3339)
	}
	return issue
}

func serveIssues(w http.ResponseWriter, issues []map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(issues)
}

func nextEvent(t *testing.T, sub <-chan pubsub.Event[IssueEvent]) pubsub.Event[IssueEvent] {
	t.Helper()
	select {
	case evt := <-sub:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return pubsub.Event[IssueEvent]{}
}

func TestPollerPagination(t *testing.T) {
	var requestCount atomic.Int32
	now := time.Now().UTC().Truncate(time.Second)

	// The Link header needs the server URL, so configure the mux afterwards.
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc(issuesPath, func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		switch r.URL.Query().Get("page") {
		case "", "0", "1":
			w.Header().Set("Link", fmt.Sprintf("<%s%s?page=2>; rel=\"next\"", srv.URL, issuesPath))
			serveIssues(w, []map[string]interface{}{
				makeGitHubIssueJSON(1, "Issue 1", "Body 1", "open", now.Add(-2*time.Minute)),
				makeGitHubIssueJSON(2, "Issue 2", "Body 2", "open", now.Add(-time.Minute)),
			})
		case "2":
			serveIssues(w, []map[string]interface{}{
				makeGitHubIssueJSON(3, "Issue 3", "Body 3", "open", now),
			})
		}
	})

	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer db.Close()

	broker := pubsub.NewBroker[IssueEvent]()
	poller := NewPoller(newTestClient(t, srv), db, broker, "testowner", "testrepo")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := broker.Subscribe(ctx)

	changed, err := poller.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	if changed != 3 {
		t.Errorf("expected 3 changed issues, got %d", changed)
	}
	for i := 0; i < 3; i++ {
		if evt := nextEvent(t, sub); evt.Type != pubsub.Created {
			t.Errorf("expected Created event, got %s", evt.Type)
		}
	}
	if got := requestCount.Load(); got != 2 {
		t.Errorf("expected 2 page requests, got %d", got)
	}

	open, _ := db.ListOpenIssues()
	if len(open) != 3 {
		t.Errorf("expected 3 stored issues, got %d", len(open))
	}
}

func TestPollerETag304NotModified(t *testing.T) {
	var requestCount atomic.Int32
	now := time.Now().UTC().Truncate(time.Second)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestCount.Add(1) == 1 {
			w.Header().Set("ETag", `"abc123"`)
			serveIssues(w, []map[string]interface{}{
				makeGitHubIssueJSON(1, "Issue 1", "Body 1", "open", now),
			})
			return
		}
		if r.Header.Get("If-None-Match") == `"abc123"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		serveIssues(w, nil)
	})

	poller, db, _ := newTestPoller(t, handler)

	if _, err := poller.Poll(context.Background()); err != nil {
		t.Fatalf("first Poll() error: %v", err)
	}
	repo, _ := db.GetRepoByOwnerRepo("testowner", "testrepo")
	if repo.ETag != `"abc123"` {
		t.Errorf("expected stored ETag, got %q", repo.ETag)
	}

	changed, err := poller.Poll(context.Background())
	if err != nil {
		t.Fatalf("second Poll() should not error on 304, got: %v", err)
	}
	if changed != 0 {
		t.Errorf("expected no changes on 304, got %d", changed)
	}
	if got := requestCount.Load(); got != 2 {
		t.Errorf("expected 2 requests, got %d", got)
	}
}

func TestPollerWatermarkAdvancement(t *testing.T) {
	issueTime := time.Now().UTC().Truncate(time.Second).Add(-10 * time.Minute)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveIssues(w, []map[string]interface{}{
			makeGitHubIssueJSON(1, "Issue 1", "Body 1", "open", issueTime),
		})
	})

	poller, db, _ := newTestPoller(t, handler)
	if _, err := poller.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error: %v", err)
	}

	repo, err := db.GetRepoByOwnerRepo("testowner", "testrepo")
	if err != nil {
		t.Fatalf("getting repo: %v", err)
	}
	if repo.LastPolledAt == nil {
		t.Fatal("expected LastPolledAt to be set after poll")
	}
	if want := issueTime.Add(-watermarkBuffer); !repo.LastPolledAt.Equal(want) {
		t.Errorf("expected watermark %v, got %v", want, *repo.LastPolledAt)
	}
}

func TestPollerRateLimitBackoff(t *testing.T) {
	var requestCount atomic.Int32
	now := time.Now().UTC().Truncate(time.Second)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestCount.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{"message": "API rate limit exceeded"})
			return
		}
		serveIssues(w, []map[string]interface{}{
			makeGitHubIssueJSON(1, "Issue 1", "Body 1", "open", now),
		})
	})

	poller, _, _ := newTestPoller(t, handler)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := poller.Poll(ctx); err != nil {
		t.Fatalf("Poll() after rate limit retry should succeed, got: %v", err)
	}
	if got := requestCount.Load(); got != 2 {
		t.Errorf("expected 2 requests (rate limit + retry), got %d", got)
	}
}

func TestPollerAPIErrorResponses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		headers   map[string]string
		wantCalls int32
	}{
		{"500 retried until attempts run out", http.StatusInternalServerError, nil, 3},
		{"403 rate limit retried", http.StatusForbidden, map[string]string{"Retry-After": "0"}, 3},
		{"429 retried", http.StatusTooManyRequests, map[string]string{"Retry-After": "0"}, 3},
		{"403 permission not retried", http.StatusForbidden, nil, 1},
		{"404 not retried", http.StatusNotFound, nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requestCount atomic.Int32
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requestCount.Add(1)
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]interface{}{"message": "failure"})
			})

			poller, _, _ := newTestPoller(t, handler)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if _, err := poller.Poll(ctx); err == nil {
				t.Errorf("expected error for persistent %d, got nil", tt.status)
			}
			if got := requestCount.Load(); got != tt.wantCalls {
				t.Errorf("expected %d requests, got %d", tt.wantCalls, got)
			}
		})
	}
}

func TestPollerContextCancellation(t *testing.T) {
	handlerReached := make(chan struct{})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case handlerReached <- struct{}{}:
		default:
		}
		<-r.Context().Done()
	})

	poller, _, _ := newTestPoller(t, handler)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := poller.Poll(ctx)
		errCh <- err
	}()

	select {
	case <-handlerReached:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for handler to be reached")
	}
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected error after context cancellation, got nil")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Poll to return after cancellation")
	}
}

func TestPollerNewIssuePublishesEvent(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		issue := makeGitHubIssueJSON(42, "Checkout down", "Payments fail", "open", now, "P0", "backend")
		issue["assignee"] = map[string]interface{}{"login": "alice"}
		serveIssues(w, []map[string]interface{}{issue})
	})

	poller, db, broker := newTestPoller(t, handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := broker.Subscribe(ctx)

	if _, err := poller.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error: %v", err)
	}

	evt := nextEvent(t, sub)
	if evt.Type != pubsub.Created || !evt.Payload.Has(ChangeNew) {
		t.Errorf("expected new-issue event, got %s %v", evt.Type, evt.Payload.Changes)
	}
	got := evt.Payload.Issue
	if got.ID != "testowner/testrepo#42" || evt.Payload.Number != 42 {
		t.Errorf("unexpected issue identity: %q #%d", got.ID, evt.Payload.Number)
	}
	if got.Severity != model.SeverityCritical || !evt.Payload.SeverityLabeled {
		t.Errorf("expected labeled CRITICAL severity, got %v (labeled=%v)", got.Severity, evt.Payload.SeverityLabeled)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "backend" {
		t.Errorf("expected tags [backend], got %v", got.Tags)
	}
	if got.AssigneeID != "alice" || got.ReporterID != "testauthor" {
		t.Errorf("unexpected people: assignee=%q reporter=%q", got.AssigneeID, got.ReporterID)
	}
	if evt.Payload.Repo != "testowner/testrepo" {
		t.Errorf("expected repo 'testowner/testrepo', got %q", evt.Payload.Repo)
	}

	// Reporter and assignee are mirrored as users with activity.
	reporter, err := db.GetUser("testauthor")
	if err != nil || reporter.Role != model.RoleReporter {
		t.Errorf("expected reporter user, got %+v (%v)", reporter, err)
	}
	assignee, err := db.GetUser("alice")
	if err != nil || assignee.Role != model.RoleMaintainer {
		t.Errorf("expected maintainer user, got %+v (%v)", assignee, err)
	}
	cands, _ := db.LoadCandidates(now.Add(time.Minute), 7*24*time.Hour, 10)
	for _, c := range cands {
		if c.ID == "alice" && (c.OpenAssigned != 1 || len(c.Activity) != 1) {
			t.Errorf("unexpected alice candidate: %+v", c)
		}
	}
}

func TestPollerSkipsPullRequests(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pr := makeGitHubIssueJSON(2, "A Pull Request", "PR body", "open", now)
		pr["pull_request"] = map[string]interface{}{
			"url": "https://api.github.com/repos/testowner/testrepo/pulls/2",
		}
		serveIssues(w, []map[string]interface{}{
			makeGitHubIssueJSON(1, "Real Issue", "Body", "open", now),
			pr,
		})
	})

	poller, _, broker := newTestPoller(t, handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := broker.Subscribe(ctx)

	if _, err := poller.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error: %v", err)
	}

	if evt := nextEvent(t, sub); evt.Payload.Number != 1 {
		t.Errorf("expected issue #1, got #%d", evt.Payload.Number)
	}
	select {
	case evt := <-sub:
		t.Errorf("unexpected extra event for issue #%d", evt.Payload.Number)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPollerUpdatedIssueDetected(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	var requestCount atomic.Int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch requestCount.Add(1) {
		case 1:
			serveIssues(w, []map[string]interface{}{
				makeGitHubIssueJSON(1, "Original Title", "Original Body", "open", now),
			})
		case 2:
			serveIssues(w, []map[string]interface{}{
				makeGitHubIssueJSON(1, "Updated Title", "Original Body", "open", now.Add(time.Minute)),
			})
		case 3:
			// Unchanged content: no event.
			serveIssues(w, []map[string]interface{}{
				makeGitHubIssueJSON(1, "Updated Title", "Original Body", "open", now.Add(time.Minute)),
			})
		default:
			serveIssues(w, []map[string]interface{}{
				makeGitHubIssueJSON(1, "Updated Title", "Original Body", "closed", now.Add(time.Hour)),
			})
		}
	})

	poller, db, broker := newTestPoller(t, handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := broker.Subscribe(ctx)

	if _, err := poller.Poll(context.Background()); err != nil {
		t.Fatalf("first Poll() error: %v", err)
	}
	if evt := nextEvent(t, sub); !evt.Payload.Has(ChangeNew) {
		t.Errorf("expected ChangeNew, got %v", evt.Payload.Changes)
	}

	if _, err := poller.Poll(context.Background()); err != nil {
		t.Fatalf("second Poll() error: %v", err)
	}
	evt := nextEvent(t, sub)
	if evt.Type != pubsub.Updated || len(evt.Payload.Changes) != 1 || evt.Payload.Changes[0] != ChangeTitleEdited {
		t.Errorf("expected title edit, got %s %v", evt.Type, evt.Payload.Changes)
	}

	changed, err := poller.Poll(context.Background())
	if err != nil {
		t.Fatalf("third Poll() error: %v", err)
	}
	if changed != 0 {
		t.Errorf("expected no changes, got %d", changed)
	}

	if _, err := poller.Poll(context.Background()); err != nil {
		t.Fatalf("fourth Poll() error: %v", err)
	}
	evt = nextEvent(t, sub)
	if evt.Type != pubsub.Closed || !evt.Payload.Has(ChangeStatusChanged) {
		t.Errorf("expected close event, got %s %v", evt.Type, evt.Payload.Changes)
	}
	stored, _ := db.GetIssue("testowner/testrepo#1")
	if stored.Status != model.StatusDone {
		t.Errorf("expected DONE, got %v", stored.Status)
	}
	if stored.StatusChangedAt == nil || !stored.StatusChangedAt.Equal(now.Add(time.Hour)) {
		t.Errorf("expected status change at close time, got %v", stored.StatusChangedAt)
	}
}

func TestPollerKeepsSuggestedSeverity(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveIssues(w, []map[string]interface{}{
			makeGitHubIssueJSON(7, "Crash on save", "", "open", now),
		})
	})
	poller, db, _ := newTestPoller(t, handler)

	if _, err := poller.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error: %v", err)
	}

	// A suggester raised the severity of the unlabeled issue.
	issue, _ := db.GetIssue("testowner/testrepo#7")
	issue.Severity = model.SeverityHigh
	issue.Tags = []string{"bug"}
	if err := db.UpsertIssue(issue); err != nil {
		t.Fatalf("UpsertIssue: %v", err)
	}

	changed, err := poller.Poll(context.Background())
	if err != nil {
		t.Fatalf("second Poll() error: %v", err)
	}
	if changed != 0 {
		t.Errorf("unlabeled re-poll should not count as a change, got %d", changed)
	}
	issue, _ = db.GetIssue("testowner/testrepo#7")
	if issue.Severity != model.SeverityHigh || len(issue.Tags) != 1 {
		t.Errorf("suggested fields overwritten: %+v", issue)
	}
}
