// Package pipeline runs the decision engine against the stored team
// snapshot: rank assignees, classify escalation, compose the feed, deliver
// it and record what was decided.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jacklau/dispatch/internal/assign"
	"github.com/jacklau/dispatch/internal/classify"
	"github.com/jacklau/dispatch/internal/config"
	"github.com/jacklau/dispatch/internal/escalate"
	"github.com/jacklau/dispatch/internal/github"
	"github.com/jacklau/dispatch/internal/model"
	"github.com/jacklau/dispatch/internal/notify"
	"github.com/jacklau/dispatch/internal/pubsub"
	"github.com/jacklau/dispatch/internal/store"
)

// Deps holds the dependencies for the Pipeline.
type Deps struct {
	Store      store.Store
	Policy     config.Policy
	Ranker     *assign.Ranker
	Escalation *escalate.Classifier
	Composer   *notify.Composer
	Suggester  *classify.Classifier
	Notifier   notify.Notifier
	// Channel names the delivery target in the decision log, e.g. "slack".
	Channel string
	Broker  *pubsub.Broker[github.IssueEvent]
	// Workers bounds concurrent ranking during a sweep.
	Workers int
	// DryRun computes results without delivering or logging them.
	DryRun bool
	Logger *slog.Logger
	Now    func() time.Time
}

// Pipeline orchestrates the dispatch workflow.
type Pipeline struct {
	deps Deps
}

// New creates a Pipeline, filling unset engine components from the policy.
func New(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Workers <= 0 {
		deps.Workers = 4
	}
	if deps.Ranker == nil {
		deps.Ranker = assign.NewRanker(deps.Policy, assign.WithLogger(deps.Logger))
	}
	if deps.Escalation == nil {
		deps.Escalation = escalate.NewClassifier(deps.Policy, escalate.WithLogger(deps.Logger))
	}
	if deps.Composer == nil {
		deps.Composer = notify.NewComposer(deps.Policy)
	}
	if deps.Suggester == nil {
		deps.Suggester = classify.NewClassifier(classify.DefaultCategories())
	}
	if deps.Channel == "" {
		deps.Channel = "none"
	}
	return &Pipeline{deps: deps}
}

// Snapshot is the team state the engine runs against.
type Snapshot struct {
	Now            time.Time
	OpenIssues     []model.Issue
	Candidates     []model.Candidate
	ReporterCounts map[string]int
}

// IssueReport is the outcome of processing one issue.
type IssueReport struct {
	Issue         model.Issue                 `json:"issue"`
	Assessment    model.EscalationAssessment  `json:"assessment"`
	Assignment    *model.AssignmentResult     `json:"assignment,omitempty"`
	AssignmentErr string                      `json:"assignment_error,omitempty"`
	Resolution    escalate.ResolutionEstimate `json:"resolution"`
	Notifications []model.Notification        `json:"notifications"`
}

// SweepReport is the outcome of a team-wide sweep.
type SweepReport struct {
	At            time.Time                          `json:"at"`
	Assessments   []model.EscalationAssessment       `json:"assessments"`
	Assignments   map[string]*model.AssignmentResult `json:"assignments"`
	Unassignable  []string                           `json:"unassignable,omitempty"`
	Workload      model.TeamWorkloadSnapshot         `json:"workload"`
	Notifications []model.Notification               `json:"notifications"`
	Delivered     bool                               `json:"delivered"`
}

// LoadSnapshot reads the open issues, candidates and reporter counts.
func (p *Pipeline) LoadSnapshot(now time.Time) (*Snapshot, error) {
	open, err := p.deps.Store.ListOpenIssues()
	if err != nil {
		return nil, fmt.Errorf("loading open issues: %w", err)
	}
	cands, err := p.deps.Store.LoadCandidates(now, p.deps.Policy.ActivityWindow(), p.deps.Policy.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}
	counts, err := p.deps.Store.ReporterIssueCounts()
	if err != nil {
		return nil, fmt.Errorf("loading reporter counts: %w", err)
	}
	return &Snapshot{Now: now, OpenIssues: open, Candidates: cands, ReporterCounts: counts}, nil
}

func (s *Snapshot) escalationContext() escalate.EscalationContext {
	return escalate.EscalationContext{Now: s.Now, OpenIssues: s.OpenIssues, ReporterIssueCounts: s.ReporterCounts}
}

// ProcessIssue ranks and classifies a single issue and composes the
// notifications it warrants. Ranking is skipped for assigned issues; a team
// with nobody eligible is reported, not returned as an error.
func (p *Pipeline) ProcessIssue(ctx context.Context, issueID string) (*IssueReport, error) {
	issue, err := p.deps.Store.GetIssue(issueID)
	if err != nil {
		return nil, err
	}
	if issue.Terminal() {
		return nil, fmt.Errorf("issue %s: %w", issueID, model.ErrIssueClosed)
	}

	now := p.deps.Now()
	snap, err := p.LoadSnapshot(now)
	if err != nil {
		return nil, err
	}

	logger := p.deps.Logger.With("issue", issue.ID)
	report := &IssueReport{
		Issue:      *issue,
		Assessment: p.deps.Escalation.Classify(*issue, snap.escalationContext()),
		Resolution: escalate.EstimateResolution(*issue, now),
	}

	suggestions := map[string]*model.AssignmentResult{}
	if !issue.Assigned() {
		res, err := p.deps.Ranker.RankAt(*issue, snap.Candidates, now)
		switch {
		case err == nil:
			report.Assignment = res
			suggestions[issue.ID] = res
		case errors.Is(err, model.ErrNoCandidates):
			report.AssignmentErr = err.Error()
			logger.Warn("no eligible assignee", "error", err)
		default:
			return nil, fmt.Errorf("ranking %s: %w", issue.ID, err)
		}
	}

	report.Notifications = p.deps.Composer.Compose(notify.ComposeInput{
		Now:         now,
		Assessments: []model.EscalationAssessment{report.Assessment},
		Issues:      []model.Issue{*issue},
		Users:       snap.Candidates,
		Suggestions: suggestions,
	})

	logger.Info("issue processed",
		"level", report.Assessment.Level.String(),
		"priority", report.Assessment.PriorityScore,
		"notifications", len(report.Notifications),
	)

	if p.deps.DryRun {
		return report, nil
	}
	p.logAssessment(report.Assessment, now)
	if report.Assignment != nil {
		p.logAssignment(report.Assignment, now)
	}
	p.deliver(ctx, report.Notifications, now)
	return report, nil
}

// Sweep classifies every open issue, ranks the unassigned ones, composes
// the team feed, delivers it and snapshots the daily stats.
func (p *Pipeline) Sweep(ctx context.Context) (*SweepReport, error) {
	now := p.deps.Now()
	snap, err := p.LoadSnapshot(now)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{
		At:          now,
		Assessments: p.deps.Escalation.ClassifyAll(snap.OpenIssues, snap.escalationContext()),
		Assignments: make(map[string]*model.AssignmentResult),
		Workload:    model.WorkloadFromCandidates(snap.Candidates),
	}

	if err := p.rankUnassigned(ctx, snap, report); err != nil {
		return nil, err
	}

	report.Notifications = p.deps.Composer.Compose(notify.ComposeInput{
		Now:         now,
		Assessments: report.Assessments,
		Issues:      snap.OpenIssues,
		Users:       snap.Candidates,
		Workload:    report.Workload,
		Suggestions: report.Assignments,
	})

	p.deps.Logger.Info("sweep complete",
		"open", len(snap.OpenIssues),
		"ranked", len(report.Assignments),
		"unassignable", len(report.Unassignable),
		"notifications", len(report.Notifications),
	)

	if p.deps.DryRun {
		return report, nil
	}
	for _, a := range report.Assessments {
		if a.Level > model.LevelNone {
			p.logAssessment(a, now)
		}
	}
	report.Delivered = p.deliver(ctx, report.Notifications, now)
	if _, err := p.deps.Store.AggregateDailyStats(now); err != nil {
		p.deps.Logger.Error("aggregating daily stats failed", "error", err)
	}
	return report, nil
}

// rankUnassigned ranks every unassigned open issue on a bounded worker pool.
func (p *Pipeline) rankUnassigned(ctx context.Context, snap *Snapshot, report *SweepReport) error {
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.deps.Workers)
	var firstErr error

	for _, issue := range snap.OpenIssues {
		if issue.Assigned() {
			continue
		}
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return err
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(issue model.Issue) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := p.deps.Ranker.RankAt(issue, snap.Candidates, snap.Now)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Assignments[issue.ID] = res
			case errors.Is(err, model.ErrNoCandidates):
				report.Unassignable = append(report.Unassignable, issue.ID)
			case firstErr == nil:
				firstErr = fmt.Errorf("ranking %s: %w", issue.ID, err)
			}
		}(issue)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	slices.Sort(report.Unassignable)
	return nil
}

// Suggest fills in severity and tags from the issue text when the source
// carried none, persisting the change. It reports whether anything changed.
func (p *Pipeline) Suggest(issue *model.Issue, hasSeverity bool) (classify.Suggestion, bool, error) {
	before := *issue
	s := p.deps.Suggester.Apply(issue, hasSeverity)
	changed := before.Severity != issue.Severity || len(before.Tags) != len(issue.Tags)
	if !changed || p.deps.DryRun {
		return s, changed, nil
	}
	if err := p.deps.Store.UpsertIssue(issue); err != nil {
		return s, changed, fmt.Errorf("saving suggestion for %s: %w", issue.ID, err)
	}
	payload, _ := json.Marshal(s)
	p.logDecision(&store.Decision{
		IssueID:   issue.ID,
		Kind:      store.DecisionSuggestion,
		Summary:   fmt.Sprintf("severity %s (%s): %s", issue.Severity, s.ConfidenceLevel, s.Reasoning),
		Payload:   payload,
		CreatedAt: p.deps.Now(),
	})
	return s, changed, nil
}

// Run reacts to issue events from the broker and sweeps every sweepEvery
// until the context is cancelled. A zero interval disables periodic sweeps.
func (p *Pipeline) Run(ctx context.Context, sweepEvery time.Duration) error {
	if p.deps.Broker == nil {
		return fmt.Errorf("pipeline has no event broker")
	}
	events := p.deps.Broker.Subscribe(ctx)
	p.deps.Logger.Info("pipeline started, listening for events", "sweep_interval", sweepEvery)

	var tick <-chan time.Time
	if sweepEvery > 0 {
		ticker := time.NewTicker(sweepEvery)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			p.deps.Logger.Info("pipeline shutting down", "reason", ctx.Err())
			return ctx.Err()
		case <-tick:
			if _, err := p.Sweep(ctx); err != nil {
				p.deps.Logger.Error("sweep failed", "error", err)
			}
		case evt, ok := <-events:
			if !ok {
				p.deps.Logger.Info("event channel closed")
				return nil
			}
			p.handleEvent(ctx, evt)
		}
	}
}

func (p *Pipeline) handleEvent(ctx context.Context, evt pubsub.Event[github.IssueEvent]) {
	ie := evt.Payload
	logger := p.deps.Logger.With("issue", ie.Issue.ID, "event", string(evt.Type))

	if ie.Issue.Terminal() {
		logger.Debug("issue closed, nothing to dispatch")
		return
	}

	// Only new issues and changes that move the decision are worth a pass.
	if evt.Type != pubsub.Created &&
		!ie.Has(github.ChangeSeverityChanged) &&
		!ie.Has(github.ChangeAssigneeChanged) &&
		!ie.Has(github.ChangeStatusChanged) {
		logger.Debug("change does not affect dispatch")
		return
	}

	if evt.Type == pubsub.Created && !ie.SeverityLabeled {
		issue := ie.Issue
		if _, changed, err := p.Suggest(&issue, false); err != nil {
			logger.Error("severity suggestion failed", "error", err)
		} else if changed {
			logger.Info("suggested severity", "severity", issue.Severity.String())
		}
	}

	start := time.Now()
	if _, err := p.ProcessIssue(ctx, ie.Issue.ID); err != nil {
		logger.Error("failed to process issue", "error", err, "duration", time.Since(start))
		return
	}
	logger.Debug("event handled", "duration", time.Since(start))
}

// deliver sends the batch and logs one decision per notification. It
// reports whether delivery succeeded.
func (p *Pipeline) deliver(ctx context.Context, batch []model.Notification, now time.Time) bool {
	if len(batch) == 0 {
		return false
	}

	via := p.deps.Channel
	ok := true
	if p.deps.Notifier == nil {
		via = "none"
		ok = false
	} else if err := p.deps.Notifier.Notify(ctx, batch); err != nil {
		p.deps.Logger.Error("notification delivery failed", "error", err, "count", len(batch))
		via = "failed"
		ok = false
	}

	for _, n := range batch {
		payload, _ := json.Marshal(n)
		p.logDecision(&store.Decision{
			IssueID:      n.IssueID,
			Kind:         store.DecisionNotification,
			Summary:      n.Message,
			Payload:      payload,
			DeliveredVia: via,
			CreatedAt:    now,
		})
	}
	return ok
}

func (p *Pipeline) logAssessment(a model.EscalationAssessment, now time.Time) {
	payload, _ := json.Marshal(a)
	p.logDecision(&store.Decision{
		IssueID: a.IssueID,
		Kind:    store.DecisionEscalation,
		Summary: fmt.Sprintf("%s after %.1f business hours (risk %.2f, priority %.2f)",
			a.Level, a.BusinessHoursElapsed, a.RiskScore, a.PriorityScore),
		Payload:   payload,
		CreatedAt: now,
	})
}

func (p *Pipeline) logAssignment(res *model.AssignmentResult, now time.Time) {
	payload, _ := json.Marshal(res)
	p.logDecision(&store.Decision{
		IssueID: res.IssueID,
		Kind:    store.DecisionAssignment,
		Summary: fmt.Sprintf("suggest %s (%.2f): %s",
			res.Best.CandidateID, res.Best.Breakdown.Total, res.Best.Justification),
		Payload:   payload,
		CreatedAt: now,
	})
}

func (p *Pipeline) logDecision(d *store.Decision) {
	if err := p.deps.Store.LogDecision(d); err != nil {
		p.deps.Logger.Error("failed to log decision", "kind", d.Kind, "issue", d.IssueID, "error", err)
	}
}
