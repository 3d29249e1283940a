package github

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/jacklau/dispatch/internal/model"
)

// IssueKey returns the dispatch issue id for a GitHub issue: "owner/repo#N".
func IssueKey(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s#%d", owner, repo, number)
}

// ParseIssueKey splits an id produced by IssueKey.
func ParseIssueKey(key string) (owner, repo string, number int, err error) {
	slug, num, ok := strings.Cut(key, "#")
	if !ok {
		return "", "", 0, fmt.Errorf("issue id %q is not of the form owner/repo#N", key)
	}
	owner, repo, ok = strings.Cut(slug, "/")
	if !ok || owner == "" || repo == "" {
		return "", "", 0, fmt.Errorf("issue id %q is not of the form owner/repo#N", key)
	}
	number, err = strconv.Atoi(num)
	if err != nil || number <= 0 {
		return "", "", 0, fmt.Errorf("issue id %q has invalid number", key)
	}
	return owner, repo, number, nil
}

// builtinSeverityLabels are recognized on every repo. Keys are normalized
// with normalizeLabel.
var builtinSeverityLabels = map[string]model.Severity{
	"critical":          model.SeverityCritical,
	"severity:critical": model.SeverityCritical,
	"sev:critical":      model.SeverityCritical,
	"p0":                model.SeverityCritical,
	"severity:high":     model.SeverityHigh,
	"sev:high":          model.SeverityHigh,
	"p1":                model.SeverityHigh,
	"severity:medium":   model.SeverityMedium,
	"sev:medium":        model.SeverityMedium,
	"p2":                model.SeverityMedium,
	"severity:low":      model.SeverityLow,
	"sev:low":           model.SeverityLow,
	"p3":                model.SeverityLow,
}

var statusLabels = map[string]model.Status{
	"triaged":            model.StatusTriaged,
	"status:triaged":     model.StatusTriaged,
	"in progress":        model.StatusInProgress,
	"in-progress":        model.StatusInProgress,
	"status:in-progress": model.StatusInProgress,
	"status:in progress": model.StatusInProgress,
	"wip":                model.StatusInProgress,
}

// normalizeLabel lower-cases a label and collapses "severity: high" and
// "severity/high" into "severity:high".
func normalizeLabel(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	l = strings.Replace(l, "/", ":", 1)
	if prefix, rest, ok := strings.Cut(l, ":"); ok {
		l = strings.TrimSpace(prefix) + ":" + strings.TrimSpace(rest)
	}
	return l
}

// LabelMapper turns GitHub labels into severity, status and tags.
type LabelMapper struct {
	severity map[string]model.Severity
}

// NewLabelMapper builds a mapper from the built-in severity labels plus the
// repo-specific extras, which take precedence. Extra values must be severity
// names.
func NewLabelMapper(extra map[string]string) (*LabelMapper, error) {
	m := &LabelMapper{severity: make(map[string]model.Severity, len(builtinSeverityLabels)+len(extra))}
	for k, v := range builtinSeverityLabels {
		m.severity[k] = v
	}
	for label, name := range extra {
		sev, err := model.ParseSeverity(name)
		if err != nil {
			return nil, fmt.Errorf("severity label %q: %w", label, err)
		}
		m.severity[normalizeLabel(label)] = sev
	}
	return m, nil
}

// Map returns the highest severity found among labels, whether any severity
// label was present, the workflow status implied by labels (OPEN when none)
// and the remaining labels as lower-case tags.
func (m *LabelMapper) Map(labels []string) (sev model.Severity, labeled bool, status model.Status, tags []string) {
	status = model.StatusOpen
	for _, raw := range labels {
		l := normalizeLabel(raw)
		if s, ok := m.severity[l]; ok {
			if !labeled || s > sev {
				sev = s
			}
			labeled = true
			continue
		}
		if st, ok := statusLabels[l]; ok {
			if st > status {
				status = st
			}
			continue
		}
		if !slices.Contains(tags, l) {
			tags = append(tags, l)
		}
	}
	return sev, labeled, status, tags
}

// Converted is a GitHub issue mapped onto the dispatch model.
type Converted struct {
	Issue           model.Issue
	Number          int
	SeverityLabeled bool
	Labels          []string
}

// Convert maps a go-github issue. Closed issues become DONE with the close
// time as their status change.
func (m *LabelMapper) Convert(owner, repo string, gh *gogithub.Issue) Converted {
	c := Converted{Number: gh.GetNumber()}
	for _, label := range gh.Labels {
		c.Labels = append(c.Labels, label.GetName())
	}

	issue := model.Issue{
		ID:          IssueKey(owner, repo, gh.GetNumber()),
		Title:       gh.GetTitle(),
		Description: gh.GetBody(),
	}
	issue.Severity, c.SeverityLabeled, issue.Status, issue.Tags = m.Map(c.Labels)

	if gh.User != nil {
		issue.ReporterID = gh.User.GetLogin()
	}
	if gh.Assignee != nil {
		issue.AssigneeID = gh.Assignee.GetLogin()
	} else if len(gh.Assignees) > 0 {
		issue.AssigneeID = gh.Assignees[0].GetLogin()
	}
	if gh.CreatedAt != nil {
		issue.CreatedAt = gh.CreatedAt.Time
	}
	if gh.UpdatedAt != nil {
		issue.UpdatedAt = gh.UpdatedAt.Time
	}

	if gh.GetState() == "closed" {
		issue.Status = model.StatusDone
		if gh.ClosedAt != nil {
			closed := gh.ClosedAt.Time
			issue.StatusChangedAt = &closed
			if closed.After(issue.UpdatedAt) {
				issue.UpdatedAt = closed
			}
		}
	}
	if issue.UpdatedAt.Before(issue.CreatedAt) {
		issue.UpdatedAt = issue.CreatedAt
	}

	c.Issue = issue
	return c
}

// ChangeType describes what changed on an issue.
type ChangeType int

const (
	ChangeNew             ChangeType = iota // Newly seen issue
	ChangeTitleEdited                       // Title was modified
	ChangeBodyEdited                        // Description was modified
	ChangeStatusChanged                     // Workflow status changed
	ChangeLabelsChanged                     // Tags were added/removed
	ChangeSeverityChanged                   // Severity label changed
	ChangeAssigneeChanged                   // Assignee changed
)

// String returns a human-readable name for the change type.
func (c ChangeType) String() string {
	switch c {
	case ChangeNew:
		return "new"
	case ChangeTitleEdited:
		return "title_edited"
	case ChangeBodyEdited:
		return "body_edited"
	case ChangeStatusChanged:
		return "status_changed"
	case ChangeLabelsChanged:
		return "labels_changed"
	case ChangeSeverityChanged:
		return "severity_changed"
	case ChangeAssigneeChanged:
		return "assignee_changed"
	default:
		return "unknown"
	}
}

// IssueEvent is emitted when an issue is created or changed.
type IssueEvent struct {
	Repo            string
	Number          int
	Issue           model.Issue
	Changes         []ChangeType
	SeverityLabeled bool
	ObservedAt      time.Time
}

// Has reports whether the event carries the given change.
func (e IssueEvent) Has(ct ChangeType) bool {
	return slices.Contains(e.Changes, ct)
}

// DiffSnapshot compares a stored issue against an incoming one and returns
// which fields changed.
func DiffSnapshot(stored, incoming *model.Issue) []ChangeType {
	var changes []ChangeType

	if stored.Title != incoming.Title {
		changes = append(changes, ChangeTitleEdited)
	}
	if stored.Description != incoming.Description {
		changes = append(changes, ChangeBodyEdited)
	}
	if stored.Status != incoming.Status {
		changes = append(changes, ChangeStatusChanged)
	}
	if !labelsEqual(stored.Tags, incoming.Tags) {
		changes = append(changes, ChangeLabelsChanged)
	}
	if stored.Severity != incoming.Severity {
		changes = append(changes, ChangeSeverityChanged)
	}
	if stored.AssigneeID != incoming.AssigneeID {
		changes = append(changes, ChangeAssigneeChanged)
	}
	return changes
}

// labelsEqual returns true if two label slices contain the same labels
// (order-independent).
func labelsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sortedA := slices.Clone(a)
	sortedB := slices.Clone(b)
	slices.Sort(sortedA)
	slices.Sort(sortedB)
	return slices.Equal(sortedA, sortedB)
}
