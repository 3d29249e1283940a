// Package escalate classifies how urgently an issue needs attention.
package escalate

import (
	"errors"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jacklau/dispatch/internal/config"
	"github.com/jacklau/dispatch/internal/keyword"
	"github.com/jacklau/dispatch/internal/model"
	"github.com/jacklau/dispatch/internal/timemath"
)

// Risk factor weights.
const (
	riskUnassignedHighSeverity = 0.3
	riskSeverityCluster        = 0.2
	riskWeekend                = 0.1
	riskNewReporter            = 0.1
	riskUrgencyKeywords        = 0.2

	newReporterMaxIssues = 2
	urgencyKeywordsMin   = 2
	maxPriority          = 10.0
)

var severityWeight = map[model.Severity]float64{
	model.SeverityCritical: 1.0,
	model.SeverityHigh:     0.7,
	model.SeverityMedium:   0.4,
	model.SeverityLow:      0.2,
}

var statusFactor = map[model.Status]float64{
	model.StatusOpen:       1.3,
	model.StatusTriaged:    1.0,
	model.StatusInProgress: 0.8,
	model.StatusDone:       0.0,
}

// EscalationContext is the snapshot an issue is classified against.
type EscalationContext struct {
	Now time.Time
	// OpenIssues is the team's current issue list, used for cluster detection.
	OpenIssues []model.Issue
	// ReporterIssueCounts maps reporter id to the number of issues they have
	// ever filed. Reporters absent from the map contribute no signal.
	ReporterIssueCounts map[string]int
}

// Classifier assigns escalation levels, risk and priority.
type Classifier struct {
	policy   config.Policy
	keywords []urgencyKeyword
	logger   *slog.Logger
}

type urgencyKeyword struct {
	word string
	re   *regexp.Regexp
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the logger used to flag clamped timestamps.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// NewClassifier creates a Classifier for the policy.
func NewClassifier(p config.Policy, opts ...Option) *Classifier {
	c := &Classifier{policy: p, logger: slog.Default()}
	seen := make(map[string]bool)
	for _, raw := range p.UrgencyKeywords {
		w, ok := keyword.Normalize(raw)
		if !ok || seen[w] {
			continue
		}
		seen[w] = true
		c.keywords = append(c.keywords, urgencyKeyword{word: w, re: keyword.Pattern(w)})
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify assesses a single issue.
func (c *Classifier) Classify(issue model.Issue, ec EscalationContext) model.EscalationAssessment {
	a := model.EscalationAssessment{
		IssueID:     issue.ID,
		Severity:    issue.Severity,
		Status:      issue.Status,
		AssigneeID:  issue.AssigneeID,
		RiskFactors: []string{},
	}
	if issue.Terminal() {
		return a
	}

	elapsed, err := timemath.Between(issue.StatusSince(), ec.Now)
	if errors.Is(err, timemath.ErrInvalidTimestamp) {
		c.logger.Warn("status timestamp after evaluation time, clamping to zero",
			"issue", issue.ID,
			"since", issue.StatusSince(),
			"now", ec.Now,
		)
	}
	a.BusinessHoursElapsed = elapsed
	a.Level = c.LevelFor(issue.Severity, elapsed)

	a.RiskScore, a.RiskFactors = c.risk(issue, ec)
	if a.RiskScore > c.policy.RiskForceThreshold && a.Level < model.LevelEscalate {
		a.Level = model.LevelEscalate
	}

	a.PriorityScore = Priority(issue, elapsed)
	return a
}

// ClassifyAll assesses every issue, ordered by priority descending then id.
// When ec.OpenIssues is empty the batch itself is used for cluster detection.
func (c *Classifier) ClassifyAll(issues []model.Issue, ec EscalationContext) []model.EscalationAssessment {
	if len(ec.OpenIssues) == 0 {
		ec.OpenIssues = issues
	}
	out := make([]model.EscalationAssessment, 0, len(issues))
	for _, iss := range issues {
		out = append(out, c.Classify(iss, ec))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PriorityScore != out[j].PriorityScore {
			return out[i].PriorityScore > out[j].PriorityScore
		}
		return out[i].IssueID < out[j].IssueID
	})
	return out
}

// LevelFor returns the highest tier crossed by elapsed business hours.
func (c *Classifier) LevelFor(sev model.Severity, elapsed float64) model.EscalationLevel {
	th := c.policy.ThresholdsFor(sev)
	switch {
	case elapsed >= th.Urgent:
		return model.LevelUrgent
	case elapsed >= th.Escalate:
		return model.LevelEscalate
	case elapsed >= th.Warning:
		return model.LevelWarning
	default:
		return model.LevelNone
	}
}

func (c *Classifier) risk(issue model.Issue, ec EscalationContext) (float64, []string) {
	var score float64
	factors := []string{}
	add := func(label string, w float64) {
		score += w
		factors = append(factors, label)
	}

	if !issue.Assigned() && issue.Severity >= model.SeverityHigh {
		add(model.RiskUnassignedHighSeverity, riskUnassignedHighSeverity)
	}
	if sameSeverityOthers(issue, ec.OpenIssues) >= c.policy.PatternMinCount {
		add(model.RiskSeverityCluster, riskSeverityCluster)
	}
	if wd := ec.Now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		add(model.RiskWeekend, riskWeekend)
	}
	if n, ok := ec.ReporterIssueCounts[issue.ReporterID]; ok && issue.ReporterID != "" && n <= newReporterMaxIssues {
		add(model.RiskNewReporter, riskNewReporter)
	}
	if len(c.UrgencyKeywords(issue.Text())) >= urgencyKeywordsMin {
		add(model.RiskUrgencyKeywords, riskUrgencyKeywords)
	}

	score = math.Min(score, 1.0)
	return math.Round(score*100) / 100, factors
}

// UrgencyKeywords returns the distinct urgency keywords present in text.
func (c *Classifier) UrgencyKeywords(text string) []string {
	text = strings.ToLower(text)
	var found []string
	for _, kw := range c.keywords {
		if kw.re.MatchString(text) {
			found = append(found, kw.word)
		}
	}
	return found
}

func sameSeverityOthers(issue model.Issue, open []model.Issue) int {
	var n int
	for _, o := range open {
		if o.ID == issue.ID || o.Terminal() || o.Severity != issue.Severity {
			continue
		}
		n++
	}
	return n
}

// Priority is the sort key of an issue given its elapsed business hours.
func Priority(issue model.Issue, elapsed float64) float64 {
	assignment := 0.8
	if !issue.Assigned() {
		assignment = 1.2
	}
	age := 1 + math.Min(math.Max(elapsed, 0)/24, 2)*0.3
	p := severityWeight[issue.Severity] * age * assignment * statusFactor[issue.Status]
	return math.Min(p, maxPriority)
}
