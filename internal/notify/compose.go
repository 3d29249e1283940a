package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jacklau/dispatch/internal/config"
	"github.com/jacklau/dispatch/internal/model"
)

var urgencyWeight = map[model.Urgency]int{
	model.UrgencyHigh:   3,
	model.UrgencyMedium: 2,
	model.UrgencyLow:    1,
}

var typeWeight = map[model.NotificationType]int{
	model.NotifyEscalation:        3,
	model.NotifyPatternDetected:   2,
	model.NotifyAssignmentNeeded:  2,
	model.NotifyWorkloadImbalance: 1,
}

// ComposeInput is the snapshot a feed is composed from.
type ComposeInput struct {
	Now         time.Time
	Assessments []model.EscalationAssessment
	// Issues supplies titles, assignment state and creation times.
	Issues []model.Issue
	// Users supplies roles for targeting.
	Users    []model.Candidate
	Workload model.TeamWorkloadSnapshot
	// Suggestions maps issue id to a ranked assignment, if one was computed.
	Suggestions map[string]*model.AssignmentResult
}

// Composer turns assessments and workload into a ranked, capped feed.
type Composer struct {
	policy config.Policy
	newID  func() string
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithIDGenerator overrides notification id generation.
func WithIDGenerator(gen func() string) ComposerOption {
	return func(c *Composer) { c.newID = gen }
}

// NewComposer creates a Composer for the policy.
func NewComposer(p config.Policy, opts ...ComposerOption) *Composer {
	c := &Composer{policy: p, newID: uuid.NewString}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type candidate struct {
	n        model.Notification
	subject  string
	priority float64
}

func (c candidate) rank() int {
	return urgencyWeight[c.n.Urgency] * typeWeight[c.n.Type]
}

// Compose builds the notification feed. Output is ordered most important
// first and holds at most max_notifications entries.
func (c *Composer) Compose(in ComposeInput) []model.Notification {
	issues := make(map[string]model.Issue, len(in.Issues))
	for _, iss := range in.Issues {
		issues[iss.ID] = iss
	}
	priorities := make(map[string]float64, len(in.Assessments))
	for _, a := range in.Assessments {
		priorities[a.IssueID] = a.PriorityScore
	}
	admins := usersWithRole(in.Users, model.RoleAdmin)
	staff := usersWithRole(in.Users, model.RoleMaintainer, model.RoleAdmin)

	var all []candidate
	all = append(all, c.escalations(in, issues, staff, admins)...)
	all = append(all, c.assignmentsNeeded(in, priorities, staff)...)
	all = append(all, c.imbalances(in, admins)...)
	all = append(all, c.patterns(in, admins)...)

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.rank() != b.rank() {
			return a.rank() > b.rank()
		}
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		if a.n.Type != b.n.Type {
			return a.n.Type < b.n.Type
		}
		return a.subject < b.subject
	})

	seen := make(map[string]bool, len(all))
	out := make([]model.Notification, 0, len(all))
	for _, cand := range all {
		key := string(cand.n.Type) + "\x00" + cand.subject
		if seen[key] {
			continue
		}
		seen[key] = true
		if c.policy.MaxNotifications > 0 && len(out) >= c.policy.MaxNotifications {
			break
		}
		n := cand.n
		n.ID = c.newID()
		n.CreatedAt = in.Now
		out = append(out, n)
	}
	return out
}

func (c *Composer) escalations(in ComposeInput, issues map[string]model.Issue, staff, admins []string) []candidate {
	var out []candidate
	for _, a := range in.Assessments {
		if a.Level < model.LevelWarning || a.Status == model.StatusDone {
			continue
		}
		var targets []string
		if a.AssigneeID != "" {
			targets = []string{a.AssigneeID}
		} else {
			targets = append(targets, staff...)
		}
		if a.Level == model.LevelUrgent {
			targets = append(targets, admins...)
		}

		out = append(out, candidate{
			subject:  a.IssueID,
			priority: a.PriorityScore,
			n: model.Notification{
				Type:          model.NotifyEscalation,
				Urgency:       UrgencyForLevel(a.Level),
				TargetUserIDs: uniqueSorted(targets),
				IssueID:       a.IssueID,
				Message:       escalationMessage(a, issues[a.IssueID]),
				Data: map[string]any{
					"level":          a.Level.String(),
					"severity":       a.Severity.String(),
					"business_hours": a.BusinessHoursElapsed,
					"risk_score":     a.RiskScore,
					"risk_factors":   append([]string{}, a.RiskFactors...),
					"priority_score": a.PriorityScore,
				},
			},
		})
	}
	return out
}

func (c *Composer) assignmentsNeeded(in ComposeInput, priorities map[string]float64, staff []string) []candidate {
	var out []candidate
	for _, iss := range in.Issues {
		if iss.Terminal() || iss.Assigned() || iss.Severity < model.SeverityHigh {
			continue
		}
		urgency := model.UrgencyMedium
		if iss.Severity == model.SeverityCritical {
			urgency = model.UrgencyHigh
		}
		data := map[string]any{"severity": iss.Severity.String()}
		msg := fmt.Sprintf("%s issue %s %q has no assignee", iss.Severity, iss.ID, iss.Title)
		if s := in.Suggestions[iss.ID]; s != nil {
			data["suggested_assignee"] = s.Best.CandidateID
			data["suggested_score"] = s.Best.Breakdown.Total
			data["justification"] = s.Best.Justification
			msg += fmt.Sprintf("; suggested: %s (%s)", s.Best.Name, s.Best.Justification)
		}
		out = append(out, candidate{
			subject:  iss.ID,
			priority: priorities[iss.ID],
			n: model.Notification{
				Type:          model.NotifyAssignmentNeeded,
				Urgency:       urgency,
				TargetUserIDs: uniqueSorted(staff),
				IssueID:       iss.ID,
				Message:       msg,
				Data:          data,
			},
		})
	}
	return out
}

func (c *Composer) imbalances(in ComposeInput, admins []string) []candidate {
	avg := in.Workload.Average()
	limit := c.policy.ImbalanceRatio * avg
	var out []candidate
	for _, m := range in.Workload.Members {
		if m.Role == model.RoleReporter {
			continue
		}
		if float64(m.OpenCount) <= limit || m.OpenCount <= c.policy.ImbalanceFloor {
			continue
		}
		name := m.Name
		if name == "" {
			name = m.UserID
		}
		out = append(out, candidate{
			subject: m.UserID,
			n: model.Notification{
				Type:          model.NotifyWorkloadImbalance,
				Urgency:       model.UrgencyMedium,
				TargetUserIDs: uniqueSorted(append([]string{m.UserID}, admins...)),
				Message: fmt.Sprintf("%s has %d open issues, %.1fx the team average of %.1f",
					name, m.OpenCount, float64(m.OpenCount)/avg, avg),
				Data: map[string]any{
					"user_id":      m.UserID,
					"open_count":   m.OpenCount,
					"team_average": avg,
				},
			},
		})
	}
	return out
}

func (c *Composer) patterns(in ComposeInput, admins []string) []candidate {
	from := in.Now.Add(-c.policy.PatternWindow())
	bySeverity := make(map[model.Severity][]string)
	for _, iss := range in.Issues {
		if iss.Terminal() || !iss.CreatedAt.After(from) || iss.CreatedAt.After(in.Now) {
			continue
		}
		bySeverity[iss.Severity] = append(bySeverity[iss.Severity], iss.ID)
	}

	var out []candidate
	for _, sev := range model.Severities {
		ids := bySeverity[sev]
		if len(ids) < c.policy.PatternMinCount {
			continue
		}
		sort.Strings(ids)
		urgency := model.UrgencyMedium
		if sev >= model.SeverityHigh {
			urgency = model.UrgencyHigh
		}
		out = append(out, candidate{
			subject: sev.String(),
			n: model.Notification{
				Type:          model.NotifyPatternDetected,
				Urgency:       urgency,
				TargetUserIDs: uniqueSorted(admins),
				Message: fmt.Sprintf("%d %s issues opened in the last %s: %s",
					len(ids), sev, c.policy.PatternWindow(), strings.Join(ids, ", ")),
				Data: map[string]any{
					"severity":  sev.String(),
					"count":     len(ids),
					"issue_ids": ids,
				},
			},
		})
	}
	return out
}

// UrgencyForLevel maps an escalation level to delivery urgency.
func UrgencyForLevel(l model.EscalationLevel) model.Urgency {
	switch l {
	case model.LevelUrgent:
		return model.UrgencyHigh
	case model.LevelEscalate:
		return model.UrgencyMedium
	default:
		return model.UrgencyLow
	}
}

func escalationMessage(a model.EscalationAssessment, iss model.Issue) string {
	subject := "issue " + a.IssueID
	if iss.Title != "" {
		subject = fmt.Sprintf("issue %s %q", a.IssueID, iss.Title)
	}
	msg := fmt.Sprintf("%s %s reached %s after %.1f business hours", a.Severity, subject, a.Level, a.BusinessHoursElapsed)
	if a.AssigneeID == "" {
		msg += " and is unassigned"
	}
	if len(a.RiskFactors) > 0 {
		msg += fmt.Sprintf(" (risk %.2f: %s)", a.RiskScore, strings.Join(a.RiskFactors, ", "))
	}
	return msg
}

func usersWithRole(users []model.Candidate, roles ...model.Role) []string {
	var out []string
	for _, u := range users {
		if !u.Active {
			continue
		}
		for _, r := range roles {
			if u.Role == r {
				out = append(out, u.ID)
				break
			}
		}
	}
	return out
}

func uniqueSorted(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
