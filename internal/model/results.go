package model

import "time"

// ScoreBreakdown holds the four sub-scores for one candidate, each in [0,10],
// and their weighted total.
type ScoreBreakdown struct {
	Expertise    float64 `json:"expertise"`
	Workload     float64 `json:"workload"`
	Availability float64 `json:"availability"`
	Performance  float64 `json:"performance"`
	Total        float64 `json:"total"`
}

// CandidateScore is a ranked candidate with its breakdown.
type CandidateScore struct {
	CandidateID   string         `json:"candidate_id"`
	Name          string         `json:"name"`
	OpenAssigned  int            `json:"open_assigned"`
	Breakdown     ScoreBreakdown `json:"breakdown"`
	Justification string         `json:"justification"`
}

// AssignmentResult is the outcome of ranking candidates for an issue.
type AssignmentResult struct {
	IssueID      string           `json:"issue_id"`
	Best         CandidateScore   `json:"best"`
	Alternatives []CandidateScore `json:"alternatives"`
	Breakdown    []CandidateScore `json:"breakdown"`
}

// EscalationLevel is the ordered urgency classification of an issue.
type EscalationLevel int

const (
	LevelNone EscalationLevel = iota
	LevelWarning
	LevelEscalate
	LevelUrgent
)

// String returns the lower-case level name.
func (l EscalationLevel) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelWarning:
		return "warning"
	case LevelEscalate:
		return "escalate"
	case LevelUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l EscalationLevel) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// Risk factor labels, in the order the classifier evaluates them.
const (
	RiskUnassignedHighSeverity = "unassigned_high_severity"
	RiskSeverityCluster        = "severity_cluster"
	RiskWeekend                = "weekend"
	RiskNewReporter            = "new_reporter"
	RiskUrgencyKeywords        = "urgency_keywords"
)

// EscalationAssessment is the classifier output for one issue. It is only
// valid for the issue state and clock it was computed from.
type EscalationAssessment struct {
	IssueID              string          `json:"issue_id"`
	Severity             Severity        `json:"severity"`
	Status               Status          `json:"status"`
	AssigneeID           string          `json:"assignee_id,omitempty"`
	BusinessHoursElapsed float64         `json:"business_hours_elapsed"`
	Level                EscalationLevel `json:"escalation_level"`
	RiskScore            float64         `json:"risk_score"`
	RiskFactors          []string        `json:"risk_factors"`
	PriorityScore        float64         `json:"priority_score"`
}

// MemberLoad is one member's entry in a team workload snapshot.
type MemberLoad struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	OpenCount int    `json:"open_count"`
}

// TeamWorkloadSnapshot lists per-member open-issue counts.
type TeamWorkloadSnapshot struct {
	Members []MemberLoad `json:"members"`
}

// Average returns the mean open count across assignable members, or 0 when
// there are none.
func (t TeamWorkloadSnapshot) Average() float64 {
	var total, n int
	for _, m := range t.Members {
		if m.Role == RoleReporter {
			continue
		}
		total += m.OpenCount
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}

// WorkloadFromCandidates builds a snapshot from candidate records.
func WorkloadFromCandidates(cands []Candidate) TeamWorkloadSnapshot {
	snap := TeamWorkloadSnapshot{Members: make([]MemberLoad, 0, len(cands))}
	for _, c := range cands {
		if !c.Active {
			continue
		}
		snap.Members = append(snap.Members, MemberLoad{
			UserID:    c.ID,
			Name:      c.DisplayName(),
			Role:      c.Role,
			OpenCount: c.OpenAssigned,
		})
	}
	return snap
}

// NotificationType identifies the kind of notification.
type NotificationType string

const (
	NotifyEscalation        NotificationType = "escalation"
	NotifyWorkloadImbalance NotificationType = "workload_imbalance"
	NotifyPatternDetected   NotificationType = "pattern_detected"
	NotifyAssignmentNeeded  NotificationType = "assignment_needed"
)

// Urgency is the delivery urgency of a notification.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Notification is a single composed alert. IDs are not stable across runs.
type Notification struct {
	ID            string           `json:"id"`
	Type          NotificationType `json:"type"`
	Urgency       Urgency          `json:"urgency"`
	TargetUserIDs []string         `json:"target_user_ids"`
	IssueID       string           `json:"issue_id,omitempty"`
	Message       string           `json:"message"`
	Data          map[string]any   `json:"data,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}
