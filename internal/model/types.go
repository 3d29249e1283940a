// Package model holds the plain data types exchanged between the host and the
// decision engine. Nothing here has behavior beyond small helpers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Severity is the impact tier of an issue.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// Severities lists every severity from lowest to highest.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// String returns the canonical upper-case name.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether s is one of the defined severities.
func (s Severity) Valid() bool {
	return s >= SeverityLow && s <= SeverityCritical
}

// ParseSeverity parses a severity name, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return SeverityLow, nil
	case "MEDIUM":
		return SeverityMedium, nil
	case "HIGH":
		return SeverityHigh, nil
	case "CRITICAL":
		return SeverityCritical, nil
	default:
		return SeverityLow, fmt.Errorf("unknown severity %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Status is the workflow state of an issue. DONE is terminal.
type Status int

const (
	StatusOpen Status = iota
	StatusTriaged
	StatusInProgress
	StatusDone
)

// String returns the canonical upper-case name.
func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "OPEN"
	case StatusTriaged:
		return "TRIAGED"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus parses a status name, case-insensitively. Spaces and dashes are
// accepted in place of underscores.
func ParseStatus(s string) (Status, error) {
	norm := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToUpper(strings.TrimSpace(s)))
	switch norm {
	case "OPEN":
		return StatusOpen, nil
	case "TRIAGED":
		return StatusTriaged, nil
	case "IN_PROGRESS":
		return StatusInProgress, nil
	case "DONE":
		return StatusDone, nil
	default:
		return StatusOpen, fmt.Errorf("unknown status %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Role is a team member's role. Reporters are never assignees.
type Role int

const (
	RoleReporter Role = iota
	RoleMaintainer
	RoleAdmin
)

// String returns the canonical upper-case name.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "ADMIN"
	case RoleMaintainer:
		return "MAINTAINER"
	case RoleReporter:
		return "REPORTER"
	default:
		return "UNKNOWN"
	}
}

// ParseRole parses a role name, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ADMIN":
		return RoleAdmin, nil
	case "MAINTAINER":
		return RoleMaintainer, nil
	case "REPORTER":
		return RoleReporter, nil
	default:
		return RoleReporter, fmt.Errorf("unknown role %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Issue is a snapshot of a work item supplied by the host.
type Issue struct {
	ID              string     `json:"id" yaml:"id"`
	Title           string     `json:"title" yaml:"title"`
	Description     string     `json:"description" yaml:"description"`
	Tags            []string   `json:"tags,omitempty" yaml:"tags"`
	Severity        Severity   `json:"severity" yaml:"severity"`
	Status          Status     `json:"status" yaml:"status"`
	CreatedAt       time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" yaml:"updated_at"`
	StatusChangedAt *time.Time `json:"status_changed_at,omitempty" yaml:"status_changed_at"`
	AssigneeID      string     `json:"assignee_id,omitempty" yaml:"assignee_id"`
	ReporterID      string     `json:"reporter_id" yaml:"reporter_id"`
}

// Terminal reports whether the issue is DONE.
func (i Issue) Terminal() bool { return i.Status == StatusDone }

// Assigned reports whether the issue has an assignee.
func (i Issue) Assigned() bool { return i.AssigneeID != "" }

// StatusSince returns the time of the last status change, falling back to
// creation time when the status never changed.
func (i Issue) StatusSince() time.Time {
	if i.StatusChangedAt != nil && !i.StatusChangedAt.IsZero() {
		return *i.StatusChangedAt
	}
	return i.CreatedAt
}

// Text returns the lower-cased text used for keyword matching.
func (i Issue) Text() string {
	parts := make([]string, 0, 2+len(i.Tags))
	parts = append(parts, i.Title, i.Description)
	parts = append(parts, i.Tags...)
	return strings.ToLower(strings.Join(parts, " "))
}

// Validate checks the snapshot invariants.
func (i Issue) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("issue id is required")
	}
	if !i.Severity.Valid() {
		return fmt.Errorf("issue %s: invalid severity %d", i.ID, i.Severity)
	}
	if !i.UpdatedAt.IsZero() && i.UpdatedAt.Before(i.CreatedAt) {
		return fmt.Errorf("issue %s: updated_at precedes created_at", i.ID)
	}
	return nil
}

// ResolvedIssue is one entry of a candidate's resolution history.
type ResolvedIssue struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description" yaml:"description"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags"`
	Severity    Severity  `json:"severity" yaml:"severity"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	ResolvedAt  time.Time `json:"resolved_at" yaml:"resolved_at"`
}

// Text returns the lower-cased text used for keyword matching. Tags are
// included as for Issue.Text.
func (r ResolvedIssue) Text() string {
	parts := make([]string, 0, 2+len(r.Tags))
	parts = append(parts, r.Title, r.Description)
	parts = append(parts, r.Tags...)
	return strings.ToLower(strings.Join(parts, " "))
}

// Candidate is a potential assignee along with the history summaries the host
// resolved for it.
type Candidate struct {
	ID           string          `json:"id" yaml:"id"`
	Name         string          `json:"name" yaml:"name"`
	Role         Role            `json:"role" yaml:"role"`
	Active       bool            `json:"active" yaml:"active"`
	OpenAssigned int             `json:"open_assigned" yaml:"open_assigned"`
	Activity     []time.Time     `json:"activity,omitempty" yaml:"activity"`
	History      []ResolvedIssue `json:"history,omitempty" yaml:"history"`
}

// Eligible reports whether the candidate may be assigned work.
func (c Candidate) Eligible() bool {
	return c.Active && c.Role != RoleReporter
}

// DisplayName returns the name, or the id when no name is set.
func (c Candidate) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}
