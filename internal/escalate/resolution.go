package escalate

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jacklau/dispatch/internal/model"
)

// Base resolution hours by severity.
var resolutionBaseHours = map[model.Severity]float64{
	model.SeverityLow:      24,
	model.SeverityMedium:   8,
	model.SeverityHigh:     4,
	model.SeverityCritical: 2,
}

// resolutionTagFactors are checked in order; the first tag present wins.
var resolutionTagFactors = []struct {
	tags   []string
	factor float64
	note   string
}{
	{[]string{"ui"}, 0.7, "ui work is usually quicker"},
	{[]string{"backend", "database"}, 1.5, "backend work usually takes longer"},
	{[]string{"security"}, 2.0, "security work is usually slower"},
}

const resolutionConfidence = 0.75

// ResolutionEstimate is a rule-based guess of how long an issue will take.
type ResolutionEstimate struct {
	IssueID             string    `json:"issue_id"`
	PredictedHours      int       `json:"predicted_hours"`
	Confidence          float64   `json:"confidence"`
	Reasoning           string    `json:"reasoning"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
}

// EstimateResolution predicts resolution time from severity and tags. The
// prediction is wall-clock hours from now, never less than one.
func EstimateResolution(issue model.Issue, now time.Time) ResolutionEstimate {
	hours, ok := resolutionBaseHours[issue.Severity]
	if !ok {
		hours = resolutionBaseHours[model.SeverityMedium]
	}
	reason := fmt.Sprintf("based on %s severity", issue.Severity)

	tags := make([]string, len(issue.Tags))
	for i, t := range issue.Tags {
		tags[i] = strings.ToLower(strings.TrimSpace(t))
	}
	for _, f := range resolutionTagFactors {
		if slices.ContainsFunc(f.tags, func(t string) bool { return slices.Contains(tags, t) }) {
			hours *= f.factor
			reason += "; " + f.note
			break
		}
	}

	predicted := max(1, int(hours))
	return ResolutionEstimate{
		IssueID:             issue.ID,
		PredictedHours:      predicted,
		Confidence:          resolutionConfidence,
		Reasoning:           reason,
		EstimatedCompletion: now.Add(time.Duration(predicted) * time.Hour),
	}
}
