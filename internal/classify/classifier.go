// Package classify suggests a severity and tags for issues that arrive
// without them, using fixed keyword tiers.
package classify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jacklau/dispatch/internal/keyword"
	"github.com/jacklau/dispatch/internal/model"
)

// DefaultTag is suggested when no category keyword matches.
const DefaultTag = "general"

// severityTiers are checked highest first; the first tier with a hit wins.
var severityTiers = []struct {
	severity model.Severity
	words    []string
}{
	{model.SeverityCritical, []string{"critical", "urgent", "crash", "crashes", "down", "broken", "outage", "data loss"}},
	{model.SeverityHigh, []string{"important", "high", "major", "serious", "regression"}},
	{model.SeverityMedium, []string{"medium", "moderate", "normal"}},
}

// DefaultCategories maps tag names to their keywords.
func DefaultCategories() map[string][]string {
	return map[string][]string{
		"bug":         {"error", "crash", "crashes", "broken", "not working", "fails", "exception"},
		"feature":     {"enhancement", "new", "add", "feature", "improve"},
		"ui":          {"interface", "design", "layout", "visual", "display"},
		"performance": {"slow", "timeout", "lag", "performance", "speed"},
		"security":    {"security", "vulnerability", "authentication", "authorization"},
	}
}

// Suggestion is the classifier output for one issue.
type Suggestion struct {
	Severity        model.Severity `json:"severity"`
	Tags            []string       `json:"tags"`
	Confidence      float64        `json:"confidence"`
	ConfidenceLevel string         `json:"confidence_level"` // "suggested", "possible", or "uncertain"
	Reasoning       string         `json:"reasoning"`
}

type matcher struct {
	word string
	re   *regexp.Regexp
}

func compile(words []string) []matcher {
	out := make([]matcher, 0, len(words))
	for _, raw := range words {
		w, ok := keyword.Normalize(raw)
		if !ok {
			continue
		}
		out = append(out, matcher{word: w, re: keyword.Pattern(w)})
	}
	return out
}

func firstHit(ms []matcher, text string) (string, bool) {
	for _, m := range ms {
		if m.re.MatchString(text) {
			return m.word, true
		}
	}
	return "", false
}

type tier struct {
	severity model.Severity
	words    []matcher
}

// Classifier holds the compiled keyword tables.
type Classifier struct {
	tiers      []tier
	categories []string
	byCategory map[string][]matcher
}

// NewClassifier compiles categories; nil uses DefaultCategories.
func NewClassifier(categories map[string][]string) *Classifier {
	if categories == nil {
		categories = DefaultCategories()
	}
	c := &Classifier{byCategory: make(map[string][]matcher, len(categories))}
	for _, t := range severityTiers {
		c.tiers = append(c.tiers, tier{severity: t.severity, words: compile(t.words)})
	}
	for name, words := range categories {
		c.categories = append(c.categories, name)
		c.byCategory[name] = compile(words)
	}
	sort.Strings(c.categories)
	return c
}

// Suggest classifies an issue from its title and description.
func (c *Classifier) Suggest(title, description string) Suggestion {
	text := strings.ToLower(title + " " + description)

	s := Suggestion{Severity: model.SeverityLow}
	var reasons []string
	sevMatched := false
	for _, t := range c.tiers {
		if w, ok := firstHit(t.words, text); ok {
			s.Severity = t.severity
			sevMatched = true
			reasons = append(reasons, fmt.Sprintf("severity %s from %q", t.severity, w))
			break
		}
	}

	for _, name := range c.categories {
		if _, ok := firstHit(c.byCategory[name], text); ok {
			s.Tags = append(s.Tags, name)
		}
	}
	tagsMatched := len(s.Tags) > 0
	if tagsMatched {
		reasons = append(reasons, "tags from keywords: "+strings.Join(s.Tags, ", "))
	} else {
		s.Tags = []string{DefaultTag}
	}

	switch {
	case sevMatched && tagsMatched:
		s.Confidence = 0.9
	case sevMatched || tagsMatched:
		s.Confidence = 0.75
	default:
		s.Confidence = 0.5
		reasons = append(reasons, "no keywords matched")
	}
	s.ConfidenceLevel = confidenceLevel(s.Confidence)
	s.Reasoning = strings.Join(reasons, "; ")
	return s
}

// Apply fills in an issue's severity and tags when they are unset.
// hasSeverity reports whether the source carried an explicit severity.
func (c *Classifier) Apply(issue *model.Issue, hasSeverity bool) Suggestion {
	s := c.Suggest(issue.Title, issue.Description)
	if !hasSeverity {
		issue.Severity = s.Severity
	}
	if len(issue.Tags) == 0 && !(len(s.Tags) == 1 && s.Tags[0] == DefaultTag) {
		issue.Tags = append([]string(nil), s.Tags...)
	}
	return s
}

// confidenceLevel returns the confidence level string based on the confidence value.
func confidenceLevel(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return "suggested"
	case confidence >= 0.7:
		return "possible"
	default:
		return "uncertain"
	}
}
