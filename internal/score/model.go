// Package score computes the per-candidate sub-scores used for assignment.
// Every scorer is a pure function of its inputs and returns a value in [0,10].
package score

import (
	"fmt"
	"time"

	"github.com/jacklau/dispatch/internal/cache"
	"github.com/jacklau/dispatch/internal/config"
	"github.com/jacklau/dispatch/internal/model"
)

// Model produces a score breakdown for one candidate and issue.
type Model interface {
	Score(issue model.Issue, c model.Candidate, now time.Time) model.ScoreBreakdown
}

// RuleModel composes the four rule-based scorers.
type RuleModel struct {
	weights      config.Weights
	expertise    *Expertise
	availability Availability
	performance  Performance
}

// Option configures the models built by New and NewRuleModel.
type Option func(*options)

type options struct {
	cache cache.Cache[string, float64]
}

// WithCache caches expertise history lookups.
func WithCache(c cache.Cache[string, float64]) Option {
	return func(o *options) { o.cache = c }
}

// NewRuleModel builds the default model from a policy.
func NewRuleModel(p config.Policy, opts ...Option) *RuleModel {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	var eopts []ExpertiseOption
	if o.cache != nil {
		eopts = append(eopts, WithHistoryCache(o.cache))
	}
	return &RuleModel{
		weights:      p.Weights,
		expertise:    NewExpertise(p.Taxonomy, p.HistoryLimit, eopts...),
		availability: Availability{Window: p.ActivityWindow()},
		performance: Performance{
			Window: p.PerformanceWindow(),
			Expected: func(sev model.Severity) float64 {
				return p.ThresholdsFor(sev).Escalate
			},
		},
	}
}

// Score implements Model.
func (m *RuleModel) Score(issue model.Issue, c model.Candidate, now time.Time) model.ScoreBreakdown {
	b := model.ScoreBreakdown{
		Expertise:    m.expertise.Score(issue, c),
		Workload:     Workload(c.OpenAssigned),
		Availability: m.availability.Score(c, now),
		Performance:  m.performance.Score(c, now),
	}
	b.Total = Total(b, m.weights)
	return b
}

// Total is the weighted sum of the sub-scores, clamped to [0,10].
func Total(b model.ScoreBreakdown, w config.Weights) float64 {
	return clamp(w.Expertise*b.Expertise +
		w.Workload*b.Workload +
		w.Performance*b.Performance +
		w.Availability*b.Availability)
}

// New selects the model named by the policy.
func New(p config.Policy, opts ...Option) (Model, error) {
	rule := NewRuleModel(p, opts...)
	switch p.Scoring.Model {
	case "", "rule":
		return rule, nil
	case "linear":
		lm, err := LoadLinearModel(p.Scoring.ModelPath, rule)
		if err != nil {
			return nil, err
		}
		return lm, nil
	default:
		return nil, fmt.Errorf("unsupported scoring model: %s", p.Scoring.Model)
	}
}
