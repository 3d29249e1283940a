package score

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jacklau/dispatch/internal/model"
)

// Feature names accepted in a coefficients file.
const (
	FeatureOpenCount          = "open_count"
	FeatureRecentTouches      = "recent_touches"
	FeatureResolvedCount      = "resolved_count"
	FeatureOnTimeRate         = "on_time_rate"
	FeatureAvgResolutionHours = "avg_resolution_hours"
	FeatureDomainOverlap      = "domain_overlap"
	FeatureMatchIntensity     = "match_intensity"
)

var knownFeatures = map[string]bool{
	FeatureOpenCount:          true,
	FeatureRecentTouches:      true,
	FeatureResolvedCount:      true,
	FeatureOnTimeRate:         true,
	FeatureAvgResolutionHours: true,
	FeatureDomainOverlap:      true,
	FeatureMatchIntensity:     true,
}

// Component holds the coefficients of one sub-score.
type Component struct {
	Intercept float64            `yaml:"intercept"`
	Weights   map[string]float64 `yaml:"weights"`
}

// Coefficients is the on-disk form of a linear model. A nil component falls
// back to the rule scorer.
type Coefficients struct {
	Expertise    *Component `yaml:"expertise"`
	Workload     *Component `yaml:"workload"`
	Availability *Component `yaml:"availability"`
	Performance  *Component `yaml:"performance"`
}

// LinearModel scores with fitted linear coefficients over candidate features.
// Outputs share the bounded contract of RuleModel.
type LinearModel struct {
	coef Coefficients
	rule *RuleModel
}

// ParseCoefficients parses and validates a coefficients document.
func ParseCoefficients(data []byte) (Coefficients, error) {
	var c Coefficients
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parsing coefficients YAML: %w", err)
	}
	for name, comp := range map[string]*Component{
		"expertise": c.Expertise, "workload": c.Workload,
		"availability": c.Availability, "performance": c.Performance,
	} {
		if comp == nil {
			continue
		}
		for f := range comp.Weights {
			if !knownFeatures[f] {
				return c, fmt.Errorf("%s: unknown feature %q", name, f)
			}
		}
	}
	return c, nil
}

// LoadLinearModel reads coefficients from path.
func LoadLinearModel(path string, rule *RuleModel) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}
	coef, err := ParseCoefficients(data)
	if err != nil {
		return nil, err
	}
	return NewLinearModel(coef, rule), nil
}

// NewLinearModel wraps coefficients around a rule model used for fallback.
func NewLinearModel(coef Coefficients, rule *RuleModel) *LinearModel {
	return &LinearModel{coef: coef, rule: rule}
}

// Features extracts the model inputs for a candidate.
func (m *LinearModel) Features(issue model.Issue, c model.Candidate, now time.Time) map[string]float64 {
	sig := m.rule.expertise.Signals(issue, c)
	perf := m.rule.performance.Stats(c, now)
	overlap := sig.Overlap
	if overlap < 0 {
		overlap = 0.5
	}
	open := c.OpenAssigned
	if open < 0 {
		open = 0
	}
	return map[string]float64{
		FeatureOpenCount:          float64(open),
		FeatureRecentTouches:      float64(m.rule.availability.Touches(c, now)),
		FeatureResolvedCount:      float64(perf.Resolved),
		FeatureOnTimeRate:         perf.OnTimeRate,
		FeatureAvgResolutionHours: perf.AvgHours,
		FeatureDomainOverlap:      overlap,
		FeatureMatchIntensity:     sig.Intensity,
	}
}

// Score implements Model.
func (m *LinearModel) Score(issue model.Issue, c model.Candidate, now time.Time) model.ScoreBreakdown {
	b := m.rule.Score(issue, c, now)
	feats := m.Features(issue, c, now)

	if m.coef.Expertise != nil {
		b.Expertise = m.coef.Expertise.eval(feats)
	}
	if m.coef.Workload != nil {
		b.Workload = m.coef.Workload.eval(feats)
	}
	if m.coef.Availability != nil {
		b.Availability = m.coef.Availability.eval(feats)
	}
	if m.coef.Performance != nil {
		b.Performance = m.coef.Performance.eval(feats)
	}
	b.Total = Total(b, m.rule.weights)
	return b
}

func (c *Component) eval(feats map[string]float64) float64 {
	names := make([]string, 0, len(c.Weights))
	for name := range c.Weights {
		names = append(names, name)
	}
	// sorted so the summation order is fixed
	sort.Strings(names)
	v := c.Intercept
	for _, name := range names {
		v += c.Weights[name] * feats[name]
	}
	return clamp(v)
}
