package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jacklau/dispatch/internal/model"
)

// Policy is the single tunable policy shared by every engine component:
// scoring weights, escalation thresholds, keyword taxonomy and caps.
type Policy struct {
	Weights            Weights               `yaml:"weights"`
	Thresholds         map[string]Thresholds `yaml:"thresholds"`
	Taxonomy           map[string][]string   `yaml:"taxonomy"`
	UrgencyKeywords    []string              `yaml:"urgency_keywords"`
	MaxNotifications   int                   `yaml:"max_notifications"`
	MaxAlternatives    int                   `yaml:"max_alternatives"`
	HistoryLimit       int                   `yaml:"history_limit"`
	ActivityWindowRaw  string                `yaml:"activity_window"`
	PerfWindowRaw      string                `yaml:"performance_window"`
	PatternWindowRaw   string                `yaml:"pattern_window"`
	PatternMinCount    int                   `yaml:"pattern_min_count"`
	ImbalanceRatio     float64               `yaml:"imbalance_ratio"`
	ImbalanceFloor     int                   `yaml:"imbalance_floor"`
	RiskForceThreshold float64               `yaml:"risk_force_threshold"`
	Scoring            ScoringConfig         `yaml:"scoring"`
}

// Weights are the fixed coefficients of the assignment total.
type Weights struct {
	Expertise    float64 `yaml:"expertise"`
	Workload     float64 `yaml:"workload"`
	Performance  float64 `yaml:"performance"`
	Availability float64 `yaml:"availability"`
}

// Thresholds are the business-hour boundaries of the escalation tiers.
type Thresholds struct {
	Warning  float64 `yaml:"warning"`
	Escalate float64 `yaml:"escalate"`
	Urgent   float64 `yaml:"urgent"`
}

// ScoringConfig selects the scoring strategy.
type ScoringConfig struct {
	// Model is "rule" (default) or "linear".
	Model string `yaml:"model"`
	// ModelPath points at the coefficients file of the linear model.
	ModelPath string `yaml:"model_path"`
}

// DefaultWeights is the canonical weight set: expertise 0.40, workload 0.25,
// performance 0.20, availability 0.10.
var DefaultWeights = Weights{
	Expertise:    0.40,
	Workload:     0.25,
	Performance:  0.20,
	Availability: 0.10,
}

// DefaultThresholds is the severity-tiered escalation table, in business hours.
func DefaultThresholds() map[string]Thresholds {
	return map[string]Thresholds{
		"CRITICAL": {Warning: 2, Escalate: 4, Urgent: 8},
		"HIGH":     {Warning: 8, Escalate: 24, Urgent: 48},
		"MEDIUM":   {Warning: 24, Escalate: 72, Urgent: 120},
		"LOW":      {Warning: 72, Escalate: 168, Urgent: 336},
	}
}

// DefaultTaxonomy maps domain labels to their keywords.
func DefaultTaxonomy() map[string][]string {
	return map[string][]string{
		"frontend":       {"ui", "frontend", "css", "html", "react", "layout", "button", "page", "display", "browser"},
		"backend":        {"api", "backend", "server", "endpoint", "service", "handler", "request", "response"},
		"database":       {"database", "sql", "query", "migration", "postgres", "index", "schema", "table"},
		"security":       {"security", "auth", "authentication", "authorization", "token", "vulnerability", "password", "permission"},
		"performance":    {"slow", "latency", "timeout", "performance", "memory", "cpu", "lag", "speed"},
		"infrastructure": {"deploy", "deployment", "docker", "kubernetes", "ci", "pipeline", "build", "dns"},
		"mobile":         {"ios", "android", "mobile", "app store", "tablet"},
	}
}

// DefaultUrgencyKeywords are the words that signal urgency in issue text.
var DefaultUrgencyKeywords = []string{"urgent", "production", "down", "outage", "critical", "asap"}

// Default policy caps and windows.
const (
	DefaultMaxNotifications   = 25
	DefaultMaxAlternatives    = 3
	DefaultHistoryLimit       = 100
	DefaultPatternMinCount    = 3
	DefaultImbalanceRatio     = 1.8
	DefaultImbalanceFloor     = 8
	DefaultRiskForceThreshold = 0.7
)

// DefaultPolicy returns a policy with every default applied.
func DefaultPolicy() Policy {
	var p Policy
	p.presetCaps()
	p.fillDefaults()
	return p
}

// presetCaps sets the defaults of the fields for which zero is a valid
// setting: max_notifications 0 removes the feed cap, max_alternatives 0
// returns the best candidate only, history_limit 0 reads the whole history,
// imbalance_floor 0 leaves only the ratio rule and risk_force_threshold 0
// forces escalation on any risk. Parse applies them before decoding so an
// explicit 0 in the file is kept.
func (p *Policy) presetCaps() {
	p.MaxNotifications = DefaultMaxNotifications
	p.MaxAlternatives = DefaultMaxAlternatives
	p.HistoryLimit = DefaultHistoryLimit
	p.ImbalanceFloor = DefaultImbalanceFloor
	p.RiskForceThreshold = DefaultRiskForceThreshold
}

func (p *Policy) fillDefaults() {
	if p.Weights == (Weights{}) {
		p.Weights = DefaultWeights
	}
	// Severity keys are upper-cased so "high" and "HIGH" address the same tier.
	merged := DefaultThresholds()
	for name, th := range p.Thresholds {
		merged[strings.ToUpper(name)] = th
	}
	p.Thresholds = merged
	if len(p.Taxonomy) == 0 {
		p.Taxonomy = DefaultTaxonomy()
	}
	if len(p.UrgencyKeywords) == 0 {
		p.UrgencyKeywords = append([]string(nil), DefaultUrgencyKeywords...)
	}
	if p.ActivityWindowRaw == "" {
		p.ActivityWindowRaw = "168h"
	}
	if p.PerfWindowRaw == "" {
		p.PerfWindowRaw = "720h"
	}
	if p.PatternWindowRaw == "" {
		p.PatternWindowRaw = "24h"
	}
	if p.PatternMinCount == 0 {
		p.PatternMinCount = DefaultPatternMinCount
	}
	if p.ImbalanceRatio == 0 {
		p.ImbalanceRatio = DefaultImbalanceRatio
	}
	if p.Scoring.Model == "" {
		p.Scoring.Model = "rule"
	}
}

// Validate checks internal consistency of the policy.
func (p Policy) Validate() error {
	w := p.Weights
	for name, v := range map[string]float64{
		"expertise": w.Expertise, "workload": w.Workload,
		"performance": w.Performance, "availability": w.Availability,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("weight %s must be non-negative, got %f", name, v)
		}
	}
	if w.Expertise+w.Workload+w.Performance+w.Availability <= 0 {
		return fmt.Errorf("weights must not all be zero")
	}

	for name, th := range p.Thresholds {
		if _, err := parseSeverityName(name); err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		if th.Warning <= 0 || th.Warning > th.Escalate || th.Escalate > th.Urgent {
			return fmt.Errorf("thresholds %s must satisfy 0 < warning <= escalate <= urgent, got %v/%v/%v",
				name, th.Warning, th.Escalate, th.Urgent)
		}
	}

	for domain, kws := range p.Taxonomy {
		if len(kws) == 0 {
			return fmt.Errorf("taxonomy domain %q has no keywords", domain)
		}
	}

	if p.MaxNotifications < 0 || p.MaxAlternatives < 0 || p.HistoryLimit < 0 || p.ImbalanceFloor < 0 {
		return fmt.Errorf("caps must be non-negative")
	}
	for name, raw := range map[string]string{
		"activity_window": p.ActivityWindowRaw, "performance_window": p.PerfWindowRaw,
		"pattern_window": p.PatternWindowRaw,
	} {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if p.ImbalanceRatio <= 0 {
		return fmt.Errorf("imbalance_ratio must be positive, got %f", p.ImbalanceRatio)
	}
	if p.RiskForceThreshold < 0 || p.RiskForceThreshold > 1 {
		return fmt.Errorf("risk_force_threshold must be between 0 and 1, got %f", p.RiskForceThreshold)
	}

	switch p.Scoring.Model {
	case "rule":
	case "linear":
		if p.Scoring.ModelPath == "" {
			return fmt.Errorf("scoring.model_path is required for the linear model")
		}
	default:
		return fmt.Errorf("unsupported scoring model: %s", p.Scoring.Model)
	}
	return nil
}

// ThresholdsFor returns the escalation thresholds of a severity.
func (p Policy) ThresholdsFor(sev model.Severity) Thresholds {
	if th, ok := p.Thresholds[sev.String()]; ok {
		return th
	}
	return DefaultThresholds()[sev.String()]
}

// ActivityWindow is the trailing window of the availability scorer.
func (p Policy) ActivityWindow() time.Duration {
	return parseOr(p.ActivityWindowRaw, 7*24*time.Hour)
}

// PerformanceWindow is the trailing window of the performance scorer.
func (p Policy) PerformanceWindow() time.Duration {
	return parseOr(p.PerfWindowRaw, 30*24*time.Hour)
}

// PatternWindow is the trailing window of cluster detection.
func (p Policy) PatternWindow() time.Duration {
	return parseOr(p.PatternWindowRaw, 24*time.Hour)
}

func parseOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseSeverityName(name string) (model.Severity, error) {
	return model.ParseSeverity(name)
}
