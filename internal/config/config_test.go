package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacklau/dispatch/internal/model"
)

func TestParseBasicConfig(t *testing.T) {
	yaml := `
github:
  auth: app
  app_id: "12345"
  installation_id: "678"
  private_key_path: /path/to/key.pem
notify:
  slack_webhook: https://hooks.slack.com/test
  max_attempts: 5
defaults:
  poll_interval: 10m
  sweep_interval: 1h
  request_timeout: 60s
  workers: 8
store:
  path: /tmp/dispatch.db
repos:
  - name: acme/api
    severity_labels:
      sev1: critical
policy:
  max_notifications: 40
  thresholds:
    high: {warning: 4, escalate: 12, urgent: 36}
`
	cfg, err := Parse([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, "12345", cfg.GitHub.AppID)
	assert.Equal(t, "https://hooks.slack.com/test", cfg.Notify.SlackWebhook)
	assert.Equal(t, 5, cfg.Notify.MaxAttempts)
	assert.Equal(t, 8, cfg.Defaults.Workers)
	assert.Equal(t, "/tmp/dispatch.db", cfg.Store.Path)
	assert.Equal(t, "critical", cfg.Repos[0].SeverityLabels["sev1"])
	assert.Equal(t, 40, cfg.Policy.MaxNotifications)

	dur, err := cfg.Defaults.PollInterval()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, dur)

	sweep, err := cfg.Defaults.SweepInterval()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, sweep)

	timeout, err := cfg.Defaults.RequestTimeout()
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, timeout)

	// Lower-case severity keys override the matching default tier only.
	assert.Equal(t, Thresholds{Warning: 4, Escalate: 12, Urgent: 36}, cfg.Policy.ThresholdsFor(model.SeverityHigh))
	assert.Equal(t, Thresholds{Warning: 2, Escalate: 4, Urgent: 8}, cfg.Policy.ThresholdsFor(model.SeverityCritical))
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("github: {}\n"))
	require.NoError(t, err)

	assert.Equal(t, "5m", cfg.Defaults.PollIntervalRaw)
	assert.Equal(t, "30s", cfg.Defaults.RequestTimeoutRaw)
	assert.Equal(t, 3, cfg.Notify.MaxAttempts)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".dispatch/dispatch.db"), cfg.Store.Path)

	p := cfg.Policy
	assert.Equal(t, DefaultWeights, p.Weights)
	assert.Equal(t, DefaultMaxNotifications, p.MaxNotifications)
	assert.Equal(t, DefaultMaxAlternatives, p.MaxAlternatives)
	assert.Equal(t, DefaultHistoryLimit, p.HistoryLimit)
	assert.Equal(t, 7*24*time.Hour, p.ActivityWindow())
	assert.Equal(t, 30*24*time.Hour, p.PerformanceWindow())
	assert.Equal(t, 24*time.Hour, p.PatternWindow())
	assert.Equal(t, "rule", p.Scoring.Model)
	assert.Len(t, p.Thresholds, 4)
	assert.NotEmpty(t, p.Taxonomy["security"])
	assert.ElementsMatch(t, DefaultUrgencyKeywords, p.UrgencyKeywords)
}

func TestParsePolicy_ExplicitZeroCapsKept(t *testing.T) {
	cfg, err := Parse([]byte(`
policy:
  max_notifications: 0
  max_alternatives: 0
  history_limit: 0
  imbalance_floor: 0
  risk_force_threshold: 0
`))
	require.NoError(t, err)

	p := cfg.Policy
	assert.Zero(t, p.MaxNotifications)
	assert.Zero(t, p.MaxAlternatives)
	assert.Zero(t, p.HistoryLimit)
	assert.Zero(t, p.ImbalanceFloor)
	assert.Zero(t, p.RiskForceThreshold)
	assert.Equal(t, DefaultImbalanceRatio, p.ImbalanceRatio)

	// Keys left out still get their defaults.
	cfg, err = Parse([]byte("policy:\n  max_notifications: 10\n"))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Policy.MaxNotifications)
	assert.Equal(t, DefaultImbalanceFloor, cfg.Policy.ImbalanceFloor)
	assert.Equal(t, DefaultRiskForceThreshold, cfg.Policy.RiskForceThreshold)
}

func TestParsePolicy_NegativeImbalanceFloor(t *testing.T) {
	_, err := Parse([]byte("policy:\n  imbalance_floor: -1\n"))
	assert.Error(t, err)
}

func TestDefaultPolicy_MatchesParsedDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), cfg.Policy)
	assert.NoError(t, DefaultPolicy().Validate())
}

func TestEnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_SLACK_HOOK", "https://hooks.slack.com/secret")

	cfg, err := Parse([]byte("notify:\n  slack_webhook: ${TEST_SLACK_HOOK}\n"))
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.slack.com/secret", cfg.Notify.SlackWebhook)
}

func TestEnvVarMissing(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR_12345")

	_, err := Parse([]byte("notify:\n  slack_webhook: ${NONEXISTENT_VAR_12345}\n"))
	require.Error(t, err)
	assert.Equal(t, "missing required environment variables: NONEXISTENT_VAR_12345", err.Error())
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad poll interval", "defaults:\n  poll_interval: not-a-duration\n"},
		{"bad sweep interval", "defaults:\n  sweep_interval: soon\n"},
		{"unsupported auth", "github:\n  auth: token\n"},
		{"negative weight", "policy:\n  weights: {expertise: -1, workload: 1}\n"},
		{"unordered thresholds", "policy:\n  thresholds:\n    LOW: {warning: 10, escalate: 5, urgent: 20}\n"},
		{"unknown severity key", "policy:\n  thresholds:\n    BLOCKER: {warning: 1, escalate: 2, urgent: 3}\n"},
		{"empty taxonomy domain", "policy:\n  taxonomy:\n    frontend: []\n"},
		{"bad window", "policy:\n  activity_window: week\n"},
		{"risk threshold out of range", "policy:\n  risk_force_threshold: 1.5\n"},
		{"linear without path", "policy:\n  scoring: {model: linear}\n"},
		{"unknown model", "policy:\n  scoring: {model: forest}\n"},
		{"bad repo severity label", "repos:\n  - name: a/b\n    severity_labels: {sev9: blocker}\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"tilde prefix", "~/.dispatch/dispatch.db", filepath.Join(home, ".dispatch/dispatch.db")},
		{"tilde only", "~", home},
		{"absolute path unchanged", "/tmp/dispatch.db", "/tmp/dispatch.db"},
		{"relative path unchanged", "data/dispatch.db", "data/dispatch.db"},
		{"tilde in middle unchanged", "/some/~/path", "/some/~/path"},
		{"tilde user unchanged", "~bob/db", "~bob/db"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, expandTilde(tc.input))
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policy:\n  max_alternatives: 2\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Policy.MaxAlternatives)
}
