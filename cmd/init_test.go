package cmd

import (
	"strings"
	"testing"

	"github.com/jacklau/dispatch/internal/config"
)

func TestBuildConfigYAML_Minimal(t *testing.T) {
	out := buildConfigYAML(initAnswers{})

	if !strings.Contains(out, "# app_id:") {
		t.Error("expected commented-out GitHub App settings")
	}
	if !strings.Contains(out, "# slack_webhook:") {
		t.Error("expected commented-out slack webhook")
	}

	cfg, err := config.Parse([]byte(out))
	if err != nil {
		t.Fatalf("generated config does not parse: %v", err)
	}
	if cfg.Policy.Weights != config.DefaultWeights {
		t.Errorf("expected default weights, got %+v", cfg.Policy.Weights)
	}
	if cfg.Policy.MaxNotifications != config.DefaultMaxNotifications {
		t.Errorf("unexpected max_notifications %d", cfg.Policy.MaxNotifications)
	}
}

func TestBuildConfigYAML_Full(t *testing.T) {
	out := buildConfigYAML(initAnswers{
		AppID:          "12345",
		InstallationID: "678",
		KeyPath:        "/keys/app.pem",
		Repos:          []string{"acme/api", "acme/web"},
		SlackURL:       "https://hooks.slack.com/services/T/B/X",
		DiscordURL:     "https://discord.com/api/webhooks/1/abc",
	})

	cfg, err := config.Parse([]byte(out))
	if err != nil {
		t.Fatalf("generated config does not parse: %v", err)
	}
	if cfg.GitHub.Auth != "app" || cfg.GitHub.AppID != "12345" || cfg.GitHub.InstallationID != "678" {
		t.Errorf("unexpected github config: %+v", cfg.GitHub)
	}
	if cfg.GitHub.PrivateKeyPath != "/keys/app.pem" {
		t.Errorf("unexpected key path %q", cfg.GitHub.PrivateKeyPath)
	}
	if len(cfg.Repos) != 2 || cfg.Repos[1].Name != "acme/web" {
		t.Errorf("unexpected repos: %+v", cfg.Repos)
	}
	if cfg.Notify.SlackWebhook == "" || cfg.Notify.DiscordWebhook == "" {
		t.Errorf("expected both webhooks, got %+v", cfg.Notify)
	}
}
