package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactive setup for dispatch configuration",
	Long:  `Creates a default configuration file with guided prompts.`,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

// initAnswers are the values gathered by the setup prompts.
type initAnswers struct {
	AppID          string
	InstallationID string
	KeyPath        string
	Repos          []string
	SlackURL       string
	DiscordURL     string
}

func prompt(r *bufio.Reader, w io.Writer, question string) string {
	fmt.Fprint(w, question)
	answer, _ := r.ReadString('\n')
	return strings.TrimSpace(answer)
}

func runInit(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Welcome to dispatch setup!")
	fmt.Fprintln(out, "This will create a configuration file for you.")
	fmt.Fprintln(out)

	configPath := cfgFile
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(out, "Config file already exists at %s\n", configPath)
		answer := strings.ToLower(prompt(reader, out, "Overwrite? [y/N]: "))
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	var a initAnswers
	a.AppID = prompt(reader, out, "GitHub App ID (or press Enter to skip): ")
	if a.AppID != "" {
		a.InstallationID = prompt(reader, out, "GitHub App installation ID: ")
		a.KeyPath = prompt(reader, out, "GitHub private key path: ")
	}
	if repos := prompt(reader, out, "Repositories to sync, comma separated (owner/repo): "); repos != "" {
		for _, r := range strings.Split(repos, ",") {
			if r = strings.TrimSpace(r); r != "" {
				a.Repos = append(a.Repos, r)
			}
		}
	}
	a.SlackURL = prompt(reader, out, "Slack webhook URL (or press Enter to skip): ")
	a.DiscordURL = prompt(reader, out, "Discord webhook URL (or press Enter to skip): ")

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(buildConfigYAML(a)), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", configPath)
	fmt.Fprintln(out, "Edit the policy section to tune scoring weights and escalation thresholds.")
	return nil
}

func buildConfigYAML(a initAnswers) string {
	var b strings.Builder

	b.WriteString("# dispatch configuration\n\n")

	b.WriteString("github:\n")
	if a.AppID != "" {
		b.WriteString("  auth: app\n")
		fmt.Fprintf(&b, "  app_id: %q\n", a.AppID)
		fmt.Fprintf(&b, "  installation_id: %q\n", a.InstallationID)
		fmt.Fprintf(&b, "  private_key_path: %s\n", a.KeyPath)
	} else {
		b.WriteString("  # auth: app\n")
		b.WriteString("  # app_id: \"YOUR_APP_ID\"\n")
		b.WriteString("  # installation_id: \"YOUR_INSTALLATION_ID\"\n")
		b.WriteString("  # private_key_path: /path/to/private-key.pem\n")
	}
	b.WriteString("\n")

	if len(a.Repos) > 0 {
		b.WriteString("repos:\n")
		for _, r := range a.Repos {
			fmt.Fprintf(&b, "  - name: %s\n", r)
		}
	} else {
		b.WriteString("# repos:\n")
		b.WriteString("#   - name: owner/repo\n")
		b.WriteString("#     severity_labels:\n")
		b.WriteString("#       outage: critical\n")
	}
	b.WriteString("\n")

	b.WriteString("notify:\n")
	if a.SlackURL != "" {
		fmt.Fprintf(&b, "  slack_webhook: %s\n", a.SlackURL)
	} else {
		b.WriteString("  # slack_webhook: https://hooks.slack.com/services/...\n")
	}
	if a.DiscordURL != "" {
		fmt.Fprintf(&b, "  discord_webhook: %s\n", a.DiscordURL)
	} else {
		b.WriteString("  # discord_webhook: https://discord.com/api/webhooks/...\n")
	}
	b.WriteString("  max_attempts: 3\n")
	b.WriteString("\n")

	b.WriteString("defaults:\n")
	b.WriteString("  poll_interval: 5m\n")
	b.WriteString("  sweep_interval: 15m\n")
	b.WriteString("  request_timeout: 30s\n")
	b.WriteString("  workers: 4\n")
	b.WriteString("\n")

	b.WriteString("store:\n")
	b.WriteString("  path: ~/.dispatch/dispatch.db\n")
	b.WriteString("\n")

	b.WriteString("policy:\n")
	b.WriteString("  weights:\n")
	b.WriteString("    expertise: 0.40\n")
	b.WriteString("    workload: 0.25\n")
	b.WriteString("    performance: 0.20\n")
	b.WriteString("    availability: 0.10\n")
	b.WriteString("  # Business hours in status before each tier.\n")
	b.WriteString("  # thresholds:\n")
	b.WriteString("  #   critical: {warning: 2, escalate: 4, urgent: 8}\n")
	b.WriteString("  #   high: {warning: 8, escalate: 24, urgent: 48}\n")
	b.WriteString("  max_notifications: 25\n")
	b.WriteString("  activity_window: 168h\n")

	return b.String()
}
