package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	GitHub   GitHubConfig   `yaml:"github"`
	Notify   NotifyConfig   `yaml:"notify"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Store    StoreConfig    `yaml:"store"`
	Repos    []RepoConfig   `yaml:"repos"`
	Policy   Policy         `yaml:"policy"`
}

// GitHubConfig holds GitHub authentication settings.
type GitHubConfig struct {
	Auth           string `yaml:"auth"`
	AppID          string `yaml:"app_id"`
	InstallationID string `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	PrivateKey     string `yaml:"private_key"`
}

// NotifyConfig holds notification webhook URLs.
type NotifyConfig struct {
	SlackWebhook   string `yaml:"slack_webhook"`
	DiscordWebhook string `yaml:"discord_webhook"`
	MaxAttempts    int    `yaml:"max_attempts"`
}

// DefaultsConfig holds default operational parameters.
type DefaultsConfig struct {
	PollIntervalRaw   string `yaml:"poll_interval"`
	SweepIntervalRaw  string `yaml:"sweep_interval"`
	RequestTimeoutRaw string `yaml:"request_timeout"`
	Workers           int    `yaml:"workers"`
}

// StoreConfig holds storage settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// RepoConfig holds per-repository settings for the GitHub importer.
type RepoConfig struct {
	Name string `yaml:"name"`
	// SeverityLabels maps extra label names to a severity, on top of the
	// built-in "severity:high", "P0" style labels.
	SeverityLabels map[string]string `yaml:"severity_labels"`
}

// PollInterval returns the parsed poll interval duration.
func (d DefaultsConfig) PollInterval() (time.Duration, error) {
	if d.PollIntervalRaw == "" {
		return 5 * time.Minute, nil
	}
	return time.ParseDuration(d.PollIntervalRaw)
}

// SweepInterval returns how often the watch loop recomputes the team feed.
func (d DefaultsConfig) SweepInterval() (time.Duration, error) {
	if d.SweepIntervalRaw == "" {
		return 15 * time.Minute, nil
	}
	return time.ParseDuration(d.SweepIntervalRaw)
}

// RequestTimeout returns the parsed request timeout duration.
func (d DefaultsConfig) RequestTimeout() (time.Duration, error) {
	if d.RequestTimeoutRaw == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(d.RequestTimeoutRaw)
}

// envVarPattern matches ${VAR} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} placeholders with environment variable values.
// Returns an error if any referenced variable is not set.
func expandEnvVars(data []byte) ([]byte, error) {
	var missing []string

	result := envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		val, ok := os.LookupEnv(string(varName))
		if !ok {
			missing = append(missing, string(varName))
			return match
		}
		return []byte(val)
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// Load reads and parses a config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Default returns a configuration with every default applied, for use when
// no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.Policy.presetCaps()
	applyDefaults(cfg)
	return cfg
}

// Parse parses config from raw YAML bytes, expanding env vars and validating.
func Parse(data []byte) (*Config, error) {
	expanded, err := expandEnvVars(data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	cfg.Policy.presetCaps()
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// expandTilde replaces a leading "~" with the user's home directory.
func expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func applyDefaults(cfg *Config) {
	if cfg.Defaults.PollIntervalRaw == "" {
		cfg.Defaults.PollIntervalRaw = "5m"
	}
	if cfg.Defaults.SweepIntervalRaw == "" {
		cfg.Defaults.SweepIntervalRaw = "15m"
	}
	if cfg.Defaults.RequestTimeoutRaw == "" {
		cfg.Defaults.RequestTimeoutRaw = "30s"
	}
	if cfg.Defaults.Workers == 0 {
		cfg.Defaults.Workers = 4
	}
	if cfg.Notify.MaxAttempts == 0 {
		cfg.Notify.MaxAttempts = 3
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.dispatch/dispatch.db"
	}
	cfg.Store.Path = expandTilde(cfg.Store.Path)
	cfg.Policy.fillDefaults()
}

func validate(cfg *Config) error {
	if _, err := time.ParseDuration(cfg.Defaults.PollIntervalRaw); err != nil {
		return fmt.Errorf("invalid poll_interval %q: %w", cfg.Defaults.PollIntervalRaw, err)
	}
	if _, err := time.ParseDuration(cfg.Defaults.SweepIntervalRaw); err != nil {
		return fmt.Errorf("invalid sweep_interval %q: %w", cfg.Defaults.SweepIntervalRaw, err)
	}
	if _, err := time.ParseDuration(cfg.Defaults.RequestTimeoutRaw); err != nil {
		return fmt.Errorf("invalid request_timeout %q: %w", cfg.Defaults.RequestTimeoutRaw, err)
	}
	if cfg.Defaults.Workers < 0 {
		return fmt.Errorf("workers must be positive, got %d", cfg.Defaults.Workers)
	}

	validAuth := map[string]bool{"app": true, "": true}
	if !validAuth[cfg.GitHub.Auth] {
		return fmt.Errorf("unsupported github auth: %s", cfg.GitHub.Auth)
	}

	for _, repo := range cfg.Repos {
		for label, sev := range repo.SeverityLabels {
			if _, err := parseSeverityName(sev); err != nil {
				return fmt.Errorf("repo %s: label %q: %w", repo.Name, label, err)
			}
		}
	}

	if err := cfg.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	return nil
}
