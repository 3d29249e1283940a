package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/jacklau/dispatch/internal/assign"
	"github.com/jacklau/dispatch/internal/cache"
	"github.com/jacklau/dispatch/internal/config"
	"github.com/jacklau/dispatch/internal/github"
	"github.com/jacklau/dispatch/internal/notify"
	"github.com/jacklau/dispatch/internal/pipeline"
	"github.com/jacklau/dispatch/internal/pubsub"
	"github.com/jacklau/dispatch/internal/render"
	"github.com/jacklau/dispatch/internal/score"
	"github.com/jacklau/dispatch/internal/store"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Suggest assignees and escalate stale issues for a small team",
	Long: `Dispatch keeps a local snapshot of the team's issues, ranks who should
pick up each unassigned issue, flags issues that have sat too long for their
severity, and sends a prioritized feed to Slack or Discord.

Every flag can also be set through a DISPATCH_* environment variable,
e.g. DISPATCH_STORE=/tmp/dispatch.db or DISPATCH_JSON=true.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default %s)", defaultConfigPath()))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().Bool("json", false, "print results as JSON")
	rootCmd.PersistentFlags().String("store", "", "database path (overrides store.path)")

	cobra.OnInitialize(initViper)
}

// initViper binds flags and DISPATCH_* environment variables.
func initViper() {
	viper.SetEnvPrefix("DISPATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		slog.Warn("binding persistent flags", "error", err)
	}
	if cfgFile == "" {
		cfgFile = viper.GetString("config")
	}
	if !verbose {
		verbose = viper.GetBool("verbose")
	}
}

// bindFlags binds a subcommand's local flags so they can be set from the
// environment too.
func bindFlags(cmd *cobra.Command) {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		slog.Warn("binding flags", "command", cmd.Name(), "error", err)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dispatch/config.yaml"
	}
	return home + "/.dispatch/config.yaml"
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// loadConfig reads the config file. A missing default config falls back to
// built-in defaults so the local commands work without setup; an explicit
// --config path must exist.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = config.Default()
	}
	if p := viper.GetString("store"); p != "" {
		cfg.Store.Path = p
	}
	return cfg, nil
}

// jsonOutput reports whether --json (or DISPATCH_JSON) is set.
func jsonOutput() bool {
	return viper.GetBool("json")
}

// output prints v as JSON when requested, otherwise through the table
// renderer.
func output(w io.Writer, v any, table func(io.Writer) error) error {
	if jsonOutput() {
		return render.JSON(w, v)
	}
	return table(w)
}

// components holds initialized components for use by subcommands.
type components struct {
	Config   *config.Config
	Store    *store.DB
	GHClient *gogithub.Client
	Broker   *pubsub.Broker[github.IssueEvent]
	Logger   *slog.Logger
}

// initComponents opens the store and builds the GitHub client from config.
func initComponents(cfg *config.Config, logger *slog.Logger) (*components, error) {
	c := &components{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Store.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	c.Store = db

	client, err := github.NewClient(cfg.GitHub)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating GitHub client: %w", err)
	}
	c.GHClient = client

	c.Broker = pubsub.NewBroker[github.IssueEvent]()
	return c, nil
}

// setup is the common prologue of commands that need the store.
func setup() (*components, error) {
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	c, err := initComponents(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing components: %w", err)
	}
	return c, nil
}

// createNotifier builds a Notifier from config and flag override. It returns
// a nil Notifier and the channel name "none" when nothing is configured.
func createNotifier(cfg *config.Config, notifyFlag string) (notify.Notifier, string, error) {
	notifyType := notifyFlag
	if notifyType == "" {
		hasSlack := cfg.Notify.SlackWebhook != ""
		hasDiscord := cfg.Notify.DiscordWebhook != ""
		switch {
		case hasSlack && hasDiscord:
			notifyType = "both"
		case hasSlack:
			notifyType = "slack"
		case hasDiscord:
			notifyType = "discord"
		default:
			return nil, "none", nil
		}
	}

	n, err := notify.NewNotifierByType(notifyType, cfg.Notify.SlackWebhook, cfg.Notify.DiscordWebhook, cfg.Notify.MaxAttempts)
	if err != nil {
		return nil, "", err
	}
	return n, notifyType, nil
}

// createPoller builds a Poller for the specified repo, with the repo's
// extra severity labels.
func createPoller(c *components, owner, repo string) (*github.Poller, error) {
	mapper, err := github.NewLabelMapper(findSeverityLabels(c.Config, owner+"/"+repo))
	if err != nil {
		return nil, fmt.Errorf("repo %s/%s: %w", owner, repo, err)
	}
	return github.NewPoller(c.GHClient, c.Store, c.Broker, owner, repo,
		github.WithLabelMapper(mapper),
		github.WithPollLogger(c.Logger),
	), nil
}

// expertiseCacheTTL bounds how long cached expertise lookups are reused by
// long-running commands.
const expertiseCacheTTL = 10 * time.Minute

// createPipeline builds a Pipeline from components, with the scoring model
// selected by the policy.
func createPipeline(c *components, n notify.Notifier, channel string, dryRun bool) (*pipeline.Pipeline, error) {
	m, err := score.New(c.Config.Policy, score.WithCache(cache.NewTTL[string, float64](expertiseCacheTTL)))
	if err != nil {
		return nil, fmt.Errorf("building scoring model: %w", err)
	}
	return pipeline.New(pipeline.Deps{
		Store:    c.Store,
		Policy:   c.Config.Policy,
		Ranker:   assign.NewRanker(c.Config.Policy, assign.WithModel(m), assign.WithLogger(c.Logger)),
		Notifier: n,
		Channel:  channel,
		Broker:   c.Broker,
		Workers:  c.Config.Defaults.Workers,
		DryRun:   dryRun,
		Logger:   c.Logger,
	}), nil
}

// findSeverityLabels looks up the configured extra severity labels for a
// repo.
func findSeverityLabels(cfg *config.Config, fullName string) map[string]string {
	for _, rc := range cfg.Repos {
		if rc.Name == fullName {
			return rc.SeverityLabels
		}
	}
	return nil
}

// configuredRepos returns the repo names listed in config.
func configuredRepos(cfg *config.Config) []string {
	var names []string
	for _, rc := range cfg.Repos {
		if rc.Name != "" {
			names = append(names, rc.Name)
		}
	}
	return names
}
