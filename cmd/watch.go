package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jacklau/dispatch/internal/github"
)

var watchCmd = &cobra.Command{
	Use:   "watch [owner/repo ...]",
	Short: "Continuously poll repos and dispatch issues as they change",
	Long: `Watch GitHub repositories for new and updated issues. Each new issue
gets a severity suggestion when it carries no severity label, a ranked
assignee suggestion and an escalation check. The whole team feed is swept
on a separate interval.

Multiple repos can be specified as arguments:
  dispatch watch org/repo1 org/repo2

If no arguments are provided, all repos defined in the config file
will be watched.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().String("interval", "", "poll interval (default defaults.poll_interval)")
	watchCmd.Flags().String("sweep", "", "team feed sweep interval, 0 to disable (default defaults.sweep_interval)")
	watchCmd.Flags().String("notify", "", "notification target: slack, discord, or both")
	watchCmd.Flags().Bool("dry-run", false, "compute decisions but skip delivery and logging")
	rootCmd.AddCommand(watchCmd)
}

// durationFlag returns the parsed flag value, or fallback when it is unset.
func durationFlag(raw string, fallback func() (time.Duration, error)) (time.Duration, error) {
	if raw == "" {
		return fallback()
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	return d, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	bindFlags(cmd)

	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Store.Close()
	logger := c.Logger

	repos, err := resolveRepos(args, configuredRepos(c.Config))
	if err != nil {
		return err
	}

	interval, err := durationFlag(viper.GetString("interval"), c.Config.Defaults.PollInterval)
	if err != nil {
		return err
	}
	sweepEvery, err := durationFlag(viper.GetString("sweep"), c.Config.Defaults.SweepInterval)
	if err != nil {
		return err
	}

	dryRun := viper.GetBool("dry-run")
	n, channel, err := createNotifier(c.Config, viper.GetString("notify"))
	if err != nil {
		return fmt.Errorf("creating notifier: %w", err)
	}
	if dryRun {
		logger.Info("dry-run mode enabled, notifications disabled")
	}

	// One pipeline, shared across all pollers via the broker.
	p, err := createPipeline(c, n, channel, dryRun)
	if err != nil {
		return err
	}

	var pollers []*github.Poller
	for _, repoArg := range repos {
		owner, repo, _ := parseRepoArg(repoArg)
		poller, err := createPoller(c, owner, repo)
		if err != nil {
			return err
		}
		pollers = append(pollers, poller)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	for _, repoArg := range repos {
		logger.Info("starting watch", "repo", repoArg, "interval", interval.String())
	}

	pipelineErr := make(chan error, 1)
	go func() {
		pipelineErr <- p.Run(ctx, sweepEvery)
	}()

	// Pollers publish from the first cycle; wait for the pipeline to listen.
	for deadline := time.Now().Add(time.Second); c.Broker.Subscribers() == 0 && time.Now().Before(deadline); {
		time.Sleep(10 * time.Millisecond)
	}

	pollerErr := make(chan error, len(pollers))
	for _, poller := range pollers {
		go func() {
			pollerErr <- poller.Run(ctx, interval)
		}()
	}

	select {
	case err := <-pipelineErr:
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("pipeline error: %w", err)
		}
	case err := <-pollerErr:
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("poller error: %w", err)
		}
	}

	logger.Info("watch stopped")
	return nil
}
