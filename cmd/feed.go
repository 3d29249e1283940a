package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jacklau/dispatch/internal/render"
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Compose the team notification feed",
	Long: `Feed sweeps every open issue and composes a prioritized list of
escalations, issues needing an assignee, workload imbalances and severity
patterns.

By default the feed is only printed. With --send it is delivered to the
configured Slack or Discord webhooks, recorded in the decision log, and the
day's status counts are snapshotted.`,
	Args: cobra.NoArgs,
	RunE: runFeed,
}

func init() {
	feedCmd.Flags().Bool("send", false, "deliver the feed and record it")
	feedCmd.Flags().String("notify", "", "notification target: slack, discord, or both")
	feedCmd.Flags().Bool("workload", false, "also print per-member workload")
	rootCmd.AddCommand(feedCmd)
}

func runFeed(cmd *cobra.Command, args []string) error {
	bindFlags(cmd)
	send := viper.GetBool("send")

	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Store.Close()

	n, channel, err := createNotifier(c.Config, viper.GetString("notify"))
	if err != nil {
		return fmt.Errorf("creating notifier: %w", err)
	}
	if send && n == nil {
		return fmt.Errorf("no notification channel configured (set notify.slack_webhook or notify.discord_webhook)")
	}

	p, err := createPipeline(c, n, channel, !send)
	if err != nil {
		return err
	}
	report, err := p.Sweep(cmd.Context())
	if err != nil {
		return err
	}

	err = output(cmd.OutOrStdout(), report, func(w io.Writer) error {
		if err := render.Feed(w, report.Notifications, report.At); err != nil {
			return err
		}
		if viper.GetBool("workload") {
			fmt.Fprintln(w)
			if err := render.Workload(w, report.Workload); err != nil {
				return err
			}
		}
		if report.Delivered {
			fmt.Fprintf(w, "Delivered %d notifications via %s\n", len(report.Notifications), channel)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if send && len(report.Notifications) > 0 && !report.Delivered {
		return fmt.Errorf("delivery via %s failed; see log for details", channel)
	}
	return nil
}
