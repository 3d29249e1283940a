package cmd

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacklau/dispatch/internal/escalate"
	"github.com/jacklau/dispatch/internal/render"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate <issue-id>",
	Short: "Estimate how long an issue will take to resolve",
	Long: `Estimate predicts resolution time from the issue's severity and tags:
24, 8, 4 or 2 hours for LOW to CRITICAL, shortened for ui work and lengthened
for backend, database or security work.`,
	Args: cobra.ExactArgs(1),
	RunE: runEstimate,
}

func init() {
	rootCmd.AddCommand(estimateCmd)
}

func runEstimate(cmd *cobra.Command, args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Store.Close()

	issue, err := c.Store.GetIssue(args[0])
	if err != nil {
		return err
	}
	est := escalate.EstimateResolution(*issue, time.Now())
	return output(cmd.OutOrStdout(), est, func(w io.Writer) error {
		return render.Estimate(w, est)
	})
}
