package cmd

import (
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jacklau/dispatch/internal/render"
)

var logCmd = &cobra.Command{
	Use:   "log [issue-id]",
	Short: "Show the decision log",
	Long: `Log lists recorded decisions newest first: suggested assignments,
escalations, delivered notifications, severity suggestions and applied
assignments.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLog,
}

func init() {
	logCmd.Flags().Int("limit", 50, "maximum number of entries, 0 for all")
	rootCmd.AddCommand(logCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	bindFlags(cmd)
	var issueID string
	if len(args) == 1 {
		issueID = args[0]
	}

	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Store.Close()

	decs, err := c.Store.ListDecisions(issueID, viper.GetInt("limit"))
	if err != nil {
		return err
	}
	return output(cmd.OutOrStdout(), decs, func(w io.Writer) error {
		return render.Decisions(w, decs, time.Now())
	})
}
