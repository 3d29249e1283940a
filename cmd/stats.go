package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jacklau/dispatch/internal/notify"
	"github.com/jacklau/dispatch/internal/render"
	"github.com/jacklau/dispatch/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show issue counts, daily history and sync health",
	Long: `Display issue counts by status and severity, the recent daily
snapshots, last sync time per repository, and the database size.

--snapshot records today's status counts first; 'dispatch feed --send' and
'dispatch watch' record it automatically on every sweep.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().Int("days", 14, "number of daily snapshots to show")
	statsCmd.Flags().Bool("snapshot", false, "record today's counts before printing")
	rootCmd.AddCommand(statsCmd)
}

type statsReport struct {
	Summary *store.Summary     `json:"summary"`
	Daily   []store.DailyStats `json:"daily"`
	Repos   []store.Repo       `json:"repos"`
	DBPath  string             `json:"db_path"`
	DBBytes int64              `json:"db_bytes"`
}

func runStats(cmd *cobra.Command, args []string) error {
	bindFlags(cmd)

	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Store.Close()

	now := time.Now()
	if viper.GetBool("snapshot") {
		if _, err := c.Store.AggregateDailyStats(now); err != nil {
			return err
		}
	}

	report := statsReport{DBPath: c.Config.Store.Path}
	if report.Summary, err = c.Store.GetSummary(); err != nil {
		return fmt.Errorf("querying summary: %w", err)
	}
	if report.Daily, err = c.Store.ListDailyStats(viper.GetInt("days")); err != nil {
		return err
	}
	if report.Repos, err = c.Store.ListRepos(); err != nil {
		return err
	}
	report.DBBytes, _ = dbFileSize(c.Config.Store.Path)

	return output(cmd.OutOrStdout(), report, func(w io.Writer) error {
		return printStats(w, report, now)
	})
}

func printStats(w io.Writer, r statsReport, now time.Time) error {
	if err := render.Summary(w, r.Summary); err != nil {
		return err
	}
	fmt.Fprintln(w)
	if err := render.DailyStats(w, r.Daily); err != nil {
		return err
	}

	if len(r.Repos) > 0 {
		fmt.Fprintln(w)
		table := tablewriter.NewWriter(w)
		table.Header([]string{"Repository", "Last Synced"})
		var data [][]string
		for _, repo := range r.Repos {
			last := "never"
			if repo.LastPolledAt != nil {
				last = notify.TimeAgo(*repo.LastPolledAt, now)
			}
			data = append(data, []string{repo.FullName(), last})
		}
		if err := table.Bulk(data); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	if r.DBBytes > 0 {
		fmt.Fprintf(w, "Database: %s (%s)\n", r.DBPath, formatBytes(r.DBBytes))
	} else {
		fmt.Fprintf(w, "Database: %s (size unknown)\n", r.DBPath)
	}
	return nil
}
