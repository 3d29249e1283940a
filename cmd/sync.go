package cmd

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var syncCmd = &cobra.Command{
	Use:   "sync [owner/repo ...]",
	Short: "Import issues from GitHub once",
	Long: `Sync polls each repository once and stores new or changed issues,
their reporters and assignees. Repeated runs only fetch issues updated since
the last sync.

If no arguments are provided, all repos defined in the config file are
synced.`,
	RunE: runSync,
}

const defaultSyncWorkers = 4

func init() {
	syncCmd.Flags().Int("workers", defaultSyncWorkers, "number of repos polled concurrently")
	rootCmd.AddCommand(syncCmd)
}

// syncResult is the outcome of polling one repo.
type syncResult struct {
	Repo    string `json:"repo"`
	Changed int    `json:"changed"`
	Error   string `json:"error,omitempty"`
}

func runSync(cmd *cobra.Command, args []string) error {
	bindFlags(cmd)

	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Store.Close()

	repos, err := resolveRepos(args, configuredRepos(c.Config))
	if err != nil {
		return err
	}

	results := make([]syncResult, len(repos))
	index := make(map[string]int, len(repos))
	for i, r := range repos {
		index[r] = i
		results[i].Repo = r
	}

	var mu sync.Mutex
	var progress io.Writer = cmd.ErrOrStderr()
	if jsonOutput() {
		progress = nil
	}
	bar := newProgressBar(len(repos), "Syncing", progress)
	forEach(repos, viper.GetInt("workers"), func(repoArg string) {
		res := syncResult{Repo: repoArg}
		owner, repo, _ := parseRepoArg(repoArg)
		poller, err := createPoller(c, owner, repo)
		if err == nil {
			res.Changed, err = poller.Poll(cmd.Context())
		}
		if err != nil {
			res.Error = err.Error()
			c.Logger.Warn("sync failed", "repo", repoArg, "error", err)
		}

		mu.Lock()
		results[index[repoArg]] = res
		mu.Unlock()

		if res.Error != "" {
			bar.Fail()
			return
		}
		bar.Add(1)
	})
	bar.Finish()

	if err := output(cmd.OutOrStdout(), results, func(w io.Writer) error {
		return printSyncResults(w, results)
	}); err != nil {
		return err
	}

	var failed int
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d repos failed to sync", failed, len(results))
	}
	return nil
}

func printSyncResults(w io.Writer, results []syncResult) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Repository", "Changed", "Error"})
	var data [][]string
	for _, r := range results {
		errText := "-"
		if r.Error != "" {
			errText = r.Error
		}
		data = append(data, []string{r.Repo, strconv.Itoa(r.Changed), errText})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}
