package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jacklau/dispatch/internal/render"
)

var assignCmd = &cobra.Command{
	Use:   "assign <issue-id>",
	Short: "Rank candidate assignees for an issue",
	Long: `Assign scores every active maintainer and admin for the issue on
expertise, workload, availability and past performance, and prints the
ranking with a short justification. Nothing is written; use 'dispatch apply'
to act on the suggestion.`,
	Args: cobra.ExactArgs(1),
	RunE: runAssign,
}

func init() {
	rootCmd.AddCommand(assignCmd)
}

func runAssign(cmd *cobra.Command, args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Store.Close()

	p, err := createPipeline(c, nil, "none", true)
	if err != nil {
		return err
	}
	report, err := p.ProcessIssue(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	switch {
	case report.Issue.Assigned():
		return fmt.Errorf("issue %s is already assigned to %s", report.Issue.ID, report.Issue.AssigneeID)
	case report.Assignment == nil:
		return fmt.Errorf("no assignee can be suggested: %s", report.AssignmentErr)
	}

	return output(cmd.OutOrStdout(), report.Assignment, func(w io.Writer) error {
		return render.Assignment(w, report.Assignment)
	})
}
