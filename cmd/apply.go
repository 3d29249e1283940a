package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jacklau/dispatch/internal/github"
	"github.com/jacklau/dispatch/internal/model"
	"github.com/jacklau/dispatch/internal/store"
)

var applyCmd = &cobra.Command{
	Use:   "apply <issue-id> [user]",
	Short: "Assign an issue, to the top-ranked candidate by default",
	Long: `Apply records an assignment and logs it as an approved human decision.
Without a user the top-ranked candidate from 'dispatch assign' is used.

For GitHub issues (owner/repo#N) with a GitHub App configured, the assignee
is also set on GitHub and the ranking justification is posted as a comment.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().Bool("local", false, "only record the assignment locally, never write to GitHub")
	applyCmd.Flags().Bool("comment", true, "post the justification as a GitHub comment")
	rootCmd.AddCommand(applyCmd)
}

// appliedAssignment is the outcome of an apply run.
type appliedAssignment struct {
	IssueID       string                  `json:"issue_id"`
	AssigneeID    string                  `json:"assignee_id"`
	Via           string                  `json:"via"`
	Justification string                  `json:"justification,omitempty"`
	Ranking       *model.AssignmentResult `json:"ranking,omitempty"`
}

// chooseAssignee returns the requested user, or the best-ranked candidate
// when none was given. An explicit user must be an active non-reporter.
func chooseAssignee(db *store.DB, requested string, ranking *model.AssignmentResult, reason string) (string, string, error) {
	if requested == "" {
		if ranking == nil {
			return "", "", fmt.Errorf("no assignee can be suggested: %s", reason)
		}
		return ranking.Best.CandidateID, ranking.Best.Justification, nil
	}

	u, err := db.GetUser(requested)
	if err != nil {
		return "", "", err
	}
	if !u.Active || u.Role == model.RoleReporter {
		return "", "", fmt.Errorf("user %s (%s, active=%t) cannot be assigned work", u.ID, u.Role, u.Active)
	}
	if ranking != nil {
		for _, c := range ranking.Breakdown {
			if c.CandidateID == requested {
				return requested, c.Justification, nil
			}
		}
	}
	return requested, "", nil
}

func runApply(cmd *cobra.Command, args []string) error {
	bindFlags(cmd)
	issueID := args[0]
	var requested string
	if len(args) == 2 {
		requested = args[1]
	}

	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Store.Close()
	logger := c.Logger

	p, err := createPipeline(c, nil, "none", true)
	if err != nil {
		return err
	}
	report, err := p.ProcessIssue(cmd.Context(), issueID)
	if err != nil {
		return err
	}
	if report.Issue.Assigned() && (requested == "" || report.Issue.AssigneeID == requested) {
		return fmt.Errorf("issue %s is already assigned to %s; name another user to reassign", issueID, report.Issue.AssigneeID)
	}

	assignee, justification, err := chooseAssignee(c.Store, requested, report.Assignment, report.AssignmentErr)
	if err != nil {
		return err
	}

	via := "local"
	if _, _, _, keyErr := github.ParseIssueKey(issueID); keyErr == nil && !viper.GetBool("local") && c.Config.GitHub.AppID != "" {
		comment := ""
		if viper.GetBool("comment") && justification != "" {
			comment = fmt.Sprintf("Assigned to @%s by dispatch: %s.", assignee, justification)
		}
		if err := github.NewAssigner(c.GHClient).Assign(cmd.Context(), issueID, assignee, comment); err != nil {
			return err
		}
		via = "github"
	}

	now := time.Now()
	if err := c.Store.AssignIssue(issueID, assignee, now); err != nil {
		return fmt.Errorf("recording assignment: %w", err)
	}
	if err := c.Store.RecordActivity(assignee, issueID, store.ActivityAssignment, now); err != nil {
		logger.Warn("failed to record assignment activity", "error", err)
	}

	result := appliedAssignment{
		IssueID:       issueID,
		AssigneeID:    assignee,
		Via:           via,
		Justification: justification,
		Ranking:       report.Assignment,
	}
	payload, _ := json.Marshal(result)
	if err := c.Store.LogDecision(&store.Decision{
		IssueID:      issueID,
		Kind:         store.DecisionApplied,
		Summary:      fmt.Sprintf("assigned to %s (approved)", assignee),
		Payload:      payload,
		DeliveredVia: via,
		CreatedAt:    now,
	}); err != nil {
		logger.Warn("failed to log applied decision", "error", err)
	}

	return output(cmd.OutOrStdout(), result, func(w io.Writer) error {
		fmt.Fprintf(w, "Assigned %s to %s (%s)\n", issueID, assignee, via)
		if justification != "" {
			fmt.Fprintf(w, "Reason: %s\n", justification)
		}
		return nil
	})
}
