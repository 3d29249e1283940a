package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jacklau/dispatch/internal/model"
	"github.com/jacklau/dispatch/internal/render"
)

var escalateCmd = &cobra.Command{
	Use:   "escalate [issue-id]",
	Short: "Classify open issues by escalation level",
	Long: `Escalate measures how long each open issue has sat in its current
status, in business hours, against the severity's warning, escalate and
urgent thresholds. Risk factors such as an unassigned high-severity issue or
urgent wording can force an escalation early.

Without an argument every open issue is listed, highest priority first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEscalate,
}

func init() {
	escalateCmd.Flags().String("min-level", "none", "only show issues at or above this level: none, warning, escalate, urgent")
	rootCmd.AddCommand(escalateCmd)
}

func parseLevel(s string) (model.EscalationLevel, error) {
	for _, l := range []model.EscalationLevel{model.LevelNone, model.LevelWarning, model.LevelEscalate, model.LevelUrgent} {
		if strings.EqualFold(s, l.String()) {
			return l, nil
		}
	}
	return model.LevelNone, fmt.Errorf("unknown escalation level %q", s)
}

func filterLevel(as []model.EscalationAssessment, minLevel model.EscalationLevel) []model.EscalationAssessment {
	out := make([]model.EscalationAssessment, 0, len(as))
	for _, a := range as {
		if a.Level >= minLevel {
			out = append(out, a)
		}
	}
	return out
}

func runEscalate(cmd *cobra.Command, args []string) error {
	bindFlags(cmd)
	minLevel, err := parseLevel(viper.GetString("min-level"))
	if err != nil {
		return err
	}

	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Store.Close()

	p, err := createPipeline(c, nil, "none", true)
	if err != nil {
		return err
	}

	var assessments []model.EscalationAssessment
	if len(args) == 1 {
		report, err := p.ProcessIssue(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		assessments = []model.EscalationAssessment{report.Assessment}
	} else {
		report, err := p.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		assessments = report.Assessments
	}
	assessments = filterLevel(assessments, minLevel)

	return output(cmd.OutOrStdout(), assessments, func(w io.Writer) error {
		return render.Assessments(w, assessments)
	})
}
