package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/jacklau/dispatch/internal/escalate"
	"github.com/jacklau/dispatch/internal/model"
	"github.com/jacklau/dispatch/internal/notify"
	"github.com/jacklau/dispatch/internal/store"
)

// maxMessageWidth truncates long free-text cells in tables.
const maxMessageWidth = 80

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

func writeTable(w io.Writer, headers []string, data [][]string, numeric ...int) error {
	table := tablewriter.NewWriter(w)
	table.Header(headers)
	if len(numeric) > 0 {
		align := make([]tw.Align, len(headers))
		for i := range align {
			align[i] = tw.AlignLeft
		}
		for _, col := range numeric {
			align[col] = tw.AlignRight
		}
		table.Configure(func(cfg *tablewriter.Config) {
			cfg.Row.Alignment.PerColumn = align
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func score(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

// Assignment prints the ranked candidates of one assignment result, best
// first.
func Assignment(w io.Writer, res *model.AssignmentResult) error {
	fmt.Fprintf(w, "Issue %s: suggest %s (%s)\n", res.IssueID, res.Best.Name, score(res.Best.Breakdown.Total))

	data := make([][]string, 0, len(res.Breakdown))
	for i, c := range res.Breakdown {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			c.Name,
			score(c.Breakdown.Total),
			score(c.Breakdown.Expertise),
			score(c.Breakdown.Workload),
			score(c.Breakdown.Availability),
			score(c.Breakdown.Performance),
			strconv.Itoa(c.OpenAssigned),
			c.Justification,
		})
	}
	return writeTable(w,
		[]string{"Rank", "Candidate", "Total", "Expertise", "Workload", "Availability", "Performance", "Open", "Why"},
		data, 0, 2, 3, 4, 5, 6, 7)
}

// Estimate prints a resolution estimate.
func Estimate(w io.Writer, est escalate.ResolutionEstimate) error {
	_, err := fmt.Fprintf(w, "Issue %s: about %d hours (confidence %.0f%%)\nReason: %s\nExpected by: %s\n",
		est.IssueID, est.PredictedHours, est.Confidence*100, est.Reasoning,
		est.EstimatedCompletion.UTC().Format("2006-01-02 15:04 MST"))
	return err
}

// Assessments prints escalation assessments in the order given.
func Assessments(w io.Writer, as []model.EscalationAssessment) error {
	if len(as) == 0 {
		fmt.Fprintln(w, "No open issues.")
		return nil
	}
	data := make([][]string, 0, len(as))
	for _, a := range as {
		assignee := a.AssigneeID
		if assignee == "" {
			assignee = "-"
		}
		data = append(data, []string{
			a.IssueID,
			SeverityLabel(a.Severity),
			a.Status.String(),
			assignee,
			strconv.FormatFloat(a.BusinessHoursElapsed, 'f', 1, 64),
			LevelLabel(a.Level),
			score(a.RiskScore),
			score(a.PriorityScore),
			strings.Join(a.RiskFactors, ", "),
		})
	}
	return writeTable(w,
		[]string{"Issue", "Severity", "Status", "Assignee", "Bus. Hours", "Level", "Risk", "Priority", "Risk Factors"},
		data, 4, 6, 7)
}

// Feed prints a composed notification feed.
func Feed(w io.Writer, feed []model.Notification, now time.Time) error {
	if len(feed) == 0 {
		fmt.Fprintln(w, "Nothing to report.")
		return nil
	}
	data := make([][]string, 0, len(feed))
	for i, n := range feed {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			notify.TypeTitle(n.Type),
			UrgencyLabel(n.Urgency),
			notify.FormatTargets(n.TargetUserIDs),
			truncate(n.Message, maxMessageWidth),
			notify.TimeAgo(n.CreatedAt, now),
		})
	}
	return writeTable(w, []string{"#", "Type", "Urgency", "Targets", "Message", "Created"}, data, 0)
}

// Workload prints per-member open issue counts against the team average.
func Workload(w io.Writer, snap model.TeamWorkloadSnapshot) error {
	avg := snap.Average()
	data := make([][]string, 0, len(snap.Members))
	for _, m := range snap.Members {
		ratio := "-"
		if avg > 0 && m.Role != model.RoleReporter {
			ratio = strconv.FormatFloat(float64(m.OpenCount)/avg, 'f', 1, 64) + "x"
		}
		data = append(data, []string{m.UserID, m.Name, m.Role.String(), strconv.Itoa(m.OpenCount), ratio})
	}
	if err := writeTable(w, []string{"User", "Name", "Role", "Open", "Vs Avg"}, data, 3, 4); err != nil {
		return err
	}
	fmt.Fprintf(w, "Team average: %.1f open issues\n", avg)
	return nil
}

// Summary prints aggregate issue counts.
func Summary(w io.Writer, s *store.Summary) error {
	data := [][]string{
		{"Total issues", strconv.Itoa(s.Total)},
	}
	for _, st := range []model.Status{model.StatusOpen, model.StatusTriaged, model.StatusInProgress, model.StatusDone} {
		data = append(data, []string{"  " + st.String(), strconv.Itoa(s.ByStatus[st])})
	}
	for i := len(model.Severities) - 1; i >= 0; i-- {
		sev := model.Severities[i]
		data = append(data, []string{"Active " + SeverityLabel(sev), strconv.Itoa(s.BySeverity[sev])})
	}
	data = append(data,
		[]string{"Unassigned", strconv.Itoa(s.Unassigned)},
		[]string{"Users", strconv.Itoa(s.Users)},
		[]string{"Repositories", strconv.Itoa(s.Repos)},
	)
	return writeTable(w, []string{"Metric", "Count"}, data, 1)
}

// DailyStats prints daily status snapshots.
func DailyStats(w io.Writer, days []store.DailyStats) error {
	if len(days) == 0 {
		fmt.Fprintln(w, "No daily snapshots yet.")
		return nil
	}
	data := make([][]string, 0, len(days))
	for _, d := range days {
		data = append(data, []string{
			d.Date,
			strconv.Itoa(d.Open),
			strconv.Itoa(d.Triaged),
			strconv.Itoa(d.InProgress),
			strconv.Itoa(d.Done),
			strconv.Itoa(d.Total()),
		})
	}
	return writeTable(w, []string{"Date", "Open", "Triaged", "In Progress", "Done", "Total"}, data, 1, 2, 3, 4, 5)
}

// Decisions prints decision log entries.
func Decisions(w io.Writer, decs []store.Decision, now time.Time) error {
	if len(decs) == 0 {
		fmt.Fprintln(w, "No decisions logged.")
		return nil
	}
	data := make([][]string, 0, len(decs))
	for _, d := range decs {
		via := d.DeliveredVia
		if via == "" {
			via = "-"
		}
		data = append(data, []string{
			notify.TimeAgo(d.CreatedAt, now),
			d.IssueID,
			d.Kind,
			truncate(d.Summary, maxMessageWidth),
			via,
		})
	}
	return writeTable(w, []string{"When", "Issue", "Kind", "Summary", "Delivered"}, data)
}
