package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jacklau/dispatch/internal/model"
	"github.com/jacklau/dispatch/internal/pipeline"
	"github.com/jacklau/dispatch/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Load users, issues and activity from a YAML file",
	Long: `Seed loads a team snapshot from YAML. Issues without a severity get one
suggested from their text, and issues without tags get keyword tags.

  users:
    - {id: alice, name: Alice, role: maintainer}
  issues:
    - id: ISS-1
      title: Checkout API returns 500
      severity: critical
      reporter_id: rita
      created_at: 2026-03-02T09:00:00Z
  activity:
    - {user: alice, issue: ISS-1, kind: comment, at: 2026-03-02T10:00:00Z}`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

type seedFile struct {
	Users    []seedUser     `yaml:"users"`
	Issues   []seedIssue    `yaml:"issues"`
	Activity []seedActivity `yaml:"activity"`
}

type seedUser struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Email  string `yaml:"email"`
	Role   string `yaml:"role"`
	Active *bool  `yaml:"active"`
}

type seedIssue struct {
	ID              string     `yaml:"id"`
	Title           string     `yaml:"title"`
	Description     string     `yaml:"description"`
	Tags            []string   `yaml:"tags"`
	Severity        string     `yaml:"severity"`
	Status          string     `yaml:"status"`
	CreatedAt       time.Time  `yaml:"created_at"`
	UpdatedAt       time.Time  `yaml:"updated_at"`
	StatusChangedAt *time.Time `yaml:"status_changed_at"`
	AssigneeID      string     `yaml:"assignee_id"`
	ReporterID      string     `yaml:"reporter_id"`
}

type seedActivity struct {
	User  string    `yaml:"user"`
	Issue string    `yaml:"issue"`
	Kind  string    `yaml:"kind"`
	At    time.Time `yaml:"at"`
}

// seedCounts summarizes what a seed run wrote.
type seedCounts struct {
	Users     int `json:"users"`
	Issues    int `json:"issues"`
	Suggested int `json:"suggested"`
	Activity  int `json:"activity"`
}

func parseSeed(data []byte) (*seedFile, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed YAML: %w", err)
	}
	return &f, nil
}

func (u seedUser) toUser() (*store.User, error) {
	if u.ID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	role := model.RoleMaintainer
	if u.Role != "" {
		r, err := model.ParseRole(u.Role)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", u.ID, err)
		}
		role = r
	}
	active := u.Active == nil || *u.Active
	return &store.User{ID: u.ID, Name: u.Name, Email: u.Email, Role: role, Active: active}, nil
}

// toIssue converts a seed entry. The second return reports whether the
// entry carried an explicit severity.
func (s seedIssue) toIssue(now time.Time) (model.Issue, bool, error) {
	issue := model.Issue{
		ID:              s.ID,
		Title:           s.Title,
		Description:     s.Description,
		Tags:            s.Tags,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		StatusChangedAt: s.StatusChangedAt,
		AssigneeID:      s.AssigneeID,
		ReporterID:      s.ReporterID,
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	hasSeverity := s.Severity != ""
	if hasSeverity {
		sev, err := model.ParseSeverity(s.Severity)
		if err != nil {
			return issue, false, fmt.Errorf("issue %s: %w", s.ID, err)
		}
		issue.Severity = sev
	}
	if s.Status != "" {
		st, err := model.ParseStatus(s.Status)
		if err != nil {
			return issue, false, fmt.Errorf("issue %s: %w", s.ID, err)
		}
		issue.Status = st
	}
	return issue, hasSeverity, nil
}

// applySeed writes the fixture through the store. Reporters that are not
// listed as users are created with the REPORTER role.
func applySeed(db *store.DB, p *pipeline.Pipeline, f *seedFile, now time.Time, progress io.Writer) (*seedCounts, error) {
	counts := &seedCounts{}

	for _, su := range f.Users {
		u, err := su.toUser()
		if err != nil {
			return counts, err
		}
		if err := db.UpsertUser(u); err != nil {
			return counts, err
		}
		counts.Users++
	}

	bar := newProgressBar(len(f.Issues), "Seeding issues", progress)
	for _, si := range f.Issues {
		issue, hasSeverity, err := si.toIssue(now)
		if err != nil {
			return counts, err
		}
		if issue.ReporterID != "" {
			if err := db.EnsureUser(issue.ReporterID, model.RoleReporter); err != nil {
				return counts, err
			}
		}
		if err := db.UpsertIssue(&issue); err != nil {
			return counts, err
		}
		_, changed, err := p.Suggest(&issue, hasSeverity)
		if err != nil {
			return counts, err
		}
		if changed {
			counts.Suggested++
		}
		counts.Issues++
		bar.Add(1)
	}
	bar.Finish()

	for _, a := range f.Activity {
		kind := a.Kind
		if kind == "" {
			kind = store.ActivityComment
		}
		if err := db.RecordActivity(a.User, a.Issue, kind, a.At); err != nil {
			return counts, err
		}
		counts.Activity++
	}
	return counts, nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}
	f, err := parseSeed(data)
	if err != nil {
		return err
	}

	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Store.Close()

	p, err := createPipeline(c, nil, "none", false)
	if err != nil {
		return err
	}
	var progress io.Writer = cmd.ErrOrStderr()
	if jsonOutput() {
		progress = nil
	}
	counts, err := applySeed(c.Store, p, f, time.Now(), progress)
	if err != nil {
		return fmt.Errorf("seeding: %w", err)
	}

	return output(cmd.OutOrStdout(), counts, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Seeded %d users, %d issues (%d with suggested severity or tags), %d activity events\n",
			counts.Users, counts.Issues, counts.Suggested, counts.Activity)
		return err
	})
}
