// Package assign ranks candidate assignees for an issue.
package assign

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jacklau/dispatch/internal/config"
	"github.com/jacklau/dispatch/internal/model"
	"github.com/jacklau/dispatch/internal/score"
)

// Notable sub-score thresholds used in justifications.
const (
	notableExpertise   = 7.0
	notableWorkload    = 8.0
	notablePerformance = 8.0

	fallbackJustification = "best overall balance of factors"
)

// Ranker orders eligible candidates by weighted score.
type Ranker struct {
	model           score.Model
	maxAlternatives int
	now             func() time.Time
	logger          *slog.Logger
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithModel replaces the scoring model.
func WithModel(m score.Model) Option {
	return func(r *Ranker) { r.model = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Ranker) { r.logger = l }
}

// WithClock sets the time source used by Rank.
func WithClock(now func() time.Time) Option {
	return func(r *Ranker) { r.now = now }
}

// NewRanker creates a Ranker using the policy's rule model unless WithModel
// is given.
func NewRanker(p config.Policy, opts ...Option) *Ranker {
	r := &Ranker{
		maxAlternatives: p.MaxAlternatives,
		now:             time.Now,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.model == nil {
		r.model = score.NewRuleModel(p)
	}
	return r
}

// Rank ranks candidates for issue at the current time.
func (r *Ranker) Rank(issue model.Issue, candidates []model.Candidate) (*model.AssignmentResult, error) {
	return r.RankAt(issue, candidates, r.now())
}

// RankAt ranks candidates for issue as of now. The result is fully
// determined by its inputs.
func (r *Ranker) RankAt(issue model.Issue, candidates []model.Candidate, now time.Time) (*model.AssignmentResult, error) {
	if issue.Terminal() {
		return nil, model.ErrIssueClosed
	}

	eligible, nce := filterEligible(issue.ID, candidates)
	if len(eligible) == 0 {
		return nil, nce
	}

	scored := make([]model.CandidateScore, len(eligible))
	var wg sync.WaitGroup
	for i, c := range eligible {
		wg.Add(1)
		go func(i int, c model.Candidate) {
			defer wg.Done()
			b := r.model.Score(issue, c, now)
			scored[i] = model.CandidateScore{
				CandidateID:   c.ID,
				Name:          c.DisplayName(),
				OpenAssigned:  c.OpenAssigned,
				Breakdown:     b,
				Justification: Justify(b),
			}
		}(i, c)
	}
	wg.Wait()

	sort.SliceStable(scored, func(i, j int) bool { return less(scored[i], scored[j]) })

	res := &model.AssignmentResult{
		IssueID:      issue.ID,
		Best:         scored[0],
		Alternatives: []model.CandidateScore{},
		Breakdown:    scored,
	}
	rest := scored[1:]
	if len(rest) > r.maxAlternatives {
		rest = rest[:r.maxAlternatives]
	}
	res.Alternatives = append(res.Alternatives, rest...)

	r.logger.Debug("ranked candidates",
		"issue", issue.ID,
		"eligible", len(eligible),
		"best", res.Best.CandidateID,
		"total", res.Best.Breakdown.Total,
	)
	return res, nil
}

func filterEligible(issueID string, candidates []model.Candidate) ([]model.Candidate, *model.NoCandidatesError) {
	nce := &model.NoCandidatesError{IssueID: issueID, Total: len(candidates)}
	var out []model.Candidate
	for _, c := range candidates {
		switch {
		case !c.Active:
			nce.Inactive++
		case c.Role == model.RoleReporter:
			nce.Reporters++
		default:
			out = append(out, c)
		}
	}
	return out, nce
}

// less orders by total desc, expertise desc, open count asc, id asc.
func less(a, b model.CandidateScore) bool {
	if a.Breakdown.Total != b.Breakdown.Total {
		return a.Breakdown.Total > b.Breakdown.Total
	}
	if a.Breakdown.Expertise != b.Breakdown.Expertise {
		return a.Breakdown.Expertise > b.Breakdown.Expertise
	}
	if a.OpenAssigned != b.OpenAssigned {
		return a.OpenAssigned < b.OpenAssigned
	}
	return a.CandidateID < b.CandidateID
}

// Justify assembles a short explanation from the notable sub-scores.
func Justify(b model.ScoreBreakdown) string {
	var reasons []string
	if b.Expertise >= notableExpertise {
		reasons = append(reasons, "strong expertise match")
	}
	if b.Workload >= notableWorkload {
		reasons = append(reasons, "currently available")
	}
	if b.Performance >= notablePerformance {
		reasons = append(reasons, "excellent track record")
	}
	if len(reasons) == 0 {
		return fallbackJustification
	}
	return strings.Join(reasons, "; ")
}
