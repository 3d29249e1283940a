package assign

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacklau/dispatch/internal/config"
	"github.com/jacklau/dispatch/internal/model"
	"github.com/jacklau/dispatch/internal/score"
)

var now = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

// fixedModel returns canned breakdowns per candidate id.
type fixedModel map[string]model.ScoreBreakdown

func (m fixedModel) Score(_ model.Issue, c model.Candidate, _ time.Time) model.ScoreBreakdown {
	return m[c.ID]
}

func breakdown(expertise, performance, availability float64, open int) model.ScoreBreakdown {
	b := model.ScoreBreakdown{
		Expertise:    expertise,
		Workload:     score.Workload(open),
		Performance:  performance,
		Availability: availability,
	}
	b.Total = score.Total(b, config.DefaultWeights)
	return b
}

func maintainer(id string, open int) model.Candidate {
	return model.Candidate{ID: id, Role: model.RoleMaintainer, Active: true, OpenAssigned: open}
}

func newTestRanker(m score.Model, opts ...Option) *Ranker {
	opts = append([]Option{WithModel(m), WithClock(func() time.Time { return now })}, opts...)
	return NewRanker(config.DefaultPolicy(), opts...)
}

func TestRank_WorkloadPenaltyDominates(t *testing.T) {
	cands := []model.Candidate{
		maintainer("bob", 12),
		maintainer("carol", 4),
		maintainer("alice", 0),
		maintainer("dave", 2),
		maintainer("erin", 7),
	}
	m := fixedModel{
		"alice": breakdown(9, 8, 6, 0),
		"bob":   breakdown(10, 8, 10, 12),
		"carol": breakdown(6, 5, 6, 4),
		"dave":  breakdown(5, 5, 4, 2),
		"erin":  breakdown(7, 9, 8, 7),
	}

	res, err := newTestRanker(m).Rank(model.Issue{ID: "42"}, cands)
	require.NoError(t, err)

	assert.Equal(t, "42", res.IssueID)
	assert.Equal(t, "alice", res.Best.CandidateID)
	assert.InDelta(t, 8.3, res.Best.Breakdown.Total, 1e-9)
	assert.Equal(t, "strong expertise match; currently available; excellent track record", res.Best.Justification)

	var alt []string
	for _, a := range res.Alternatives {
		alt = append(alt, a.CandidateID)
	}
	assert.Equal(t, []string{"bob", "erin", "carol"}, alt)
	require.Len(t, res.Breakdown, 5)
	assert.Equal(t, "dave", res.Breakdown[4].CandidateID)
	assert.Equal(t, "currently available", res.Breakdown[4].Justification)
	assert.Equal(t, fallbackJustification, res.Breakdown[3].Justification)
}

func TestRank_TieBreaks(t *testing.T) {
	same := model.ScoreBreakdown{Expertise: 5, Workload: 8, Performance: 5, Availability: 5, Total: 5}
	hiExp := model.ScoreBreakdown{Expertise: 6, Workload: 8, Performance: 4.5, Availability: 5, Total: 5}

	m := fixedModel{"d": same, "c": same, "b": same, "a": hiExp}
	cands := []model.Candidate{maintainer("d", 3), maintainer("c", 1), maintainer("b", 1), maintainer("a", 3)}

	res, err := newTestRanker(m).Rank(model.Issue{ID: "1"}, cands)
	require.NoError(t, err)

	var order []string
	for _, s := range res.Breakdown {
		order = append(order, s.CandidateID)
	}
	// expertise first, then fewer open issues, then id
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestRank_Idempotent(t *testing.T) {
	r := NewRanker(config.DefaultPolicy(), WithClock(func() time.Time { return now }))
	iss := model.Issue{ID: "9", Title: "SQL query timeout", Description: "the database index is missing", Severity: model.SeverityHigh}

	var cands []model.Candidate
	for i, id := range []string{"p", "q", "r", "s", "t", "u"} {
		c := maintainer(id, i%3)
		c.History = []model.ResolvedIssue{{
			ID: id + "-1", Title: "slow query", Severity: model.SeverityHigh,
			CreatedAt: now.Add(-50 * time.Hour), ResolvedAt: now.Add(-48 * time.Hour),
		}}
		cands = append(cands, c)
	}

	first, err := r.Rank(iss, cands)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := r.Rank(iss, cands)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "p", first.Best.CandidateID, "equal scores fall back to id order")
}

func TestRank_RuleModelPrefersIdleExpert(t *testing.T) {
	r := NewRanker(config.DefaultPolicy(), WithClock(func() time.Time { return now }))
	iss := model.Issue{ID: "5", Title: "Login token rejected", Description: "auth service returns 401", Severity: model.SeverityCritical}

	history := []model.ResolvedIssue{{
		ID: "h1", Title: "token refresh broken in auth", Severity: model.SeverityLow,
		CreatedAt: now.Add(-30 * time.Hour), ResolvedAt: now.Add(-24 * time.Hour),
	}}
	idle := maintainer("idle", 0)
	idle.History = history
	busy := maintainer("busy", 12)
	busy.History = history

	res, err := r.Rank(iss, []model.Candidate{busy, idle})
	require.NoError(t, err)
	assert.Equal(t, "idle", res.Best.CandidateID)
	assert.Greater(t, res.Best.Breakdown.Total, res.Alternatives[0].Breakdown.Total)
}

func TestRank_NoEligibleCandidates(t *testing.T) {
	r := newTestRanker(fixedModel{})

	_, err := r.Rank(model.Issue{ID: "1"}, nil)
	assert.True(t, errors.Is(err, model.ErrNoCandidates))

	cands := []model.Candidate{
		{ID: "gone", Role: model.RoleAdmin, Active: false},
		{ID: "rep", Role: model.RoleReporter, Active: true},
	}
	res, err := r.Rank(model.Issue{ID: "1"}, cands)
	assert.Nil(t, res)
	require.ErrorIs(t, err, model.ErrNoCandidates)

	var nce *model.NoCandidatesError
	require.ErrorAs(t, err, &nce)
	assert.Equal(t, 2, nce.Total)
	assert.Equal(t, 1, nce.Inactive)
	assert.Equal(t, 1, nce.Reporters)
}

func TestRank_ClosedIssue(t *testing.T) {
	_, err := newTestRanker(fixedModel{}).Rank(model.Issue{ID: "1", Status: model.StatusDone}, []model.Candidate{maintainer("a", 0)})
	assert.ErrorIs(t, err, model.ErrIssueClosed)
}

func TestRank_AlternativesCap(t *testing.T) {
	p := config.DefaultPolicy()
	p.MaxAlternatives = 1
	m := fixedModel{"a": breakdown(9, 5, 5, 0), "b": breakdown(5, 5, 5, 0), "c": breakdown(1, 5, 5, 0)}
	r := NewRanker(p, WithModel(m))

	res, err := r.Rank(model.Issue{ID: "1"}, []model.Candidate{maintainer("a", 0), maintainer("b", 0), maintainer("c", 0)})
	require.NoError(t, err)
	require.Len(t, res.Alternatives, 1)
	assert.Equal(t, "b", res.Alternatives[0].CandidateID)
	assert.Len(t, res.Breakdown, 3)

	single, err := r.Rank(model.Issue{ID: "2"}, []model.Candidate{maintainer("a", 0)})
	require.NoError(t, err)
	assert.Empty(t, single.Alternatives)
	assert.NotNil(t, single.Alternatives)
}

func TestJustify(t *testing.T) {
	assert.Equal(t, fallbackJustification, Justify(model.ScoreBreakdown{}))
	assert.Equal(t, "excellent track record", Justify(model.ScoreBreakdown{Performance: 8}))
	assert.Equal(t, "strong expertise match; excellent track record", Justify(model.ScoreBreakdown{Expertise: 7, Performance: 9}))
}
