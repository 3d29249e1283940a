package score

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jacklau/dispatch/internal/cache"
	"github.com/jacklau/dispatch/internal/model"
)

var testTaxonomy = map[string][]string{
	"database": {"sql", "query"},
	"frontend": {"css", "ui"},
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func resolved(id, title string, age time.Duration) model.ResolvedIssue {
	return model.ResolvedIssue{
		ID:         id,
		Title:      title,
		CreatedAt:  t0.Add(-age - time.Hour),
		ResolvedAt: t0.Add(-age),
	}
}

func TestExpertise_NoDomainMatchIsNeutral(t *testing.T) {
	e := NewExpertise(testTaxonomy, 100)
	got := e.Score(model.Issue{Title: "hello world"}, model.Candidate{ID: "a"})
	assert.Equal(t, NeutralNoMatch, got)
}

func TestExpertise_WordBoundaries(t *testing.T) {
	e := NewExpertise(testTaxonomy, 100)
	assert.Empty(t, e.Domains("rebuild the guide"), "ui must not match inside build or guide")
	assert.Equal(t, []string{"frontend"}, e.Domains("the UI is broken"))
}

func TestExpertise_NoHistoryUsesNeutralHistorical(t *testing.T) {
	e := NewExpertise(testTaxonomy, 100)
	// sql: 2*0.5, query: 2*(5/6) -> intensity 8/3
	got := e.Score(model.Issue{Title: "SQL query slow"}, model.Candidate{ID: "a"})
	assert.InDelta(t, 0.7*(8.0/3)+0.3*5, got, 1e-9)
}

func TestExpertise_HistoricalOverlap(t *testing.T) {
	e := NewExpertise(testTaxonomy, 100)
	iss := model.Issue{Title: "SQL query slow"}

	half := model.Candidate{ID: "a", History: []model.ResolvedIssue{
		resolved("1", "sql migration", 2*time.Hour),
		resolved("2", "css fix", 3*time.Hour),
	}}
	all := model.Candidate{ID: "b", History: []model.ResolvedIssue{
		resolved("1", "sql migration", 2*time.Hour),
		resolved("2", "slow query", 3*time.Hour),
	}}

	assert.InDelta(t, 0.7*(8.0/3)+0.3*5, e.Score(iss, half), 1e-9)
	assert.InDelta(t, 0.7*(8.0/3)+0.3*10, e.Score(iss, all), 1e-9)
}

func TestExpertise_HistoryLimitKeepsNewest(t *testing.T) {
	e := NewExpertise(testTaxonomy, 1)
	c := model.Candidate{ID: "a", History: []model.ResolvedIssue{
		resolved("old", "sql migration", 48*time.Hour),
		resolved("new", "css fix", time.Hour),
	}}
	got := e.Score(model.Issue{Title: "SQL query slow"}, c)
	assert.InDelta(t, 0.7*(8.0/3), got, 1e-9)
	assert.Equal(t, "old", c.History[0].ID, "input history must not be reordered")
}

func TestExpertise_CurrentMatchCapped(t *testing.T) {
	e := NewExpertise(testTaxonomy, 100)
	iss := model.Issue{Title: strings.Repeat("sql ", 40)}
	assert.InDelta(t, 0.7*10+0.3*5, e.Score(iss, model.Candidate{ID: "a"}), 1e-9)
}

func TestExpertise_TagsCount(t *testing.T) {
	e := NewExpertise(testTaxonomy, 100)
	iss := model.Issue{Title: "something odd", Tags: []string{"CSS"}}
	assert.Equal(t, []string{"frontend"}, e.Domains(iss.Text()))
}

func TestExpertise_CachedMatchesUncached(t *testing.T) {
	c := cache.NewTTL[string, float64](time.Hour)
	cached := NewExpertise(testTaxonomy, 100, WithHistoryCache(c))
	plain := NewExpertise(testTaxonomy, 100)

	cand := model.Candidate{ID: "a", History: []model.ResolvedIssue{
		resolved("1", "sql migration", 2*time.Hour),
		resolved("2", "css fix", 3*time.Hour),
		resolved("3", "layout", 4*time.Hour),
	}}
	iss := model.Issue{Title: "query planner"}

	want := plain.Score(iss, cand)
	assert.Equal(t, want, cached.Score(iss, cand))
	assert.Equal(t, want, cached.Score(iss, cand))
	assert.Equal(t, 1, c.Len())

	hits, _ := c.Stats()
	assert.Equal(t, uint64(1), hits)

	// A new resolution changes the key rather than serving a stale value.
	cand.History = append(cand.History, resolved("4", "sql index", time.Hour))
	assert.Equal(t, plain.Score(iss, cand), cached.Score(iss, cand))
	assert.Equal(t, 2, c.Len())
}

func TestExpertise_CachedMatchesUncachedAfterHistoryEdit(t *testing.T) {
	c := cache.NewTTL[string, float64](time.Hour)
	cached := NewExpertise(testTaxonomy, 100, WithHistoryCache(c))
	plain := NewExpertise(testTaxonomy, 100)

	cand := model.Candidate{ID: "a", History: []model.ResolvedIssue{
		resolved("r1", "css layout", 2*time.Hour),
		resolved("r2", "ui polish", 3*time.Hour),
	}}
	iss := model.Issue{Title: "sql query slow"}
	assert.Equal(t, plain.Score(iss, cand), cached.Score(iss, cand))

	// Same ids and resolution times, different text.
	cand.History[0].Title = "sql query"
	want := plain.Score(iss, cand)
	assert.Equal(t, want, cached.Score(iss, cand))
	assert.Equal(t, 2, c.Len())

	// Tags alone change the history text too.
	cand.History[1].Tags = []string{"sql"}
	assert.Equal(t, plain.Score(iss, cand), cached.Score(iss, cand))
	assert.Greater(t, plain.Score(iss, cand), want)
}

func TestExpertise_HistoryTagsCountTowardOverlap(t *testing.T) {
	e := NewExpertise(testTaxonomy, 100)
	iss := model.Issue{Title: "slow report", Tags: []string{"sql"}}

	untagged := model.Candidate{ID: "a", History: []model.ResolvedIssue{resolved("1", "slow report", time.Hour)}}
	tagged := model.Candidate{ID: "b", History: []model.ResolvedIssue{resolved("1", "slow report", time.Hour)}}
	tagged.History[0].Tags = []string{"SQL"}

	assert.Equal(t, 0.0, e.Signals(iss, untagged).Overlap)
	assert.Equal(t, 1.0, e.Signals(iss, tagged).Overlap)
}

func TestExpertise_NonWordKeywords(t *testing.T) {
	e := NewExpertise(map[string][]string{"lang": {"c++", "c#", ".net"}}, 100)
	assert.Equal(t, []string{"lang"}, e.Domains("c++ crash in c# and .net code"))
	assert.Empty(t, e.Domains("plain c code"))
}

func TestLengthWeight(t *testing.T) {
	assert.Equal(t, 0.5, lengthWeight("ui"))
	assert.Equal(t, 1.0, lengthWeight("review"))
	assert.Equal(t, 1.5, lengthWeight("authentication"))
}
