package score

import (
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/jacklau/dispatch/internal/cache"
	"github.com/jacklau/dispatch/internal/keyword"
	"github.com/jacklau/dispatch/internal/model"
)

const (
	// NeutralNoMatch is returned when the issue matches no taxonomy domain.
	NeutralNoMatch = 6.0
	// NeutralNoHistory is the historical component for candidates without
	// resolved issues.
	NeutralNoHistory = 5.0

	currentWeight    = 0.7
	historicalWeight = 0.3
	intensityFactor  = 2.0
)

type keywordMatcher struct {
	re     *regexp.Regexp
	weight float64
}

type domainMatcher struct {
	name     string
	keywords []keywordMatcher
}

// Expertise scores how well a candidate's history fits the domains an issue
// touches. It is safe for concurrent use.
type Expertise struct {
	domains      []domainMatcher
	historyLimit int
	cache        cache.Cache[string, float64]
}

// ExpertiseOption configures an Expertise scorer.
type ExpertiseOption func(*Expertise)

// WithHistoryCache caches historical scores. Results are identical with or
// without a cache.
func WithHistoryCache(c cache.Cache[string, float64]) ExpertiseOption {
	return func(e *Expertise) { e.cache = c }
}

// NewExpertise compiles the taxonomy into whole-word matchers.
func NewExpertise(taxonomy map[string][]string, historyLimit int, opts ...ExpertiseOption) *Expertise {
	names := make([]string, 0, len(taxonomy))
	for name := range taxonomy {
		names = append(names, name)
	}
	sort.Strings(names)

	e := &Expertise{historyLimit: historyLimit}
	for _, name := range names {
		dm := domainMatcher{name: name}
		for _, raw := range taxonomy[name] {
			kw, ok := keyword.Normalize(raw)
			if !ok {
				continue
			}
			dm.keywords = append(dm.keywords, keywordMatcher{
				re:     keyword.Pattern(kw),
				weight: lengthWeight(kw),
			})
		}
		if len(dm.keywords) > 0 {
			e.domains = append(e.domains, dm)
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// lengthWeight favours longer, more specific keywords.
func lengthWeight(kw string) float64 {
	return clampRange(float64(len(kw))/6, 0.5, 1.5)
}

// Intensities returns the match intensity of every domain found in text.
// Domains with no keyword hit are absent from the map.
func (e *Expertise) Intensities(text string) map[string]float64 {
	text = strings.ToLower(text)
	out := make(map[string]float64)
	for _, d := range e.domains {
		var sum float64
		for _, kw := range d.keywords {
			if n := len(kw.re.FindAllStringIndex(text, -1)); n > 0 {
				sum += float64(n) * kw.weight
			}
		}
		if sum > 0 {
			out[d.name] = intensityFactor * sum
		}
	}
	return out
}

// Domains returns the sorted names of the domains found in text.
func (e *Expertise) Domains(text string) []string {
	m := e.Intensities(text)
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExpertiseSignals are the raw inputs of the expertise score.
type ExpertiseSignals struct {
	Matched bool
	// Intensity is the strongest domain match, capped at 10.
	Intensity float64
	// Overlap is the fraction of recent resolved issues sharing a domain with
	// the issue, or -1 without history.
	Overlap float64
}

// Signals computes the expertise inputs for a candidate.
func (e *Expertise) Signals(issue model.Issue, c model.Candidate) ExpertiseSignals {
	intensities := e.Intensities(issue.Text())
	if len(intensities) == 0 {
		return ExpertiseSignals{Overlap: -1}
	}
	var best float64
	for _, v := range intensities {
		best = math.Max(best, v)
	}
	return ExpertiseSignals{
		Matched:   true,
		Intensity: math.Min(best, 10),
		Overlap:   e.overlap(c, intensities),
	}
}

// Score returns the expertise score in [0,10].
func (e *Expertise) Score(issue model.Issue, c model.Candidate) float64 {
	sig := e.Signals(issue, c)
	if !sig.Matched {
		return NeutralNoMatch
	}
	historical := NeutralNoHistory
	if sig.Overlap >= 0 {
		historical = sig.Overlap * 10
	}
	return clamp(currentWeight*sig.Intensity + historicalWeight*historical)
}

func (e *Expertise) overlap(c model.Candidate, matched map[string]float64) float64 {
	recent := recentHistory(c.History, e.historyLimit)
	if len(recent) == 0 {
		return -1
	}

	var key string
	if e.cache != nil {
		key = historyKey(c.ID, matched, recent)
		if v, ok := e.cache.Get(key); ok {
			return v
		}
	}

	var hits int
	for _, r := range recent {
		for name := range e.Intensities(r.Text()) {
			if _, ok := matched[name]; ok {
				hits++
				break
			}
		}
	}
	v := float64(hits) / float64(len(recent))

	if e.cache != nil {
		e.cache.Set(key, v)
	}
	return v
}

// recentHistory returns up to limit resolved issues, newest first, without
// modifying the input.
func recentHistory(history []model.ResolvedIssue, limit int) []model.ResolvedIssue {
	if len(history) == 0 {
		return nil
	}
	sorted := make([]model.ResolvedIssue, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ResolvedAt.Equal(sorted[j].ResolvedAt) {
			return sorted[i].ResolvedAt.After(sorted[j].ResolvedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// historyKey identifies a historical score by candidate, matched domains and
// a digest of every recent entry's id and text, so an edited resolution
// yields a new key.
func historyKey(candidateID string, matched map[string]float64, recent []model.ResolvedIssue) string {
	names := make([]string, 0, len(matched))
	for name := range matched {
		names = append(names, name)
	}
	sort.Strings(names)

	h := fnv.New64a()
	for _, r := range recent {
		h.Write([]byte(r.ID))
		h.Write([]byte{0})
		h.Write([]byte(r.Text()))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%s|%s|%d|%x", candidateID, strings.Join(names, ","), len(recent), h.Sum64())
}
