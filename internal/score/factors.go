package score

import (
	"math"
	"time"

	"github.com/jacklau/dispatch/internal/model"
	"github.com/jacklau/dispatch/internal/timemath"
)

// NeutralNoResolutions is the performance score of a candidate with no
// resolutions in the window.
const NeutralNoResolutions = 5.0

// Workload maps a candidate's open assigned count to a score. It never
// increases as the count grows.
func Workload(openAssigned int) float64 {
	switch {
	case openAssigned <= 0:
		return 10
	case openAssigned <= 3:
		return 8
	case openAssigned <= 5:
		return 6
	case openAssigned <= 8:
		return 4
	case openAssigned <= 10:
		return 2
	default:
		return 1
	}
}

// Availability scores recent activity in a trailing window.
type Availability struct {
	Window time.Duration
}

// Touches counts activity timestamps in (now-window, now].
func (a Availability) Touches(c model.Candidate, now time.Time) int {
	from := now.Add(-a.Window)
	var n int
	for _, ts := range c.Activity {
		if ts.After(from) && !ts.After(now) {
			n++
		}
	}
	return n
}

// Score returns the availability score in [0,10].
func (a Availability) Score(c model.Candidate, now time.Time) float64 {
	switch n := a.Touches(c, now); {
	case n >= 5:
		return 10
	case n >= 3:
		return 8
	case n >= 1:
		return 6
	default:
		return 4
	}
}

// Performance scores on-time resolution over a trailing window.
type Performance struct {
	Window time.Duration
	// Expected returns the on-time bound in business hours for a severity.
	Expected func(model.Severity) float64
}

// PerformanceStats summarises the resolutions in the window.
type PerformanceStats struct {
	Resolved   int
	OnTimeRate float64
	AvgHours   float64
}

// Stats computes resolution statistics for the window ending at now.
func (p Performance) Stats(c model.Candidate, now time.Time) PerformanceStats {
	from := now.Add(-p.Window)
	var st PerformanceStats
	var onTime int
	var hours float64
	for _, r := range c.History {
		if !r.ResolvedAt.After(from) || r.ResolvedAt.After(now) {
			continue
		}
		h := timemath.BusinessHoursBetween(r.CreatedAt, r.ResolvedAt)
		hours += h
		st.Resolved++
		if p.Expected == nil || h <= p.Expected(r.Severity) {
			onTime++
		}
	}
	if st.Resolved > 0 {
		st.OnTimeRate = float64(onTime) / float64(st.Resolved)
		st.AvgHours = hours / float64(st.Resolved)
	}
	return st
}

// Score returns the performance score in [0,10].
func (p Performance) Score(c model.Candidate, now time.Time) float64 {
	st := p.Stats(c, now)
	if st.Resolved == 0 {
		return NeutralNoResolutions
	}
	return clamp(st.OnTimeRate*6 + math.Max(0, 4-st.AvgHours/24))
}

func clamp(v float64) float64 {
	return clampRange(v, 0, 10)
}

func clampRange(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
