package github

import (
	"net/http"
	"strconv"
	"time"
)

const (
	// throttleThreshold is the remaining request count below which we throttle.
	throttleThreshold = 100

	// maxRateLimitWait caps how long a single rate-limit pause may last.
	maxRateLimitWait = 5 * time.Minute

	// fallbackRateLimitWait is used when a rate-limited response carries no
	// timing headers.
	fallbackRateLimitWait = 60 * time.Second
)

// RateLimit holds the rate limit headers of a GitHub API response.
type RateLimit struct {
	Remaining int
	Reset     time.Time
}

// ParseRateLimit extracts rate limit information from a response.
// Returns nil if neither header is present.
func ParseRateLimit(resp *http.Response) *RateLimit {
	if resp == nil {
		return nil
	}
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	reset := resp.Header.Get("X-RateLimit-Reset")
	if remaining == "" && reset == "" {
		return nil
	}

	rl := &RateLimit{Remaining: -1}
	if n, err := strconv.Atoi(remaining); err == nil {
		rl.Remaining = n
	}
	if unix, err := strconv.ParseInt(reset, 10, 64); err == nil {
		rl.Reset = time.Unix(unix, 0)
	}
	return rl
}

// ShouldThrottle reports whether fewer than throttleThreshold requests remain.
func (r *RateLimit) ShouldThrottle() bool {
	return r != nil && r.Remaining >= 0 && r.Remaining < throttleThreshold
}

// WaitUntilReset returns the time left before the window resets relative to
// now, capped at maxRateLimitWait. Zero when the reset is past or unknown.
func (r *RateLimit) WaitUntilReset(now time.Time) time.Duration {
	if r == nil || r.Reset.IsZero() {
		return 0
	}
	return min(max(r.Reset.Sub(now), 0), maxRateLimitWait)
}

// RetryAfter returns how long to pause after a rate-limited response:
// the Retry-After header when present, otherwise the time until the
// rate limit window resets, otherwise fallbackRateLimitWait.
func RetryAfter(resp *http.Response, now time.Time) time.Duration {
	if resp == nil {
		return 0
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return min(time.Duration(secs)*time.Second, maxRateLimitWait)
		}
	}
	if wait := ParseRateLimit(resp).WaitUntilReset(now); wait > 0 {
		return wait
	}
	return fallbackRateLimitWait
}

// IsNotModified reports an HTTP 304, which does not count against the
// rate limit.
func IsNotModified(resp *http.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusNotModified
}

// IsServerError reports a 5xx status.
func IsServerError(resp *http.Response) bool {
	return resp != nil && resp.StatusCode >= 500 && resp.StatusCode < 600
}

// IsRateLimited reports a 429, or a 403 that carries rate limit signals
// (Retry-After, or an exhausted X-RateLimit-Remaining). Other 403s are
// permission errors.
func IsRateLimited(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return resp.Header.Get("Retry-After") != "" || resp.Header.Get("X-RateLimit-Remaining") == "0"
	}
	return false
}
