// Package retry runs fallible operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

const (
	// DefaultMaxAttempts is the default number of attempts before giving up.
	DefaultMaxAttempts = 3

	defaultBaseDelay = 1 * time.Second
	defaultMaxDelay  = 10 * time.Second

	// jitterFraction is the maximum fraction of the delay added as jitter.
	jitterFraction = 0.25
)

// Backoff describes a retry schedule. Zero fields take the defaults:
// 3 attempts, 1s base delay doubling up to 10s.
type Backoff struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do retries fn up to maxAttempts times with the default schedule.
func Do(ctx context.Context, maxAttempts int, fn func() error) error {
	return Backoff{MaxAttempts: maxAttempts}.Do(ctx, fn)
}

// Do runs fn until it succeeds, returns a Permanent error, the attempts run
// out or ctx is cancelled. The last error is returned.
func (b Backoff) Do(ctx context.Context, fn func() error) error {
	attempts := b.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.delay(attempt)):
			}
		}
	}

	return lastErr
}

// delay returns the wait after the given 0-indexed attempt, with jitter.
func (b Backoff) delay(attempt int) time.Duration {
	base, ceiling := b.BaseDelay, b.MaxDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	if ceiling <= 0 {
		ceiling = defaultMaxDelay
	}

	d := ceiling
	if attempt < 31 {
		if shifted := base << attempt; shifted > 0 && shifted < ceiling {
			d = shifted
		}
	}
	jitter := time.Duration(float64(d) * jitterFraction * rand.Float64())
	return d + jitter
}
