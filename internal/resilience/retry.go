// Package resilience provides the retry, circuit breaker and provider
// failover primitives that sit between the session orchestrator and the
// remote capability backends.
//
// [Retrier] implements the bounded exponential-backoff policy applied to
// every capability call. [CircuitBreaker] and [FallbackGroup] compose
// multiple backends of the same provider type so a failing primary is
// bypassed in favour of healthy fallbacks.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Default retry tuning. Three attempts with a one second base delay yields
// waits of 2s and 4s before the second and third attempts.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Retrier re-runs a failing network call with exponential backoff. The
// zero value is not usable; construct via [NewRetrier].
type Retrier struct {
	maxAttempts int
	baseDelay   time.Duration

	// sleep waits for the backoff delay, honouring ctx cancellation.
	// Overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a [Retrier]. Non-positive arguments are replaced with
// [DefaultMaxAttempts] and [DefaultBaseDelay].
func NewRetrier(maxAttempts int, baseDelay time.Duration) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Retrier{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		sleep:       sleepCtx,
	}
}

// MaxAttempts returns the configured attempt bound.
func (r *Retrier) MaxAttempts() int { return r.maxAttempts }

// Do executes fn up to the retrier's attempt bound, waiting
// baseDelay * 2^(attempt+1) between a failed attempt and the next one.
// The first success returns immediately; when every attempt fails the last
// error is returned exactly once, so caller-side failure handling runs once
// per Do call rather than once per attempt.
//
// The backoff wait aborts with ctx.Err() when ctx is cancelled mid-delay, so
// a torn-down session never retries into a discarded conversation. op labels
// the operation in log output only.
func Do[T any](ctx context.Context, r *Retrier, op string, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			slog.Error("permanent failure, not retrying", "op", op, "error", perm.err)
			return zero, perm.err
		}

		if attempt == r.maxAttempts-1 {
			break
		}

		delay := r.baseDelay << (attempt + 1)
		slog.Warn("attempt failed, backing off",
			"op", op,
			"attempt", attempt+1,
			"max_attempts", r.maxAttempts,
			"delay", delay,
			"error", err,
		)
		if serr := r.sleep(ctx, delay); serr != nil {
			return zero, serr
		}
	}
	slog.Error("all attempts failed", "op", op, "attempts", r.maxAttempts, "error", lastErr)
	return zero, lastErr
}

// permanentError marks an error that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so [Do] fails immediately instead of retrying. Used
// for malformed responses where the transport succeeded but the payload is
// unusable; a retry would just repeat the same answer.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// sleepCtx blocks for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
