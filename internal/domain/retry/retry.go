// Package retry executes remote calls under a bounded retry policy.
//
// Failures are classified first; the class decides whether to back off,
// shrink the request, or give up. Cancellation is observed only between
// attempts: an in-flight operation always resolves before ctx is checked.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default policy values.
const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 8 * time.Second
)

// Policy bounds the number of attempts and the backoff between them.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy returns 3 attempts with 500ms doubling up to 8s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: defaultMaxAttempts, BaseDelay: defaultBaseDelay, MaxDelay: defaultMaxDelay}
}

// Backoff returns BaseDelay*2^(attempt-1) capped at MaxDelay.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Attempt describes a failed attempt that will be retried.
type Attempt struct {
	Number int
	Err    error
	Class  Class
	Delay  time.Duration
}

type settings struct {
	classify Classifier
	shrink   func() bool
	sleep    func(ctx context.Context, d time.Duration) error
	onRetry  func(Attempt)
	onFail   func(Attempt)
}

// Option customises one Execute call.
type Option func(*settings)

// WithClassifier replaces DefaultClassifier.
func WithClassifier(c Classifier) Option {
	return func(s *settings) {
		if c != nil {
			s.classify = c
		}
	}
}

// WithShrink registers the hook called on ClassPayloadTooLarge. It returns
// false when the input is already minimal, which aborts the call.
func WithShrink(shrink func() bool) Option {
	return func(s *settings) { s.shrink = shrink }
}

// WithSleep replaces the ctx-aware timer used between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *settings) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithOnRetry observes every attempt that is about to be retried.
func WithOnRetry(fn func(Attempt)) Option {
	return func(s *settings) { s.onRetry = fn }
}

// WithOnFailure observes every failed attempt, retried or not.
func WithOnFailure(fn func(Attempt)) Option {
	return func(s *settings) { s.onFail = fn }
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute runs op until it succeeds, a non-retryable failure occurs, ctx
// ends between attempts, or policy.MaxAttempts attempts have failed.
func Execute[T any](ctx context.Context, policy Policy, op func(context.Context) (T, error), opts ...Option) (T, error) {
	var zero T
	s := settings{classify: DefaultClassifier, sleep: sleepCtx}
	for _, opt := range opts {
		opt(&s)
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, aborted(attempt-1, err, lastErr)
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		f := s.classify(err)
		failed := Attempt{Number: attempt, Err: err, Class: f.Class}

		var delay time.Duration
		switch f.Class {
		case ClassQuotaExceeded, ClassAuth, ClassBadRequest:
			notify(s.onFail, failed)
			return zero, &FatalError{Class: f.Class, Attempts: attempt, Err: err}
		case ClassPayloadTooLarge:
			if s.shrink == nil || !s.shrink() {
				notify(s.onFail, failed)
				return zero, &FatalError{Class: f.Class, Attempts: attempt, Err: err}
			}
		case ClassRateLimited:
			delay = f.RetryAfter
			if delay <= 0 {
				delay = policy.Backoff(attempt)
			}
		default:
			delay = policy.Backoff(attempt)
		}
		failed.Delay = delay
		notify(s.onFail, failed)

		if attempt >= maxAttempts {
			return zero, &ExhaustedRetriesError{Attempts: attempt, LastClass: f.Class, Last: err}
		}
		notify(s.onRetry, failed)
		if err := s.sleep(ctx, delay); err != nil {
			return zero, aborted(attempt, err, lastErr)
		}
	}
}

func notify(fn func(Attempt), a Attempt) {
	if fn != nil {
		fn(a)
	}
}

func aborted(attempts int, cause, last error) error {
	return fmt.Errorf("%w after %d attempt(s): %w", ErrAborted, attempts, errors.Join(cause, last))
}
