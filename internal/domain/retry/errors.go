package retry

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the coarse error taxonomy surfaced to callers.
type Kind int

// Error kinds.
const (
	// KindTransientIO covers network, unknown and rate-limit failures.
	KindTransientIO Kind = iota
	// KindFatalRequest covers auth, bad-request, quota and unshrinkable payloads.
	KindFatalRequest
	// KindDataInconsistency marks a read-modify-write that used a stale base. Not detected yet.
	KindDataInconsistency
	// KindExhaustedRetries means the attempt budget was spent.
	KindExhaustedRetries
)

func (k Kind) String() string {
	switch k {
	case KindTransientIO:
		return "transient_io"
	case KindFatalRequest:
		return "fatal_request"
	case KindDataInconsistency:
		return "data_inconsistency"
	case KindExhaustedRetries:
		return "exhausted_retries"
	default:
		return "unknown"
	}
}

// ErrAborted is returned when ctx ends between attempts.
var ErrAborted = errors.New("retry aborted")

// Error tags an operation failure with its class so the default classifier can route it.
type Error struct {
	Class      Class
	RetryAfter time.Duration // only meaningful for ClassRateLimited; 0 means not provided
	Err        error
}

// Classify wraps err with an explicit class.
func Classify(class Class, err error) *Error {
	return &Error{Class: class, Err: err}
}

// RateLimited wraps err as a rate-limit failure that asks to wait retryAfter.
func RateLimited(err error, retryAfter time.Duration) *Error {
	return &Error{Class: ClassRateLimited, RetryAfter: retryAfter, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Class.String()
	}
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// FatalError is returned when a failure class forbids retrying.
type FatalError struct {
	Class    Class
	Attempts int
	Err      error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("non-retryable %s after %d attempt(s): %v", e.Class, e.Attempts, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Kind reports KindFatalRequest.
func (e *FatalError) Kind() Kind { return KindFatalRequest }

// ExhaustedRetriesError is returned once MaxAttempts attempts have failed.
// It unwraps to the last operation error.
type ExhaustedRetriesError struct {
	Attempts  int
	LastClass Class
	Last      error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("exhausted %d attempt(s), last %s: %v", e.Attempts, e.LastClass, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.Last }

// Kind reports KindExhaustedRetries.
func (e *ExhaustedRetriesError) Kind() Kind { return KindExhaustedRetries }

// KindOf maps any error returned by Execute onto the taxonomy.
func KindOf(err error) Kind {
	var exhausted *ExhaustedRetriesError
	if errors.As(err, &exhausted) {
		return KindExhaustedRetries
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return KindFatalRequest
	}
	return DefaultClassifier(err).Class.Kind()
}
