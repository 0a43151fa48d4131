package retry

import (
	"context"
	"errors"
	"net"
	"time"
)

// Class is the failure classification that drives the retry decision.
type Class int

// Failure classes.
const (
	ClassUnknown Class = iota
	ClassRateLimited
	ClassQuotaExceeded
	ClassPayloadTooLarge
	ClassNetwork
	ClassAuth
	ClassBadRequest
)

func (c Class) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	case ClassQuotaExceeded:
		return "quota_exceeded"
	case ClassPayloadTooLarge:
		return "payload_too_large"
	case ClassNetwork:
		return "network_error"
	case ClassAuth:
		return "auth_error"
	case ClassBadRequest:
		return "bad_request"
	default:
		return "unknown"
	}
}

// Kind maps a class onto the coarse taxonomy.
func (c Class) Kind() Kind {
	switch c {
	case ClassQuotaExceeded, ClassAuth, ClassBadRequest, ClassPayloadTooLarge:
		return KindFatalRequest
	default:
		return KindTransientIO
	}
}

// Failure is a classified operation error.
type Failure struct {
	Class      Class
	RetryAfter time.Duration // 0 when the server did not say
}

// Classifier turns an operation error into a Failure.
type Classifier func(error) Failure

// DefaultClassifier honours *Error tags, then recognises timeouts and
// transport errors as network failures. Everything else is unknown.
func DefaultClassifier(err error) Failure {
	var tagged *Error
	if errors.As(err, &tagged) {
		return Failure{Class: tagged.Class, RetryAfter: tagged.RetryAfter}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Failure{Class: ClassNetwork}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Failure{Class: ClassNetwork}
	}
	return Failure{Class: ClassUnknown}
}
