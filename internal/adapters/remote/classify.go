package remote

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/reelrank/internal/domain/retry"
)

// API error codes that override the status based class.
const (
	codeInsufficientQuota     = "insufficient_quota"
	codeContextLengthExceeded = "context_length_exceeded"
)

// Classify maps SDK, breaker and transport errors onto retry classes.
func Classify(err error) retry.Failure {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return retry.Failure{Class: retry.ClassNetwork}
	}

	var apiErr *openaigo.Error
	if !errors.As(err, &apiErr) {
		return retry.DefaultClassifier(err)
	}

	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests && apiErr.Code == codeInsufficientQuota:
		return retry.Failure{Class: retry.ClassQuotaExceeded}
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return retry.Failure{Class: retry.ClassRateLimited, RetryAfter: retryAfter(apiErr.Response)}
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		return retry.Failure{Class: retry.ClassAuth}
	case apiErr.StatusCode == http.StatusRequestEntityTooLarge || apiErr.Code == codeContextLengthExceeded:
		return retry.Failure{Class: retry.ClassPayloadTooLarge}
	case apiErr.StatusCode == http.StatusBadRequest ||
		apiErr.StatusCode == http.StatusNotFound ||
		apiErr.StatusCode == http.StatusUnprocessableEntity:
		return retry.Failure{Class: retry.ClassBadRequest}
	default:
		return retry.Failure{Class: retry.ClassUnknown}
	}
}

// retryAfter reads retry-after-ms or Retry-After (seconds or HTTP date).
func retryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	if ms := strings.TrimSpace(resp.Header.Get("Retry-After-Ms")); ms != "" {
		if v, err := strconv.ParseFloat(ms, 64); err == nil && v > 0 {
			return time.Duration(v * float64(time.Millisecond))
		}
	}
	raw := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// countsAsHealthy keeps caller mistakes from tripping the breaker.
func countsAsHealthy(err error) bool {
	if err == nil {
		return true
	}
	return Classify(err).Class.Kind() == retry.KindFatalRequest
}
