package aggregator

import (
	"time"

	"github.com/okian/reelrank/pkg/logger"
)

// Option applies a configuration option to a Session.
type Option func(*Session)

// WithPositionDelta sets the position jump that forces an enqueue.
func WithPositionDelta(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.positionDeltaMS = d.Milliseconds()
		}
	}
}

// WithCompletionRatio sets the fraction of the duration that counts as completed.
func WithCompletionRatio(r float64) Option {
	return func(s *Session) {
		if r > 0 && r <= 1 {
			s.completionRatio = r
		}
	}
}

// WithRescorer sets the scorer notified after each durable metric write.
func WithRescorer(r Rescorer) Option {
	return func(s *Session) {
		if r != nil {
			s.rescorer = r
		}
	}
}

// WithClock sets the clock used for samples without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}
