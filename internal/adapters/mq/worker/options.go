package worker

import (
	"time"

	"github.com/okian/reelrank/pkg/logger"
)

// Option applies a configuration option to a Ticker.
type Option func(*Ticker)

// WithName sets the ticker name for identification and logging.
func WithName(name string) Option {
	return func(t *Ticker) {
		if name != "" {
			t.name = name
		}
	}
}

// WithInterval sets the flush period.
func WithInterval(d time.Duration) Option {
	return func(t *Ticker) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithIdleTimeout stops the ticker once its flusher reports being idle for
// at least d. Zero keeps the ticker running until shutdown.
func WithIdleTimeout(d time.Duration) Option {
	return func(t *Ticker) {
		if d >= 0 {
			t.idleTimeout = d
		}
	}
}

// WithFinalTimeout bounds the final flush.
func WithFinalTimeout(d time.Duration) Option {
	return func(t *Ticker) {
		if d > 0 {
			t.finalTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the ticker.
func WithLogger(logger logger.Logger) Option {
	return func(t *Ticker) {
		if logger != nil {
			t.logger = logger
		}
	}
}
