package scoring

import "time"

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWeights sets the engagement and similarity weights used when a
// similarity term is available. Negative weights are ignored.
func WithWeights(engagement, similarity float64) Option {
	return func(e *Engine) {
		if engagement >= 0 && similarity >= 0 {
			e.engagementWeight = engagement
			e.similarityWeight = similarity
		}
	}
}

// WithClock sets the clock stamped into LastCalculatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
