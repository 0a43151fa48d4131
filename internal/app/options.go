package service

import (
	"time"

	"github.com/okian/reelrank/internal/adapters/mq/broadcast"
	"github.com/okian/reelrank/internal/adapters/repository"
	"github.com/okian/reelrank/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the durable store. The in-memory store is used otherwise.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		s.store = st
	}
}

// WithRemote enables recipe suggestions and embeddings.
func WithRemote(r Remote) Option {
	return func(s *Service) {
		s.remote = r
	}
}

// WithBroadcaster shares feed invalidations with other processes.
func WithBroadcaster(b broadcast.Broadcaster) Option {
	return func(s *Service) {
		s.bus = b
	}
}

// WithFlushInterval sets the session flush tick.
func WithFlushInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

// WithSessionIdle closes a session once it has had no samples and no
// pending updates for d. Zero keeps sessions until they are closed.
func WithSessionIdle(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.sessionIdle = d
		}
	}
}

// WithCloseTimeout bounds the final flush of a closing session.
func WithCloseTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.closeTimeout = d
		}
	}
}

// WithPositionDelta sets the playback jump that enqueues a new sample.
func WithPositionDelta(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.positionDelta = d
		}
	}
}

// WithCompletionRatio sets the fraction of duration that counts as completed.
func WithCompletionRatio(r float64) Option {
	return func(s *Service) {
		if r > 0 && r <= 1 {
			s.completionRatio = r
		}
	}
}

// WithQueueCapacity bounds each session's pending queue.
func WithQueueCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueCapacity = n
		}
	}
}

// WithPageSize sets the default and maximum feed page sizes.
func WithPageSize(size, maxSize int) Option {
	return func(s *Service) {
		if size > 0 && maxSize >= size {
			s.pageSize = size
			s.maxPageSize = maxSize
		}
	}
}

// WithDedupeSize bounds the feedback request-id cache.
func WithDedupeSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.dedupeSize = n
		}
	}
}

// WithWeights sets the engagement and similarity mix of the total score.
func WithWeights(engagement, similarity float64) Option {
	return func(s *Service) {
		s.engagementWeight = engagement
		s.similarityWeight = similarity
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
