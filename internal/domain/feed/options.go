package feed

import (
	"time"

	"github.com/okian/reelrank/pkg/logger"
)

// Option applies a configuration option to the Paginator.
type Option func(*Paginator)

// WithPageSize sets the default number of videos per page.
func WithPageSize(n int) Option {
	return func(p *Paginator) {
		if n > 0 {
			p.pageSize = n
		}
	}
}

// WithMaxPageSize caps caller supplied page sizes.
func WithMaxPageSize(n int) Option {
	return func(p *Paginator) {
		if n > 0 {
			p.maxPageSize = n
		}
	}
}

// WithClock sets the clock stamped on feedback records.
func WithClock(now func() time.Time) Option {
	return func(p *Paginator) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Paginator) {
		if l != nil {
			p.log = l
		}
	}
}
