// Package feed serves the personalized ranking as keyset-paginated pages
// and records user feedback on feed items.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/reelrank/internal/domain/model"
	"github.com/okian/reelrank/pkg/logger"
	"github.com/okian/reelrank/pkg/metrics"
)

// Default paging configuration constants.
const (
	defaultPageSize    = 20
	defaultMaxPageSize = 100
)

// Store is the read path and feedback sink of the paginator.
type Store interface {
	// RankedPage returns up to limit rows strictly after the cursor in rank order.
	RankedPage(ctx context.Context, userID string, after *model.Cursor, limit int) ([]model.RankedVideo, error)
	InsertFeedback(ctx context.Context, f model.Feedback) error
}

// Page is one slice of a user's ranked feed.
type Page struct {
	Videos     []model.RankedVideo
	NextCursor string // empty when HasMore is false
	HasMore    bool
}

// InvalidateFunc is called after feedback made a user's cached pages stale.
type InvalidateFunc func(ctx context.Context, userID string)

// Paginator reads ranked pages and records feedback.
type Paginator struct {
	store       Store
	pageSize    int
	maxPageSize int
	now         func() time.Time
	log         logger.Logger

	mu    sync.RWMutex
	hooks []InvalidateFunc
}

// NewPaginator creates a paginator over store.
func NewPaginator(store Store, opts ...Option) *Paginator {
	p := &Paginator{
		store:       store,
		pageSize:    defaultPageSize,
		maxPageSize: defaultMaxPageSize,
		now:         time.Now,
		log:         logger.Get().Named("feed"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.pageSize > p.maxPageSize {
		p.pageSize = p.maxPageSize
	}
	return p
}

// PageSize returns the default page size.
func (p *Paginator) PageSize() int { return p.pageSize }

// GetPage returns the page after cursor using the default page size.
// An empty cursor starts at the top of the feed.
func (p *Paginator) GetPage(ctx context.Context, userID, cursor string) (Page, error) {
	return p.GetPageSized(ctx, userID, cursor, p.pageSize)
}

// GetPageSized returns up to size videos after cursor.
func (p *Paginator) GetPageSized(ctx context.Context, userID, cursor string, size int) (Page, error) {
	start := time.Now()
	defer func() { metrics.RecordPageLatency(float64(time.Since(start).Milliseconds())) }()

	page, err := p.getPage(ctx, userID, cursor, size)
	if err != nil {
		metrics.RecordPageError()
		return Page{}, err
	}
	return page, nil
}

func (p *Paginator) getPage(ctx context.Context, userID, cursor string, size int) (Page, error) {
	if size < 1 || size > p.maxPageSize {
		return Page{}, fmt.Errorf("%w: %d not in [1,%d]", ErrInvalidPageSize, size, p.maxPageSize)
	}
	after, err := DecodeCursor(cursor)
	if err != nil {
		return Page{}, err
	}

	// One probe row beyond the page tells whether another page exists.
	rows, err := p.store.RankedPage(ctx, userID, after, size+1)
	if err != nil {
		return Page{}, fmt.Errorf("ranked page: %w", err)
	}

	page := Page{Videos: rows}
	if len(rows) > size {
		page.Videos = rows[:size:size]
		page.HasMore = true
	}
	if page.Videos == nil {
		page.Videos = []model.RankedVideo{}
	}
	if page.HasMore {
		last := page.Videos[len(page.Videos)-1]
		page.NextCursor, err = EncodeCursor(model.Cursor{Score: last.TotalScore, VideoID: last.VideoID})
		if err != nil {
			return Page{}, err
		}
	}
	return page, nil
}

// OnInvalidate registers fn to run after every successful feedback write.
func (p *Paginator) OnInvalidate(fn InvalidateFunc) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, fn)
}

// Feedback stores the user's reaction to videoID and invalidates the
// user's cached pages. Hooks only run once the record is durable.
func (p *Paginator) Feedback(ctx context.Context, userID, videoID string, kind model.FeedbackKind) (model.Feedback, error) {
	if userID == "" || videoID == "" || !kind.Valid() {
		return model.Feedback{}, fmt.Errorf("%w: user %q video %q kind %q", ErrInvalidFeedback, userID, videoID, kind)
	}
	f := model.Feedback{
		ID:        uuid.NewString(),
		UserID:    userID,
		VideoID:   videoID,
		Kind:      kind,
		CreatedAt: p.now(),
	}
	if err := p.store.InsertFeedback(ctx, f); err != nil {
		return model.Feedback{}, fmt.Errorf("insert feedback: %w", err)
	}
	metrics.RecordFeedback(string(kind))
	p.log.Debug(ctx, "feedback recorded",
		logger.String("user", userID), logger.String("video", videoID), logger.String("kind", string(kind)))

	p.invalidate(ctx, userID)
	return f, nil
}

func (p *Paginator) invalidate(ctx context.Context, userID string) {
	p.mu.RLock()
	hooks := make([]InvalidateFunc, len(p.hooks))
	copy(hooks, p.hooks)
	p.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, userID)
	}
}
