// Package service wires the aggregation, scoring and feed components into
// the dependency bundle the HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/reelrank/internal/adapters/mq/broadcast"
	"github.com/okian/reelrank/internal/adapters/mq/queue"
	"github.com/okian/reelrank/internal/adapters/mq/worker"
	"github.com/okian/reelrank/internal/adapters/repository"
	"github.com/okian/reelrank/internal/app/feedview"
	"github.com/okian/reelrank/internal/domain/aggregator"
	"github.com/okian/reelrank/internal/domain/dedupe"
	"github.com/okian/reelrank/internal/domain/feed"
	"github.com/okian/reelrank/internal/domain/model"
	"github.com/okian/reelrank/internal/domain/scoring"
	"github.com/okian/reelrank/internal/domain/types"
	"github.com/okian/reelrank/pkg/logger"
	"github.com/okian/reelrank/pkg/metrics"
)

var _ aggregator.Queue = (*queue.InMemoryQueue)(nil)

// Remote is the AI surface used for recipes and embeddings.
type Remote interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
	Embed(ctx context.Context, text string) ([]float64, error)
	BreakerState() string
}

// Service implements the API dependencies for the feed pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	remote    Remote
	bus       broadcast.Broadcaster
	deduper   dedupe.Deduper
	engine    *scoring.Engine
	paginator *feed.Paginator
	view      *feedview.View
	pool      *worker.Pool

	// Configuration
	flushInterval    time.Duration
	sessionIdle      time.Duration // 0 keeps sessions until closed
	closeTimeout     time.Duration
	positionDelta    time.Duration
	completionRatio  float64
	queueCapacity    int
	pageSize         int
	maxPageSize      int
	dedupeSize       int
	engagementWeight float64
	similarityWeight float64

	// sessionMu serializes session creation so each user has one owner.
	sessionMu sync.Mutex

	started bool
	logger  logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		flushInterval:    3000 * time.Millisecond,
		sessionIdle:      5 * time.Minute,
		closeTimeout:     10 * time.Second,
		positionDelta:    5000 * time.Millisecond,
		completionRatio:  0.9,
		queueCapacity:    10_000,
		pageSize:         20,
		maxPageSize:      100,
		dedupeSize:       50_000,
		engagementWeight: 0.7,
		similarityWeight: 0.3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the components and subscribes to remote invalidations.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory store")
	}
	if s.bus == nil {
		s.bus = broadcast.Nop{}
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.engine = scoring.NewEngine(s.store, scoring.WithWeights(s.engagementWeight, s.similarityWeight))
	s.paginator = feed.NewPaginator(s.store, feed.WithPageSize(s.pageSize), feed.WithMaxPageSize(s.maxPageSize))
	s.view = feedview.New(s.paginator)
	s.paginator.OnInvalidate(s.view.Invalidate)
	s.paginator.OnInvalidate(s.publishInvalidation)

	view := s.view
	if err := s.bus.Subscribe(func(ctx context.Context, userID string) {
		view.InvalidateFrom(ctx, userID, feedview.OriginRemote)
	}); err != nil {
		return fmt.Errorf("subscribe invalidations: %w", err)
	}

	s.pool = worker.NewPool(ctx,
		worker.WithInterval(s.flushInterval),
		worker.WithIdleTimeout(s.sessionIdle),
		worker.WithFinalTimeout(s.closeTimeout),
	)
	s.started = true
	s.logger.Info(ctx, "feed service started",
		logger.Duration("flushInterval", s.flushInterval),
		logger.Duration("sessionIdle", s.sessionIdle),
		logger.Int("pageSize", s.pageSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Bool("remote", s.remote != nil),
	)
	return nil
}

func (s *Service) publishInvalidation(ctx context.Context, userID string) {
	if err := s.bus.Publish(ctx, userID); err != nil {
		s.logger.Warn(ctx, "publish invalidation failed", logger.String("user", userID), logger.Error(err))
	}
}

// Stop flushes every open session and releases the store and broker.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping feed service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush sessions: %w", err))
	}
	if err := s.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close broadcaster: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "feed service stopped")
	return errors.Join(errs...)
}

func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// session returns the live session of userID, creating it on first use.
func (s *Service) session(userID string) (*aggregator.Session, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if f, ok := s.pool.Get(userID); ok {
		if sess, ok := f.(*aggregator.Session); ok {
			return sess, nil
		}
	}
	sess := aggregator.NewSession(userID, s.store,
		queue.NewInMemoryQueue(queue.WithCapacity(s.queueCapacity)),
		aggregator.WithPositionDelta(s.positionDelta),
		aggregator.WithCompletionRatio(s.completionRatio),
		aggregator.WithRescorer(s.engine),
	)
	if err := s.pool.Add(userID, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Observe feeds one player status sample into the user's session and
// reports whether it produced a pending update.
func (s *Service) Observe(ctx context.Context, userID string, st model.PlaybackStatus) (bool, error) { //nolint:gocritic // hugeParam: samples are values
	if err := s.running(); err != nil {
		return false, err
	}
	if userID == "" {
		return false, types.ErrMissingUser
	}
	sess, err := s.session(userID)
	if err != nil {
		return false, err
	}
	pending, err := sess.Observe(ctx, st)
	if errors.Is(err, aggregator.ErrSessionClosed) {
		// Lost a race with CloseSession; the next session takes the sample.
		if sess, err = s.session(userID); err != nil {
			return false, err
		}
		pending, err = sess.Observe(ctx, st)
	}
	return pending, err
}

// CloseSession stops the user's flush ticker and runs the final flush.
// The flush outlives ctx so a caller that goes away cannot drop it.
func (s *Service) CloseSession(ctx context.Context, userID string) error {
	if err := s.running(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.closeTimeout)
	defer cancel()
	if err := s.pool.Remove(ctx, userID); err != nil {
		if errors.Is(err, worker.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNoSession, userID)
		}
		return err
	}
	return nil
}

// Page returns one stateless feed page. A non-positive limit uses the default size.
func (s *Service) Page(ctx context.Context, userID, cursor string, limit int) (types.Page, error) {
	if err := s.running(); err != nil {
		return types.Page{}, err
	}
	if limit <= 0 {
		limit = s.paginator.PageSize()
	}
	p, err := s.paginator.GetPageSized(ctx, userID, cursor, limit)
	if err != nil {
		return types.Page{}, err
	}
	return types.Page{Videos: types.Videos(p.Videos), NextCursor: p.NextCursor, HasMore: p.HasMore}, nil
}

// View returns the cached feed of userID, loading the first page when needed.
func (s *Service) View(ctx context.Context, userID string) (types.Page, error) {
	if err := s.running(); err != nil {
		return types.Page{}, err
	}
	st, err := s.view.Current(ctx, userID)
	return viewPage(st), err
}

// ViewMore appends the next page to the cached feed of userID.
func (s *Service) ViewMore(ctx context.Context, userID string) (types.Page, error) {
	if err := s.running(); err != nil {
		return types.Page{}, err
	}
	st, err := s.view.LoadMore(ctx, userID)
	return viewPage(st), err
}

func viewPage(st feedview.State) types.Page { //nolint:gocritic // hugeParam: state snapshots are values
	return types.Page{Videos: types.Videos(st.Videos), NextCursor: st.NextCursor, HasMore: st.HasMore}
}

// Feedback records a reaction at most once per request id. The boolean
// reports a replayed request.
func (s *Service) Feedback(ctx context.Context, requestID, userID, videoID string, kind model.FeedbackKind) (model.Feedback, bool, error) {
	if err := s.running(); err != nil {
		return model.Feedback{}, false, err
	}
	if s.deduper.SeenAndRecord(ctx, requestID) {
		metrics.RecordFeedbackDuplicate()
		return model.Feedback{}, true, nil
	}
	f, err := s.view.Feedback(ctx, userID, videoID, kind)
	if err != nil {
		s.deduper.Unrecord(ctx, requestID)
		return model.Feedback{}, false, err
	}
	return f, false, nil
}

// SuggestRecipe asks the completion service for a recipe and optionally an
// illustrating image. An image failure keeps the text.
func (s *Service) SuggestRecipe(ctx context.Context, prompt string, withImage bool) (types.Recipe, error) {
	if s.remote == nil {
		return types.Recipe{}, ErrRemoteDisabled
	}
	text, err := s.remote.Complete(ctx, prompt)
	if err != nil {
		return types.Recipe{}, err
	}
	out := types.Recipe{Text: text}
	if !withImage {
		return out, nil
	}
	uri, err := s.remote.GenerateImage(ctx, prompt)
	if err != nil {
		s.logger.Warn(ctx, "recipe image failed", logger.Error(err))
		return out, nil
	}
	out.ImageURL = uri
	return out, nil
}

// EmbedVideo computes and stores the content embedding of videoID.
func (s *Service) EmbedVideo(ctx context.Context, videoID, text string) (int, error) {
	if err := s.running(); err != nil {
		return 0, err
	}
	if s.remote == nil {
		return 0, ErrRemoteDisabled
	}
	vec, err := s.remote.Embed(ctx, text)
	if err != nil {
		return 0, err
	}
	if err := s.store.PutEmbedding(ctx, videoID, vec); err != nil {
		return 0, fmt.Errorf("store embedding: %w", err)
	}
	return len(vec), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	goroutines := runtime.NumGoroutine()
	metrics.UpdateSystemMemoryUsage(mem.HeapAlloc)
	metrics.UpdateSystemGoroutineCount(goroutines)

	stats := map[string]any{
		"started":         s.started,
		"flushIntervalMs": s.flushInterval.Milliseconds(),
		"sessionIdleMs":   s.sessionIdle.Milliseconds(),
		"pageSize":        s.pageSize,
		"dedupeSize":      s.dedupeSize,
		"remote":          s.remote != nil,
		"goroutines":      goroutines,
	}
	if s.started {
		stats["activeSessions"] = s.pool.Len()
		stats["seenRequests"] = s.deduper.Size()
	}
	if s.remote != nil {
		stats["breaker"] = s.remote.BreakerState()
	}
	return stats
}
