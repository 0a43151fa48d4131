// Package aggregator batches playback samples of one user session into
// durable per-video engagement metrics.
//
// Observe thresholds raw player callbacks into pending updates; Flush drains
// them in enqueue order and performs a read-modify-write of each metric row.
// A Session is safe for concurrent use: player callbacks may race with the
// flush tick.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/reelrank/internal/domain/model"
	"github.com/okian/reelrank/pkg/logger"
	"github.com/okian/reelrank/pkg/metrics"
)

// Defaults.
const (
	defaultPositionDeltaMS = 5000
	defaultCompletionRatio = 0.9
	maxWatchPercent        = 100
)

// MetricStore is the durable side of the read-modify-write.
type MetricStore interface {
	ReadMetric(ctx context.Context, userID, videoID string) (*model.VideoMetric, error)
	UpsertMetric(ctx context.Context, m model.VideoMetric) error
}

// Queue buffers pending updates between flushes.
type Queue interface {
	// Enqueue appends an update. Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, u model.PendingUpdate) bool
	// Requeue puts a failed update back, ignoring the capacity bound.
	Requeue(ctx context.Context, u model.PendingUpdate) bool
	// Drain removes and returns every queued update in FIFO order.
	Drain(ctx context.Context) []model.PendingUpdate
	Len(ctx context.Context) int
	Close() error
}

// Rescorer recomputes the score of a pair after its metric changed.
type Rescorer interface {
	Recompute(ctx context.Context, userID, videoID, referenceVideoID string) (model.VideoScore, error)
}

// pendingTotal backs the process-wide pending updates gauge.
var pendingTotal atomic.Int64 //nolint:gochecknoglobals // shared across sessions for one gauge

func addPending(n int) {
	metrics.UpdatePendingUpdates(int(pendingTotal.Add(int64(n))))
}

// Session aggregates the playback of one user.
type Session struct {
	id     string
	userID string
	store  MetricStore
	queue  Queue

	rescorer        Rescorer
	positionDeltaMS int64
	completionRatio float64
	now             func() time.Time
	log             logger.Logger

	flushMu sync.Mutex // serializes Flush and Close

	mu               sync.Mutex // guards the fields below
	videos           map[string]*videoState
	replays          map[string]int64
	loggedCompletion map[string]bool
	lastLoaded       string
	lastActive       time.Time
	closed           bool
}

// NewSession creates a session for userID that buffers updates in q and
// writes them to store.
func NewSession(userID string, store MetricStore, q Queue, opts ...Option) *Session {
	s := &Session{
		id:               uuid.NewString(),
		userID:           userID,
		store:            store,
		queue:            q,
		positionDeltaMS:  defaultPositionDeltaMS,
		completionRatio:  defaultCompletionRatio,
		now:              time.Now,
		log:              logger.Get().Named("aggregator"),
		videos:           make(map[string]*videoState),
		replays:          make(map[string]int64),
		loggedCompletion: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastActive = s.now()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// UserID returns the owning user.
func (s *Session) UserID() string { return s.userID }

// Phase returns the playback phase of videoID.
func (s *Session) Phase(videoID string) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.videos[videoID]; ok {
		return st.phase
	}
	return PhaseUnstarted
}

// ReplayCount returns the replays of videoID not yet durably flushed.
func (s *Session) ReplayCount(videoID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replays[videoID]
}

// Pending returns the number of queued updates.
func (s *Session) Pending(ctx context.Context) int {
	return s.queue.Len(ctx)
}

// IdleSince reports when the session last received a sample. ok is false
// while updates are still pending.
func (s *Session) IdleSince(ctx context.Context) (time.Time, bool) {
	if s.queue.Len(ctx) > 0 {
		return time.Time{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive, true
}

// Observe records one player status callback and reports whether it
// produced a pending update.
func (s *Session) Observe(ctx context.Context, st model.PlaybackStatus) (bool, error) { //nolint:gocritic // hugeParam: samples are values
	if st.VideoID == "" || st.PositionMS < 0 || st.DurationMS < 0 {
		return false, fmt.Errorf("%w: video %q position %d duration %d", ErrInvalidSample, st.VideoID, st.PositionMS, st.DurationMS)
	}
	if st.At.IsZero() {
		st.At = s.now()
	}
	metrics.RecordSampleObserved()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrSessionClosed
	}
	s.lastActive = s.now()

	v, ok := s.videos[st.VideoID]
	if !ok {
		v = &videoState{}
		s.videos[st.VideoID] = v
	}

	if !st.Loaded {
		v.phase = PhaseUnstarted
		return false, nil
	}
	if v.phase == PhaseUnstarted {
		s.replays[st.VideoID]++
		delete(s.loggedCompletion, st.VideoID)
		v.reference = ""
		if s.lastLoaded != st.VideoID {
			v.reference = s.lastLoaded
		}
		s.lastLoaded = st.VideoID
		v.phase = PhasePaused
	}

	u := s.sample(st)
	justCompleted := u.Completed && !s.loggedCompletion[st.VideoID]
	switch {
	case justCompleted, v.phase == PhaseCompleted:
		v.phase = PhaseCompleted
	case st.Playing:
		v.phase = PhasePlaying
	default:
		v.phase = PhasePaused
	}

	var trigger string
	switch {
	case !v.enqueued:
		trigger = triggerFirst
	case justCompleted:
		trigger = triggerCompletion
	case abs(st.PositionMS-v.lastEnqueuedPos) >= s.positionDeltaMS:
		trigger = triggerDelta
	default:
		return false, nil
	}

	if !s.queue.Enqueue(ctx, u) {
		return false, nil
	}
	v.enqueued = true
	v.lastEnqueuedPos = st.PositionMS
	if justCompleted {
		s.loggedCompletion[st.VideoID] = true
	}
	metrics.RecordUpdateEnqueued(trigger)
	addPending(1)
	return true, nil
}

func (s *Session) sample(st model.PlaybackStatus) model.PendingUpdate { //nolint:gocritic // hugeParam: samples are values
	u := model.PendingUpdate{
		VideoID:        st.VideoID,
		WatchedSeconds: st.PositionMS / 1000,
		LastPositionMS: st.PositionMS,
		SampledAt:      st.At,
	}
	if st.DurationMS > 0 {
		u.Completed = float64(st.PositionMS) >= s.completionRatio*float64(st.DurationMS)
		u.WatchPercent = math.Min(maxWatchPercent, float64(st.PositionMS)/float64(st.DurationMS)*100)
	}
	return u
}

// Flush drains every pending update into the store in enqueue order.
// Failed completion updates are re-enqueued once; other failures are
// dropped. The returned error joins the failures for logging only.
func (s *Session) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	return s.flush(ctx, false)
}

// Close refuses further samples and performs a final synchronous flush.
// Completion retries have no later tick, so failures are dropped.
func (s *Session) Close(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.flush(ctx, true)
	if cerr := s.queue.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

func (s *Session) flush(ctx context.Context, final bool) error {
	updates := s.queue.Drain(ctx)
	if len(updates) == 0 {
		return nil
	}
	addPending(-len(updates))

	var errs []error
	for i := range updates {
		u := updates[i]
		err := s.apply(ctx, u)
		if err == nil {
			metrics.RecordFlushedUpdate()
			s.rescore(ctx, u.VideoID)
			continue
		}
		errs = append(errs, fmt.Errorf("flush %s: %w", u.VideoID, err))

		if u.Completed && u.Attempt == 0 && !final {
			u.Attempt++
			if s.queue.Requeue(ctx, u) {
				addPending(1)
				metrics.RecordCompletionRequeued()
				s.log.Warn(ctx, "completion update requeued",
					logger.String("user", s.userID), logger.String("video", u.VideoID), logger.Error(err))
				continue
			}
		}
		metrics.RecordUpdateDropped("flush_failed")
		s.log.Debug(ctx, "pending update dropped",
			logger.String("user", s.userID), logger.String("video", u.VideoID),
			logger.Bool("completed", u.Completed), logger.Error(err))
	}
	return errors.Join(errs...)
}

// apply performs the read-modify-write of one metric row.
func (s *Session) apply(ctx context.Context, u model.PendingUpdate) error { //nolint:gocritic // hugeParam: updates are values
	cur, err := s.store.ReadMetric(ctx, s.userID, u.VideoID)
	if err != nil {
		return fmt.Errorf("read metric: %w", err)
	}

	s.mu.Lock()
	replays := s.replays[u.VideoID]
	s.mu.Unlock()

	row := model.VideoMetric{
		UserID:         s.userID,
		VideoID:        u.VideoID,
		WatchedSeconds: u.WatchedSeconds,
		LastPositionMS: u.LastPositionMS,
		Completed:      u.Completed,
		SampledAt:      u.SampledAt,
	}
	var (
		curReplays int64
		curAvg     float64
	)
	if cur != nil {
		curReplays = cur.ReplayCount
		curAvg = cur.AverageWatchPercent
		// A retried update must not move the position behind a later sample.
		if cur.SampledAt.After(u.SampledAt) {
			row.WatchedSeconds = cur.WatchedSeconds
			row.LastPositionMS = cur.LastPositionMS
			row.Completed = cur.Completed || u.Completed
			row.SampledAt = cur.SampledAt
		}
	}
	row.ReplayCount = curReplays + replays
	row.AverageWatchPercent = (curAvg*float64(row.ReplayCount) + u.WatchPercent) / float64(row.ReplayCount+1)

	if err := s.store.UpsertMetric(ctx, row); err != nil {
		return fmt.Errorf("upsert metric: %w", err)
	}

	// Replays counted while the write was in flight stay for the next update.
	s.mu.Lock()
	if left := s.replays[u.VideoID] - replays; left > 0 {
		s.replays[u.VideoID] = left
	} else {
		delete(s.replays, u.VideoID)
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) rescore(ctx context.Context, videoID string) {
	if s.rescorer == nil {
		return
	}
	s.mu.Lock()
	var ref string
	if v, ok := s.videos[videoID]; ok {
		ref = v.reference
	}
	s.mu.Unlock()

	if _, err := s.rescorer.Recompute(ctx, s.userID, videoID, ref); err != nil {
		s.log.Warn(ctx, "rescore failed",
			logger.String("user", s.userID), logger.String("video", videoID), logger.Error(err))
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
