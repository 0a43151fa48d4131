// Package scoring turns durable engagement metrics and content similarity
// into the ranking score of a (user, video) pair.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/reelrank/internal/domain/model"
	"github.com/okian/reelrank/internal/domain/similarity"
	"github.com/okian/reelrank/pkg/logger"
	"github.com/okian/reelrank/pkg/metrics"
)

// Engagement weights.
const (
	completionBonus   = 50
	replayWeight      = 10
	watchPercentShare = 0.5

	defaultEngagementWeight = 0.7
	defaultSimilarityWeight = 0.3
)

// MetricReader reads durable metric rows.
type MetricReader interface {
	ReadMetric(ctx context.Context, userID, videoID string) (*model.VideoMetric, error)
}

// ScoreWriter persists computed scores.
type ScoreWriter interface {
	UpsertScore(ctx context.Context, s model.VideoScore) error
}

// EmbeddingSource returns content embeddings; nil means the video has none.
type EmbeddingSource interface {
	Embedding(ctx context.Context, videoID string) ([]float64, error)
}

// Store is everything the Engine needs from persistence.
type Store interface {
	MetricReader
	ScoreWriter
	EmbeddingSource
}

// EngagementScore is the unweighted engagement term of a metric.
func EngagementScore(m model.VideoMetric) float64 { //nolint:gocritic // hugeParam: metrics are passed by value
	s := float64(m.WatchedSeconds)
	if m.Completed {
		s += completionBonus
	}
	s += float64(m.ReplayCount) * replayWeight
	s += m.AverageWatchPercent * watchPercentShare
	return s
}

// Engine recomputes and persists scores. It keeps no state between calls.
type Engine struct {
	store            Store
	engagementWeight float64
	similarityWeight float64
	now              func() time.Time
	log              logger.Logger
}

// NewEngine builds an Engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:            store,
		engagementWeight: defaultEngagementWeight,
		similarityWeight: defaultSimilarityWeight,
		now:              time.Now,
		log:              logger.Get().Named("scoring"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TotalScore blends engagement with similarity when one is available.
func (e *Engine) TotalScore(engagement float64, sim *float64) float64 {
	if sim == nil {
		return engagement
	}
	return e.engagementWeight*engagement + e.similarityWeight*(*sim)
}

// Recompute reads the metric of (userID, videoID), blends it with the
// similarity to referenceVideoID when both embeddings exist and upserts
// the resulting score. An empty referenceVideoID skips similarity.
func (e *Engine) Recompute(ctx context.Context, userID, videoID, referenceVideoID string) (model.VideoScore, error) {
	score, err := e.recompute(ctx, userID, videoID, referenceVideoID)
	if err != nil {
		metrics.RecordScoringError()
		return model.VideoScore{}, err
	}
	return score, nil
}

func (e *Engine) recompute(ctx context.Context, userID, videoID, referenceVideoID string) (model.VideoScore, error) {
	m, err := e.store.ReadMetric(ctx, userID, videoID)
	if err != nil {
		return model.VideoScore{}, fmt.Errorf("read metric: %w", err)
	}
	if m == nil {
		return model.VideoScore{}, fmt.Errorf("%w: user %s video %s", ErrMetricNotFound, userID, videoID)
	}

	sim, err := e.similarity(ctx, videoID, referenceVideoID)
	if err != nil {
		return model.VideoScore{}, err
	}

	engagement := EngagementScore(*m)
	score := model.VideoScore{
		UserID:           userID,
		VideoID:          videoID,
		EngagementScore:  engagement,
		TotalScore:       e.TotalScore(engagement, sim),
		LastCalculatedAt: e.now(),
	}
	if sim != nil {
		score.ContentSimilarityScore = *sim
	}

	if err := e.store.UpsertScore(ctx, score); err != nil {
		return model.VideoScore{}, fmt.Errorf("upsert score: %w", err)
	}
	metrics.RecordScoreComputed(sim != nil)
	return score, nil
}

// similarity returns nil when either embedding is missing or unusable.
func (e *Engine) similarity(ctx context.Context, videoID, referenceVideoID string) (*float64, error) {
	if referenceVideoID == "" || referenceVideoID == videoID {
		return nil, nil
	}
	target, err := e.store.Embedding(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("read embedding %s: %w", videoID, err)
	}
	if target == nil {
		return nil, nil
	}
	ref, err := e.store.Embedding(ctx, referenceVideoID)
	if err != nil {
		return nil, fmt.Errorf("read embedding %s: %w", referenceVideoID, err)
	}
	if ref == nil {
		return nil, nil
	}
	sim, err := similarity.Cosine(target, ref)
	if errors.Is(err, similarity.ErrDimensionMismatch) || errors.Is(err, similarity.ErrZeroVector) {
		e.log.Warn(ctx, "similarity skipped",
			logger.String("video", videoID), logger.String("reference", referenceVideoID), logger.Error(err))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sim, nil
}
