// Package repository adapts the durable store that owns metric, score,
// feedback and embedding rows. Core packages only see domain types; every
// implementation maps its own row shape at this boundary.
package repository

import (
	"context"

	"github.com/okian/reelrank/internal/domain/model"
)

// Store provides read/write access to the durable feed state.
type Store interface {
	// ReadMetric returns the metric row or nil when the pair was never flushed.
	ReadMetric(ctx context.Context, userID, videoID string) (*model.VideoMetric, error)
	// UpsertMetric writes the full metric row keyed by (user, video).
	UpsertMetric(ctx context.Context, m model.VideoMetric) error

	// ReadScore returns the score row or nil when none was computed.
	ReadScore(ctx context.Context, userID, videoID string) (*model.VideoScore, error)
	// UpsertScore writes the full score row keyed by (user, video).
	UpsertScore(ctx context.Context, s model.VideoScore) error

	// RankedPage returns up to limit rows strictly after the cursor, ordered by
	// total score desc then video id asc. Videos the user marked not_for_me are skipped.
	RankedPage(ctx context.Context, userID string, after *model.Cursor, limit int) ([]model.RankedVideo, error)

	// InsertFeedback appends a feedback record.
	InsertFeedback(ctx context.Context, f model.Feedback) error

	// Embedding returns the content embedding or nil when the video has none.
	Embedding(ctx context.Context, videoID string) ([]float64, error)
	// PutEmbedding stores a content embedding.
	PutEmbedding(ctx context.Context, videoID string, vec []float64) error

	Close() error
}
