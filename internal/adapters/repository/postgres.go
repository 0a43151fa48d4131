package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/reelrank/internal/domain/model"
	"github.com/okian/reelrank/pkg/metrics"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Pool defaults for OpenPool.
const (
	poolMaxConns          = 10
	poolMinConns          = 1
	poolMaxConnIdleTime   = 5 * time.Minute
	poolHealthCheckPeriod = 30 * time.Second
)

// OpenPool opens and pings a pgx pool for dsn.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = poolMaxConns
	cfg.MinConns = poolMinConns
	cfg.MaxConnIdleTime = poolMaxConnIdleTime
	cfg.HealthCheckPeriod = poolHealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// PostgresStore is the production Store backed by pgx.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	for _, e := range entries {
		sql, err := migrations.ReadFile("migrations/" + e.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		if _, err := s.db.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (s *PostgresStore) track(op string, start time.Time, err error) error {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordStoreError(op)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

const selectMetric = `
SELECT user_id, video_id, watched_seconds, last_position_ms, completed, replay_count,
       average_watch_percent, sampled_at, updated_at
FROM video_metrics WHERE user_id = $1 AND video_id = $2`

// ReadMetric implements Store.
func (s *PostgresStore) ReadMetric(ctx context.Context, userID, videoID string) (m *model.VideoMetric, err error) {
	defer func(start time.Time) { err = s.track("read_metric", start, err) }(time.Now())
	row, err := scanMetric(s.db.QueryRow(ctx, selectMetric, userID, videoID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

const upsertMetric = `
INSERT INTO video_metrics (user_id, video_id, watched_seconds, last_position_ms, completed,
                           replay_count, average_watch_percent, sampled_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (user_id, video_id)
DO UPDATE SET
  watched_seconds       = EXCLUDED.watched_seconds,
  last_position_ms      = EXCLUDED.last_position_ms,
  completed             = EXCLUDED.completed,
  replay_count          = EXCLUDED.replay_count,
  average_watch_percent = EXCLUDED.average_watch_percent,
  sampled_at            = EXCLUDED.sampled_at,
  updated_at            = EXCLUDED.updated_at`

// UpsertMetric implements Store.
func (s *PostgresStore) UpsertMetric(ctx context.Context, m model.VideoMetric) (err error) { //nolint:gocritic // hugeParam: rows are written by value
	defer func(start time.Time) { err = s.track("upsert_metric", start, err) }(time.Now())
	if m.UserID == "" || m.VideoID == "" {
		return fmt.Errorf("%w: metric without user or video", ErrInvalidRow)
	}
	_, err = s.db.Exec(ctx, upsertMetric,
		m.UserID, m.VideoID, m.WatchedSeconds, m.LastPositionMS, m.Completed,
		m.ReplayCount, m.AverageWatchPercent, m.SampledAt.UTC(), time.Now().UTC(),
	)
	return err
}

const selectScore = `
SELECT user_id, video_id, engagement_score, content_similarity_score, total_score, last_calculated_at
FROM video_scores WHERE user_id = $1 AND video_id = $2`

// ReadScore implements Store.
func (s *PostgresStore) ReadScore(ctx context.Context, userID, videoID string) (sc *model.VideoScore, err error) {
	defer func(start time.Time) { err = s.track("read_score", start, err) }(time.Now())
	row, err := scanScore(s.db.QueryRow(ctx, selectScore, userID, videoID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

const upsertScore = `
INSERT INTO video_scores (user_id, video_id, engagement_score, content_similarity_score, total_score, last_calculated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id, video_id)
DO UPDATE SET
  engagement_score         = EXCLUDED.engagement_score,
  content_similarity_score = EXCLUDED.content_similarity_score,
  total_score              = EXCLUDED.total_score,
  last_calculated_at       = EXCLUDED.last_calculated_at`

// UpsertScore implements Store.
func (s *PostgresStore) UpsertScore(ctx context.Context, sc model.VideoScore) (err error) {
	defer func(start time.Time) { err = s.track("upsert_score", start, err) }(time.Now())
	if sc.UserID == "" || sc.VideoID == "" {
		return fmt.Errorf("%w: score without user or video", ErrInvalidRow)
	}
	_, err = s.db.Exec(ctx, upsertScore,
		sc.UserID, sc.VideoID, sc.EngagementScore, sc.ContentSimilarityScore, sc.TotalScore, sc.LastCalculatedAt.UTC(),
	)
	return err
}

// rankedPageQuery builds the keyset query. The cursor predicate expands the
// (score DESC, id ASC) order so the rank index stays usable.
func rankedPageQuery(userID string, after *model.Cursor, limit int) (string, []any) {
	q := `SELECT s.video_id, s.total_score, s.engagement_score, s.content_similarity_score
FROM video_scores s
WHERE s.user_id = $1
  AND NOT EXISTS (
    SELECT 1 FROM video_feedback f
    WHERE f.user_id = s.user_id AND f.video_id = s.video_id AND f.kind = 'not_for_me')`
	args := []any{userID}
	if after != nil {
		q += `
  AND (s.total_score < $2 OR (s.total_score = $2 AND s.video_id > $3))`
		args = append(args, after.Score, after.VideoID)
	}
	q += `
ORDER BY s.total_score DESC, s.video_id ASC
LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit)
	return q, args
}

// RankedPage implements Store.
func (s *PostgresStore) RankedPage(ctx context.Context, userID string, after *model.Cursor, limit int) (out []model.RankedVideo, err error) {
	defer func(start time.Time) { err = s.track("ranked_page", start, err) }(time.Now())
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	q, args := rankedPageQuery(userID, after, limit)
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out = make([]model.RankedVideo, 0, limit)
	for rows.Next() {
		v, err := scanRankedVideo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

const insertFeedback = `
INSERT INTO video_feedback (id, user_id, video_id, kind, created_at) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`

// InsertFeedback implements Store.
func (s *PostgresStore) InsertFeedback(ctx context.Context, f model.Feedback) (err error) {
	defer func(start time.Time) { err = s.track("insert_feedback", start, err) }(time.Now())
	if f.UserID == "" || f.VideoID == "" || !f.Kind.Valid() {
		return fmt.Errorf("%w: feedback %q", ErrInvalidRow, f.Kind)
	}
	id, err := uuid.Parse(f.ID)
	if err != nil {
		id = uuid.New()
	}
	created := f.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.db.Exec(ctx, insertFeedback, id, f.UserID, f.VideoID, string(f.Kind), created.UTC())
	return err
}

// Embedding implements Store.
func (s *PostgresStore) Embedding(ctx context.Context, videoID string) (vec []float64, err error) {
	defer func(start time.Time) { err = s.track("embedding", start, err) }(time.Now())
	err = s.db.QueryRow(ctx, `SELECT embedding FROM video_embeddings WHERE video_id = $1`, videoID).Scan(&vec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return vec, err
}

// PutEmbedding implements Store.
func (s *PostgresStore) PutEmbedding(ctx context.Context, videoID string, vec []float64) (err error) {
	defer func(start time.Time) { err = s.track("put_embedding", start, err) }(time.Now())
	if videoID == "" || len(vec) == 0 {
		return fmt.Errorf("%w: empty embedding", ErrInvalidRow)
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO video_embeddings (video_id, embedding) VALUES ($1, $2)
ON CONFLICT (video_id) DO UPDATE SET embedding = EXCLUDED.embedding`, videoID, vec)
	return err
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// Row mapping. Each entity has exactly one scan function so store-shaped
// data never crosses into the domain unmapped.

func scanMetric(row pgx.Row) (model.VideoMetric, error) {
	var m model.VideoMetric
	err := row.Scan(&m.UserID, &m.VideoID, &m.WatchedSeconds, &m.LastPositionMS, &m.Completed,
		&m.ReplayCount, &m.AverageWatchPercent, &m.SampledAt, &m.UpdatedAt)
	return m, err
}

func scanScore(row pgx.Row) (model.VideoScore, error) {
	var sc model.VideoScore
	err := row.Scan(&sc.UserID, &sc.VideoID, &sc.EngagementScore, &sc.ContentSimilarityScore,
		&sc.TotalScore, &sc.LastCalculatedAt)
	return sc, err
}

func scanRankedVideo(row pgx.Row) (model.RankedVideo, error) {
	var v model.RankedVideo
	err := row.Scan(&v.VideoID, &v.TotalScore, &v.EngagementScore, &v.ContentSimilarityScore)
	return v, err
}
