package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/okian/reelrank/internal/domain/model"
	"github.com/okian/reelrank/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Each user owns one treap ordered by (score DESC, videoID ASC). In-order
// traversal yields the ranked feed, and a keyset cursor prunes every
// subtree that ranks at or before it.

type node struct {
	id    string
	score float64
	prio  uint64
	left  *node
	right *node
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	return y
}

func insert(n *node, id string, score float64, prio uint64) *node {
	if n == nil {
		return &node{id: id, score: score, prio: prio}
	}
	if model.RanksBefore(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	return n
}

func deleteNode(n *node, id string, score float64) *node {
	if n == nil {
		return nil
	}
	if score == n.score && id == n.id {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
		return n
	}
	if model.RanksBefore(score, id, n.score, n.id) {
		n.left = deleteNode(n.left, id, score)
	} else {
		n.right = deleteNode(n.right, id, score)
	}
	return n
}

// collectAfter appends up to limit visible nodes ranking strictly after cursor.
func collectAfter(n *node, after *model.Cursor, limit int, hidden map[string]bool, out *[]string) {
	if n == nil || len(*out) >= limit {
		return
	}
	if !after.Admits(n.score, n.id) {
		// n and its whole left subtree rank at or before the cursor.
		collectAfter(n.right, after, limit, hidden, out)
		return
	}
	collectAfter(n.left, after, limit, hidden, out)
	if len(*out) < limit && !hidden[n.id] {
		*out = append(*out, n.id)
	}
	collectAfter(n.right, after, limit, hidden, out)
}

type pairKey struct {
	user  string
	video string
}

// MemoryStore keeps every row in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	metrics    map[pairKey]model.VideoMetric
	scores     map[pairKey]model.VideoScore
	ranks      map[string]*node
	hidden     map[string]map[string]bool
	feedback   []model.Feedback
	embeddings map[string][]float64
	closed     bool
	now        func() time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		metrics:    make(map[pairKey]model.VideoMetric),
		scores:     make(map[pairKey]model.VideoScore),
		ranks:      make(map[string]*node),
		hidden:     make(map[string]map[string]bool),
		embeddings: make(map[string][]float64),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Milliseconds()))
}

// ReadMetric implements Store.
func (s *MemoryStore) ReadMetric(_ context.Context, userID, videoID string) (*model.VideoMetric, error) {
	defer observe("read_metric", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	m, ok := s.metrics[pairKey{userID, videoID}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// UpsertMetric implements Store.
func (s *MemoryStore) UpsertMetric(_ context.Context, m model.VideoMetric) error { //nolint:gocritic // hugeParam: rows are stored by value
	defer observe("upsert_metric", time.Now())
	if m.UserID == "" || m.VideoID == "" {
		return fmt.Errorf("%w: metric without user or video", ErrInvalidRow)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	m.UpdatedAt = s.now()
	s.metrics[pairKey{m.UserID, m.VideoID}] = m
	return nil
}

// ReadScore implements Store.
func (s *MemoryStore) ReadScore(_ context.Context, userID, videoID string) (*model.VideoScore, error) {
	defer observe("read_score", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	sc, ok := s.scores[pairKey{userID, videoID}]
	if !ok {
		return nil, nil
	}
	return &sc, nil
}

// UpsertScore implements Store and repositions the video in the user's ranking.
func (s *MemoryStore) UpsertScore(_ context.Context, sc model.VideoScore) error {
	defer observe("upsert_score", time.Now())
	if sc.UserID == "" || sc.VideoID == "" {
		return fmt.Errorf("%w: score without user or video", ErrInvalidRow)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	key := pairKey{sc.UserID, sc.VideoID}
	root := s.ranks[sc.UserID]
	if old, ok := s.scores[key]; ok {
		root = deleteNode(root, old.VideoID, old.TotalScore)
	}
	s.ranks[sc.UserID] = insert(root, sc.VideoID, sc.TotalScore, rand.Uint64()) //nolint:gosec // treap priority, not security
	s.scores[key] = sc
	return nil
}

// RankedPage implements Store.
func (s *MemoryStore) RankedPage(_ context.Context, userID string, after *model.Cursor, limit int) ([]model.RankedVideo, error) {
	defer observe("ranked_page", time.Now())
	if limit < 1 {
		metrics.RecordStoreError("ranked_page")
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	ids := make([]string, 0, limit)
	collectAfter(s.ranks[userID], after, limit, s.hidden[userID], &ids)

	out := make([]model.RankedVideo, 0, len(ids))
	for _, id := range ids {
		out = append(out, toRankedVideo(s.scores[pairKey{userID, id}]))
	}
	return out, nil
}

// InsertFeedback implements Store.
func (s *MemoryStore) InsertFeedback(_ context.Context, f model.Feedback) error {
	defer observe("insert_feedback", time.Now())
	if f.UserID == "" || f.VideoID == "" || !f.Kind.Valid() {
		return fmt.Errorf("%w: feedback %q", ErrInvalidRow, f.Kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now()
	}
	s.feedback = append(s.feedback, f)
	if f.Kind == model.FeedbackNotForMe {
		if s.hidden[f.UserID] == nil {
			s.hidden[f.UserID] = make(map[string]bool)
		}
		s.hidden[f.UserID][f.VideoID] = true
	}
	return nil
}

// Feedback returns a copy of every feedback record for userID.
func (s *MemoryStore) Feedback(userID string) []model.Feedback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Feedback
	for _, f := range s.feedback {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	return out
}

// Embedding implements Store.
func (s *MemoryStore) Embedding(_ context.Context, videoID string) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return slices.Clone(s.embeddings[videoID]), nil
}

// PutEmbedding implements Store.
func (s *MemoryStore) PutEmbedding(_ context.Context, videoID string, vec []float64) error {
	if videoID == "" || len(vec) == 0 {
		return fmt.Errorf("%w: empty embedding", ErrInvalidRow)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.embeddings[videoID] = slices.Clone(vec)
	return nil
}

// Count returns the number of scored videos for userID.
func (s *MemoryStore) Count(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k := range s.scores {
		if k.user == userID {
			n++
		}
	}
	return n
}

// Close rejects further calls.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func toRankedVideo(sc model.VideoScore) model.RankedVideo {
	return model.RankedVideo{
		VideoID:                sc.VideoID,
		TotalScore:             sc.TotalScore,
		EngagementScore:        sc.EngagementScore,
		ContentSimilarityScore: sc.ContentSimilarityScore,
	}
}
