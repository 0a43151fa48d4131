// Package feedview keeps the per-user feed state a client renders: the
// pages loaded so far plus loading, error and has-more flags.
package feedview

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/okian/reelrank/internal/domain/feed"
	"github.com/okian/reelrank/internal/domain/model"
	"github.com/okian/reelrank/pkg/logger"
	"github.com/okian/reelrank/pkg/metrics"
)

// Invalidation origins used as metric labels.
const (
	OriginLocal  = "local"
	OriginRemote = "remote"
)

// Sentinel errors for the view.
var (
	ErrStale   = errors.New("feed invalidated while loading")
	ErrLoading = errors.New("feed already loading")
)

// Pager is the paginator the view reads through.
type Pager interface {
	GetPage(ctx context.Context, userID, cursor string) (feed.Page, error)
	Feedback(ctx context.Context, userID, videoID string, kind model.FeedbackKind) (model.Feedback, error)
}

// State is a snapshot of one user's feed.
type State struct {
	Videos     []model.RankedVideo
	Loading    bool
	Err        error // last load failure; distinct from an empty feed
	HasMore    bool
	NextCursor string
	Generation uint64 // bumped on every invalidation
	Loaded     bool   // at least one page was fetched since the last invalidation
}

func (s *State) clone() State {
	out := *s
	out.Videos = slices.Clone(s.Videos)
	return out
}

// View caches feed state per user.
type View struct {
	pager Pager
	log   logger.Logger

	mu    sync.Mutex
	users map[string]*State
}

// New creates a view over pager.
func New(pager Pager) *View {
	return &View{
		pager: pager,
		log:   logger.Get().Named("feedview"),
		users: make(map[string]*State),
	}
}

func (v *View) state(userID string) *State {
	st, ok := v.users[userID]
	if !ok {
		st = &State{}
		v.users[userID] = st
	}
	return st
}

// State returns a copy of the cached state of userID.
func (v *View) State(userID string) State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state(userID).clone()
}

// Current returns the cached state, refreshing first when nothing is loaded.
func (v *View) Current(ctx context.Context, userID string) (State, error) {
	v.mu.Lock()
	loaded := v.state(userID).Loaded
	v.mu.Unlock()
	if loaded {
		return v.State(userID), nil
	}
	return v.Refresh(ctx, userID)
}

// Refresh discards loaded pages and fetches the top of the feed.
func (v *View) Refresh(ctx context.Context, userID string) (State, error) {
	return v.load(ctx, userID, true)
}

// LoadMore appends the next page. It is a no-op when nothing more exists.
func (v *View) LoadMore(ctx context.Context, userID string) (State, error) {
	return v.load(ctx, userID, false)
}

func (v *View) load(ctx context.Context, userID string, top bool) (State, error) {
	v.mu.Lock()
	st := v.state(userID)
	if st.Loading {
		v.mu.Unlock()
		return v.State(userID), ErrLoading
	}
	if !top && (!st.Loaded || !st.HasMore) {
		if !st.Loaded {
			v.mu.Unlock()
			return v.Refresh(ctx, userID)
		}
		out := st.clone()
		v.mu.Unlock()
		return out, nil
	}
	cursor := st.NextCursor
	if top {
		cursor = ""
	}
	gen := st.Generation
	st.Loading = true
	v.mu.Unlock()

	page, err := v.pager.GetPage(ctx, userID, cursor)

	v.mu.Lock()
	defer v.mu.Unlock()
	st = v.state(userID)
	if st.Generation != gen {
		// Invalidated mid-flight; the page may hold stale ranks.
		return st.clone(), ErrStale
	}
	st.Loading = false
	if err != nil {
		st.Err = err
		return st.clone(), fmt.Errorf("load feed: %w", err)
	}
	if top {
		st.Videos = nil
	}
	st.Videos = append(st.Videos, page.Videos...)
	st.HasMore = page.HasMore
	st.NextCursor = page.NextCursor
	st.Err = nil
	st.Loaded = true
	return st.clone(), nil
}

// Invalidate drops every cached page of userID after local feedback.
func (v *View) Invalidate(ctx context.Context, userID string) {
	v.InvalidateFrom(ctx, userID, OriginLocal)
}

// InvalidateFrom drops every cached page of userID.
func (v *View) InvalidateFrom(ctx context.Context, userID, origin string) {
	v.mu.Lock()
	st := v.state(userID)
	v.users[userID] = &State{Generation: st.Generation + 1}
	v.mu.Unlock()

	metrics.RecordCacheInvalidation(origin)
	v.log.Debug(ctx, "feed invalidated", logger.String("user", userID), logger.String("origin", origin))
}

// Feedback applies the reaction optimistically and rolls back to the
// previous state when the write fails. A not_for_me video disappears from
// the cached pages right away.
func (v *View) Feedback(ctx context.Context, userID, videoID string, kind model.FeedbackKind) (model.Feedback, error) {
	v.mu.Lock()
	st := v.state(userID)
	snapshot := st.clone()
	if kind == model.FeedbackNotForMe {
		st.Videos = slices.DeleteFunc(st.Videos, func(r model.RankedVideo) bool { return r.VideoID == videoID })
	}
	v.mu.Unlock()

	f, err := v.pager.Feedback(ctx, userID, videoID, kind)
	if err == nil {
		return f, nil
	}

	v.mu.Lock()
	if cur := v.state(userID); cur.Generation == snapshot.Generation {
		restored := snapshot
		restored.Loading = cur.Loading
		v.users[userID] = &restored
	}
	v.mu.Unlock()
	v.log.Warn(ctx, "feedback rolled back",
		logger.String("user", userID), logger.String("video", videoID), logger.Error(err))
	return model.Feedback{}, err
}
