// Package model contains domain models passed between layers.
package model

import "time"

// VideoMetric is the durable engagement record for one user and video.
type VideoMetric struct {
	UserID              string
	VideoID             string
	WatchedSeconds      int64     // floor(lastPosition/1000)
	LastPositionMS      int64     // playback position of the latest flushed sample
	Completed           bool      // position reached the completion ratio of duration
	ReplayCount         int64     // loads of the video beyond the durable base
	AverageWatchPercent float64   // weighted mean in [0,100]
	SampledAt           time.Time // wall clock of the sample that produced LastPositionMS
	UpdatedAt           time.Time
}

// VideoScore is the ranking row derived from a VideoMetric.
type VideoScore struct {
	UserID                 string
	VideoID                string
	EngagementScore        float64
	ContentSimilarityScore float64 // [-1,1]; 0 when no reference embedding was available
	TotalScore             float64
	LastCalculatedAt       time.Time
}

// PendingUpdate is a sampled metric waiting for the next flush tick.
type PendingUpdate struct {
	VideoID        string
	WatchedSeconds int64
	LastPositionMS int64
	Completed      bool
	WatchPercent   float64
	SampledAt      time.Time
	// Attempt counts failed flushes of this update.
	Attempt int
}

// PlaybackStatus is one player status callback.
type PlaybackStatus struct {
	VideoID    string
	Loaded     bool
	Playing    bool
	PositionMS int64
	DurationMS int64 // 0 when the player does not know the duration yet
	At         time.Time
}

// FeedbackKind is the user's explicit reaction to a feed item.
type FeedbackKind string

// Supported feedback kinds.
const (
	FeedbackMoreLikeThis FeedbackKind = "more_like_this"
	FeedbackNotForMe     FeedbackKind = "not_for_me"
)

// Valid reports whether k is a known kind.
func (k FeedbackKind) Valid() bool {
	return k == FeedbackMoreLikeThis || k == FeedbackNotForMe
}

// Feedback is a stored feedback record.
type Feedback struct {
	ID        string
	UserID    string
	VideoID   string
	Kind      FeedbackKind
	CreatedAt time.Time
}

// RankedVideo is one row of a personalized feed page.
type RankedVideo struct {
	VideoID                string
	TotalScore             float64
	EngagementScore        float64
	ContentSimilarityScore float64
}

// Cursor is the rank position of the last item of a page.
type Cursor struct {
	Score   float64
	VideoID string
}

// RanksBefore orders feed rows: higher score first, then video id ascending.
func RanksBefore(aScore float64, aID string, bScore float64, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

// Admits reports whether a row ranks strictly after the cursor. A nil cursor admits everything.
func (c *Cursor) Admits(score float64, videoID string) bool {
	if c == nil {
		return true
	}
	return RanksBefore(c.Score, c.VideoID, score, videoID)
}
