// Package types contains the wire shapes shared by the service and HTTP layers.
package types

import (
	"errors"
	"strings"
	"time"

	"github.com/okian/reelrank/internal/domain/model"
)

// Video is one feed item as returned to clients.
type Video struct {
	VideoID                string  `json:"video_id"`
	TotalScore             float64 `json:"total_score"`
	EngagementScore        float64 `json:"engagement_score"`
	ContentSimilarityScore float64 `json:"content_similarity_score"`
}

// Page is one feed page.
type Page struct {
	Videos     []Video `json:"videos"`
	NextCursor string  `json:"next_cursor,omitempty"`
	HasMore    bool    `json:"has_more"`
}

// Playback is a player status report.
type Playback struct {
	UserID     string `json:"user_id"`
	VideoID    string `json:"video_id"`
	Loaded     bool   `json:"loaded"`
	Playing    bool   `json:"playing"`
	PositionMS int64  `json:"position_ms"`
	DurationMS int64  `json:"duration_ms"`
	TS         string `json:"ts,omitempty"` // RFC3339; server time when empty
}

// PlaybackAck reports whether a sample produced a pending update.
type PlaybackAck struct {
	Status  string `json:"status"`
	Pending bool   `json:"pending"`
}

// Feedback is an explicit reaction to a feed item.
type Feedback struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	VideoID   string `json:"video_id"`
	Kind      string `json:"kind"`
}

// FeedbackAck acknowledges a feedback request.
type FeedbackAck struct {
	ID        string `json:"id,omitempty"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// RecipeRequest asks for a recipe suggestion.
type RecipeRequest struct {
	Prompt string `json:"prompt"`
	Image  bool   `json:"image"`
}

// Recipe is a generated recipe suggestion.
type Recipe struct {
	Text     string `json:"text"`
	ImageURL string `json:"image_url,omitempty"`
}

// EmbeddingRequest asks for the content embedding of a video.
type EmbeddingRequest struct {
	VideoID string `json:"video_id"`
	Text    string `json:"text"`
}

// EmbeddingAck reports the stored embedding size.
type EmbeddingAck struct {
	VideoID    string `json:"video_id"`
	Dimensions int    `json:"dimensions"`
}

// Validation errors.
var (
	ErrMissingUser  = errors.New("missing user_id")
	ErrMissingVideo = errors.New("missing video_id")
	ErrInvalidTS    = errors.New("invalid ts; must be RFC3339")
	ErrInvalidKind  = errors.New("invalid kind; must be more_like_this or not_for_me")
	ErrMissingReqID = errors.New("missing request_id")
	ErrMissingText  = errors.New("missing text")
)

// Status validates p and maps it to a player status.
func (p Playback) Status() (model.PlaybackStatus, error) {
	switch {
	case strings.TrimSpace(p.UserID) == "":
		return model.PlaybackStatus{}, ErrMissingUser
	case strings.TrimSpace(p.VideoID) == "":
		return model.PlaybackStatus{}, ErrMissingVideo
	}
	st := model.PlaybackStatus{
		VideoID:    p.VideoID,
		Loaded:     p.Loaded,
		Playing:    p.Playing,
		PositionMS: p.PositionMS,
		DurationMS: p.DurationMS,
	}
	if p.TS != "" {
		at, err := time.Parse(time.RFC3339, p.TS)
		if err != nil {
			return model.PlaybackStatus{}, ErrInvalidTS
		}
		st.At = at
	}
	return st, nil
}

// Validate checks the required feedback fields.
func (f Feedback) Validate() error {
	switch {
	case strings.TrimSpace(f.RequestID) == "":
		return ErrMissingReqID
	case strings.TrimSpace(f.UserID) == "":
		return ErrMissingUser
	case strings.TrimSpace(f.VideoID) == "":
		return ErrMissingVideo
	case !model.FeedbackKind(f.Kind).Valid():
		return ErrInvalidKind
	}
	return nil
}

// Videos maps ranked rows. The result is never nil so it encodes as [].
func Videos(rows []model.RankedVideo) []Video {
	out := make([]Video, len(rows))
	for i, r := range rows {
		out[i] = Video{
			VideoID:                r.VideoID,
			TotalScore:             r.TotalScore,
			EngagementScore:        r.EngagementScore,
			ContentSimilarityScore: r.ContentSimilarityScore,
		}
	}
	return out
}
