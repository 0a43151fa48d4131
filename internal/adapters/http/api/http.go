// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/okian/reelrank/internal/adapters/remote"
	service "github.com/okian/reelrank/internal/app"
	"github.com/okian/reelrank/internal/app/feedview"
	"github.com/okian/reelrank/internal/domain/aggregator"
	"github.com/okian/reelrank/internal/domain/feed"
	"github.com/okian/reelrank/internal/domain/retry"
	"github.com/okian/reelrank/internal/domain/types"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	PlaybackDependencies
	FeedDependencies
	FeedbackDependencies
	AIDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	playbackHandler *PlaybackHandler
	feedHandler     *FeedHandler
	feedbackHandler *FeedbackHandler
	aiHandler       *AIHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		playbackHandler: NewPlaybackHandler(deps),
		feedHandler:     NewFeedHandler(deps),
		feedbackHandler: NewFeedbackHandler(deps),
		aiHandler:       NewAIHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/playback", MetricsMiddleware(s.playbackHandler.HandlePostPlayback, "playback"))
	mux.HandleFunc("/sessions/close", MetricsMiddleware(s.playbackHandler.HandleCloseSession, "sessions_close"))
	mux.HandleFunc("/feed", MetricsMiddleware(s.feedHandler.HandleGetFeed, "feed"))
	mux.HandleFunc("/feed/view", MetricsMiddleware(s.feedHandler.HandleGetView, "feed_view"))
	mux.HandleFunc("/feed/view/more", MetricsMiddleware(s.feedHandler.HandleViewMore, "feed_view_more"))
	mux.HandleFunc("/feedback", MetricsMiddleware(s.feedbackHandler.HandlePostFeedback, "feedback"))
	mux.HandleFunc("/recipes/suggest", MetricsMiddleware(s.aiHandler.HandleSuggestRecipe, "recipes_suggest"))
	mux.HandleFunc("/videos/embedding", MetricsMiddleware(s.aiHandler.HandleEmbedVideo, "videos_embedding"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type userRequest struct {
	UserID string `json:"user_id"`
}

// decodeUser reads a {"user_id"} body and returns the trimmed id.
func decodeUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req userRequest
	if err := decode(w, r, &req); err != nil {
		return "", false
	}
	userID := strings.TrimSpace(req.UserID)
	return userID, userID != ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return nil
}

// writeFailure maps domain errors onto HTTP statuses.
func writeFailure(w http.ResponseWriter, op string, err error) {
	var (
		fatal     *retry.FatalError
		exhausted *retry.ExhaustedRetriesError
	)
	switch {
	case errors.Is(err, feed.ErrInvalidCursor),
		errors.Is(err, feed.ErrInvalidPageSize),
		errors.Is(err, feed.ErrInvalidFeedback),
		errors.Is(err, aggregator.ErrInvalidSample),
		errors.Is(err, remote.ErrEmptyInput),
		errors.Is(err, types.ErrMissingUser):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrNoSession):
		writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
	case errors.Is(err, feedview.ErrLoading),
		errors.Is(err, feedview.ErrStale),
		errors.Is(err, aggregator.ErrSessionClosed):
		writeError(w, http.StatusConflict, "conflict", Wrap(op, err))
	case errors.Is(err, service.ErrRemoteDisabled), errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", Wrap(op, err))
	case errors.As(err, &fatal):
		writeError(w, http.StatusBadGateway, "upstream_rejected", WrapKind(op, ErrUpstream, err))
	case errors.As(err, &exhausted):
		writeError(w, http.StatusServiceUnavailable, "upstream_unavailable", WrapKind(op, ErrUpstream, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
