package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/reelrank/internal/domain/model"
	"github.com/okian/reelrank/internal/domain/types"
)

// PlaybackDependencies defines the session operations.
type PlaybackDependencies interface {
	Observe(ctx context.Context, userID string, st model.PlaybackStatus) (bool, error)
	CloseSession(ctx context.Context, userID string) error
}

// PlaybackHandler handles player status reports.
type PlaybackHandler struct {
	deps PlaybackDependencies
}

// NewPlaybackHandler creates a new playback handler.
func NewPlaybackHandler(deps PlaybackDependencies) *PlaybackHandler {
	return &PlaybackHandler{deps: deps}
}

// HandlePostPlayback handles POST /playback requests.
func (h *PlaybackHandler) HandlePostPlayback(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_playback"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req types.Playback
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.VideoID = strings.TrimSpace(req.VideoID)
	st, err := req.Status()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	pending, err := h.deps.Observe(r.Context(), req.UserID, st)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.PlaybackAck{Status: "accepted", Pending: pending})
}

// HandleCloseSession handles POST /sessions/close requests.
func (h *PlaybackHandler) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	const op = "api.close_session"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	userID, ok := decodeUser(w, r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if err := h.deps.CloseSession(r.Context(), userID); err != nil {
		writeFailure(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
