package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/reelrank/internal/domain/model"
	"github.com/okian/reelrank/internal/domain/types"
)

// FeedbackDependencies defines the feedback write.
type FeedbackDependencies interface {
	// Feedback records a reaction at most once per request id; the boolean
	// reports a replayed request.
	Feedback(ctx context.Context, requestID, userID, videoID string, kind model.FeedbackKind) (model.Feedback, bool, error)
}

// FeedbackHandler handles feedback requests.
type FeedbackHandler struct {
	deps FeedbackDependencies
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(deps FeedbackDependencies) *FeedbackHandler {
	return &FeedbackHandler{deps: deps}
}

// HandlePostFeedback handles POST /feedback requests.
func (h *FeedbackHandler) HandlePostFeedback(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_feedback"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req types.Feedback
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.UserID = strings.TrimSpace(req.UserID)
	req.VideoID = strings.TrimSpace(req.VideoID)
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	f, dup, err := h.deps.Feedback(r.Context(), req.RequestID, req.UserID, req.VideoID, model.FeedbackKind(req.Kind))
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if dup {
		writeJSON(w, http.StatusOK, types.FeedbackAck{Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusCreated, types.FeedbackAck{ID: f.ID, Status: "recorded"})
}
