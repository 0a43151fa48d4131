package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/reelrank/internal/domain/types"
)

// FeedDependencies defines the feed read operations.
type FeedDependencies interface {
	Page(ctx context.Context, userID, cursor string, limit int) (types.Page, error)
	View(ctx context.Context, userID string) (types.Page, error)
	ViewMore(ctx context.Context, userID string) (types.Page, error)
}

// FeedHandler serves ranked feed pages.
type FeedHandler struct {
	deps FeedDependencies
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(deps FeedDependencies) *FeedHandler {
	return &FeedHandler{deps: deps}
}

// HandleGetFeed handles GET /feed?user_id=U&cursor=C&limit=N requests.
func (h *FeedHandler) HandleGetFeed(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_feed"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, types.ErrMissingUser))
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}
	page, err := h.deps.Page(r.Context(), userID, q.Get("cursor"), limit)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleGetView handles GET /feed/view?user_id=U requests.
func (h *FeedHandler) HandleGetView(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_view"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, types.ErrMissingUser))
		return
	}
	page, err := h.deps.View(r.Context(), userID)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleViewMore handles POST /feed/view/more requests.
func (h *FeedHandler) HandleViewMore(w http.ResponseWriter, r *http.Request) {
	const op = "api.view_more"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	userID, ok := decodeUser(w, r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	page, err := h.deps.ViewMore(r.Context(), userID)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
