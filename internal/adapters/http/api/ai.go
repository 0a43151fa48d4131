package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/reelrank/internal/domain/types"
)

// AIDependencies defines the operations backed by the remote AI service.
type AIDependencies interface {
	SuggestRecipe(ctx context.Context, prompt string, withImage bool) (types.Recipe, error)
	EmbedVideo(ctx context.Context, videoID, text string) (int, error)
}

// AIHandler handles recipe and embedding requests.
type AIHandler struct {
	deps AIDependencies
}

// NewAIHandler creates a new AI handler.
func NewAIHandler(deps AIDependencies) *AIHandler {
	return &AIHandler{deps: deps}
}

// HandleSuggestRecipe handles POST /recipes/suggest requests.
func (h *AIHandler) HandleSuggestRecipe(w http.ResponseWriter, r *http.Request) {
	const op = "api.suggest_recipe"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req types.RecipeRequest
	if err := decode(w, r, &req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	recipe, err := h.deps.SuggestRecipe(r.Context(), req.Prompt, req.Image)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

// HandleEmbedVideo handles POST /videos/embedding requests.
func (h *AIHandler) HandleEmbedVideo(w http.ResponseWriter, r *http.Request) {
	const op = "api.embed_video"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req types.EmbeddingRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	switch {
	case strings.TrimSpace(req.VideoID) == "":
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, types.ErrMissingVideo))
		return
	case strings.TrimSpace(req.Text) == "":
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, types.ErrMissingText))
		return
	}
	dims, err := h.deps.EmbedVideo(r.Context(), req.VideoID, req.Text)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, types.EmbeddingAck{VideoID: req.VideoID, Dimensions: dims})
}
