package feed

import (
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	"github.com/goccy/go-json"

	"github.com/okian/reelrank/internal/domain/model"
)

type cursorToken struct {
	Score   float64 `json:"s"`
	VideoID string  `json:"id"`
}

// EncodeCursor encodes the rank position of a row as an opaque token.
func EncodeCursor(c model.Cursor) (string, error) {
	if c.VideoID == "" || math.IsNaN(c.Score) || math.IsInf(c.Score, 0) {
		return "", fmt.Errorf("%w: unencodable position", ErrInvalidCursor)
	}
	b, err := json.Marshal(cursorToken{Score: c.Score, VideoID: c.VideoID})
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token
// means the top of the feed and decodes to nil.
func DecodeCursor(raw string) (*model.Cursor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}
	var tok cursorToken
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}
	if tok.VideoID == "" {
		return nil, fmt.Errorf("%w: missing video id", ErrInvalidCursor)
	}
	return &model.Cursor{Score: tok.Score, VideoID: tok.VideoID}, nil
}
