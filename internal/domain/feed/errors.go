package feed

import "errors"

// Sentinel errors for the paginator.
var (
	ErrInvalidCursor   = errors.New("invalid cursor")
	ErrInvalidFeedback = errors.New("invalid feedback")
	ErrInvalidPageSize = errors.New("invalid page size")
)
