package aggregator

import "errors"

// Sentinel errors for the aggregator.
var (
	ErrSessionClosed = errors.New("session closed")
	ErrInvalidSample = errors.New("invalid playback sample")
)
