package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrInvalidLimit = errors.New("invalid page limit")
	ErrInvalidRow   = errors.New("invalid row")
	ErrClosed       = errors.New("store closed")
)
