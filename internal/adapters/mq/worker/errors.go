package worker

import "errors"

// Sentinel errors for the worker pool.
var (
	ErrPoolClosed = errors.New("worker pool closed")
	ErrDuplicate  = errors.New("flusher already registered")
	ErrNotFound   = errors.New("flusher not registered")
)
