package scoring

import "errors"

// ErrMetricNotFound is returned when a score is requested for a pair that
// has no durable metric yet.
var ErrMetricNotFound = errors.New("metric not found")
