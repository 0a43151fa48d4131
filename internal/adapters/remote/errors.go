package remote

import "errors"

// Sentinel errors for the remote clients.
var (
	ErrMissingAPIKey = errors.New("remote api key is required")
	ErrEmptyResponse = errors.New("remote returned an empty response")
	ErrEmptyInput    = errors.New("remote input is empty")
)
