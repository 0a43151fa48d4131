package service

import "errors"

// Sentinel errors for the service.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrNoSession      = errors.New("no open session")
	ErrRemoteDisabled = errors.New("remote ai service not configured")
)
