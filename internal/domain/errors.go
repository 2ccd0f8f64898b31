package domain

import "errors"

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrNoCurrentSession   = errors.New("no current session")
	ErrRequestNotFound    = errors.New("streaming request not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrWriteFailure       = errors.New("write failure")
	ErrTooManySessions    = errors.New("session limit reached")
	ErrInvalidInput       = errors.New("invalid input")
)
