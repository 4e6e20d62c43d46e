package chat

import "errors"

var (
	ErrAuthExpired      = errors.New("authorization expired")
	ErrNotConnected     = errors.New("transport not connected")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrFetchFailed      = errors.New("fetch failed")
	ErrTransportDropped = errors.New("transport dropped")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrSessionInactive  = errors.New("session not active")
)
