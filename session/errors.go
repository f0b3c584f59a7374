package session

import "errors"

var (
	// ErrUnauthorized is returned when a token may not create the requested room.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoSource means no live source is configured, so live mode cannot start.
	ErrNoSource = errors.New("no live source configured")
)
