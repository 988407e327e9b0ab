package models

import "errors"

var (
	// ErrNotFound is returned by record stores when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	ErrInvalidEvent     = errors.New("invalid event")
	ErrUnknownEventType = errors.New("unknown event type")
)
