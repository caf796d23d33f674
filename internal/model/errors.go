package model

import "errors"

var (
	// ErrNotFound is returned when a referenced conversation or product is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned for malformed or insufficient input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrReasoningUnavailable is returned when the reasoning engine fails,
	// times out, or returns unusable content.
	ErrReasoningUnavailable = errors.New("reasoning unavailable")

	// ErrProtocol is returned for malformed frames or frames that are not
	// valid in the connection's current state.
	ErrProtocol = errors.New("protocol error")
)
