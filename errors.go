package main

import "errors"

// Domain error kinds. Callers discriminate with errors.Is; the Slack layer
// translates them into user-facing messages.
var (
	// ErrConflict is returned when a write would violate the single-active-entry
	// invariant, e.g. clocking in while already clocked in elsewhere.
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned when the target entity does not exist or does not
	// match the requested scope (e.g. clock-out at a site with no active entry).
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when a write would violate a data invariant,
	// e.g. a clock-out time before the clock-in time or overlapping schedules.
	ErrValidation = errors.New("validation failed")
)
