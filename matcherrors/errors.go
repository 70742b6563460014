// Package matcherrors holds sentinel errors shared across the queue, auth,
// and transport packages. Keeping them in their own package avoids import
// cycles between the packages that raise them (queue, auth) and transport
// (which maps them to outbound error events).
package matcherrors

import "errors"

// Matchmaking queue errors.
var (
	ErrAlreadyQueued = errors.New("already-queued")
	ErrNotQueued     = errors.New("not-queued")
)

// Command acceptance policy errors, checked in order.
var (
	ErrWrongMatch   = errors.New("wrong-match")
	ErrLate         = errors.New("late")
	ErrTooFarFuture = errors.New("too-far-future")
	ErrMatchEnded   = errors.New("match-ended")
)

// Reconnect errors.
var (
	ErrMatchNotFound    = errors.New("match not found")
	ErrNotSlotOwner     = errors.New("not a slot owner")
	ErrStateTooOld      = errors.New("state too old")
	ErrAlreadyConnected = errors.New("already connected")
)

// Auth errors.
var (
	ErrAuthNotConfigured = errors.New("server auth not configured")
	ErrInvalidToken      = errors.New("invalid or expired token")
)

// Reason returns the wire "reason" string for an acceptance/reconnect error,
// or "" if err is nil or not one of the sentinels above.
func Reason(err error) string {
	switch err {
	case ErrWrongMatch:
		return "wrong-match"
	case ErrLate:
		return "late"
	case ErrTooFarFuture:
		return "too-far-future"
	case ErrMatchEnded:
		return "match-ended"
	case ErrMatchNotFound:
		return "match not found"
	case ErrNotSlotOwner:
		return "not a slot owner"
	case ErrStateTooOld:
		return "state too old"
	case ErrAlreadyConnected:
		return "already connected"
	case ErrAlreadyQueued:
		return "already-queued"
	case ErrNotQueued:
		return "not-queued"
	default:
		return ""
	}
}
