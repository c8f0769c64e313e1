package models

import "errors"

// Failure taxonomy. Everything except ErrAuthExpired is recovered at the
// smallest scope that produced it.
var (
	ErrTransientNetwork   = errors.New("transient network error")
	ErrMalformedResponse  = errors.New("malformed response")
	ErrClassifier         = errors.New("classifier failure")
	ErrProfileUnavailable = errors.New("profile unavailable")
	ErrBudgetExhausted    = errors.New("budget exhausted")
	ErrAuthExpired        = errors.New("authentication expired")
	ErrSessionSuspended   = errors.New("session suspended")
	ErrNotFound           = errors.New("not found")
	ErrNoAccount          = errors.New("no unassigned account available")
)
