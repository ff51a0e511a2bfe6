package auth

import "errors"

// Business outcomes are ordinary return values; only infrastructure
// faults are surfaced as wrapped unexpected errors. Invalid username and
// invalid password intentionally share one sentinel so callers cannot
// enumerate accounts.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrAccountLocked      = errors.New("account is locked after too many failed attempts")
	ErrDuplicateUsername  = errors.New("username already registered")
	ErrInvalidRole        = errors.New("invalid role")
	ErrAccountNotFound    = errors.New("account not found")
	ErrSessionInvalid     = errors.New("session expired or unknown")
)
