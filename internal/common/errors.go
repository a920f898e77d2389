// Package common defines shared constants and sentinel errors used across
// client layers of IOU Keeper. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Session errors. Both are terminal for the session and force a logout.
	ErrAuthFailure    = errors.New("authentication failed")
	ErrRefreshFailure = errors.New("session expired")
	ErrNoSession      = errors.New("not logged in")

	// Token errors (malformed, expired, or missing claims).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Transport errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnreachable  = errors.New("service unreachable")

	// ErrAction marks a state-changing action rejected by the engine.
	ErrAction = errors.New("action rejected")

	// ErrReconciliationFallback is not user facing: an enrichment call failed
	// and the face amount was used instead.
	ErrReconciliationFallback = errors.New("reconciliation fallback")

	// Lookup / permission errors.
	ErrNotFound     = errors.New("not found")
	ErrNotPermitted = errors.New("action not permitted")
)
