// ABOUTME: Sentinel errors for the auth package
// ABOUTME: Distinguishes identity-token failures, session failures, and ownership denials

package auth

import "errors"

// Identity-token verification errors
var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Session validation errors
var (
	ErrExpiredSession = errors.New("session expired")
	ErrInvalidSession = errors.New("invalid session")
)

// ErrForbidden is returned when a valid session tries to access a
// resource owned by a different subject. Distinct from the 401-class
// errors above: the caller is authenticated, just not allowed.
var ErrForbidden = errors.New("forbidden")
