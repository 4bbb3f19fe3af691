// Package common defines shared constants and sentinel errors used across
// the layers of the auth service. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Validation errors (malformed input that should not reach the engine).
	ErrValidation = errors.New("validation error")

	// Auth errors. ErrInvalidCredentials deliberately covers both "no such
	// user" and "wrong password"; ErrInvalidRefreshToken covers both
	// "not found" and "expired". Neither case may be distinguishable by the
	// caller.
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// Access token errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
