// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"errors"
	"fmt"
)

// Error codes attached to returned errors via oops.Code.
const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeEmptyPassword      = "AUTH_EMPTY_PASSWORD"
	CodeHashFailed         = "AUTH_HASH_FAILED"
	CodeInvalidToken       = "TOKEN_INVALID"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeTokenSignFailed    = "TOKEN_SIGN_FAILED"
	CodeSessionRevoked     = "SESSION_REVOKED"
	CodeSessionInvalid     = "SESSION_INVALID"
	CodeSessionConflict    = "SESSION_CONFLICT"
	CodeSubjectNotFound    = "SUBJECT_NOT_FOUND"
	CodeStoreUnavailable   = "STORE_UNAVAILABLE"
	CodeConfigInvalid      = "CONFIG_INVALID"
)

// Sentinel errors. Callers classify with errors.Is; the oops code on the
// returned error carries the same classification for logs.
var (
	// ErrNotFound is returned by stores when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSessionConflict is returned by SessionStore.Create when the session
	// ID is already taken.
	ErrSessionConflict = errors.New("session id already exists")

	ErrInvalidCredentials = errors.New("invalid login or password")
	ErrEmptyPassword      = errors.New("password cannot be empty")

	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidSignature and ErrMalformedToken refine ErrInvalidToken.
	ErrInvalidSignature = fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	ErrMalformedToken   = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrTokenExpired     = errors.New("token expired")

	ErrSessionRevoked   = errors.New("session revoked")
	ErrSubjectNotFound  = errors.New("subject not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrConfiguration    = errors.New("invalid configuration")
)

// Unavailable marks a collaborator failure as a transient store error while
// keeping the original cause reachable through errors.Is and errors.As.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// IsUnauthorized reports whether err is one of the outcomes a transport
// should collapse into a single "unauthorized" response.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrSessionRevoked)
}

// IsRetryable reports whether the caller may retry the operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
