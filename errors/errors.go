// Package errors defines the failure taxonomy of the realtime core and
// the mapping to stable machine-readable wire codes.
package errors

import (
	stderrors "errors"
)

var (
	// ErrAuthentication is fatal for the connection: admission is
	// refused and the connection closed.
	ErrAuthentication = stderrors.New("authentication failed")

	// Recoverable failures, reported to the originating connection.
	ErrRateLimited      = stderrors.New("rate limit exceeded")
	ErrInvalidRequest   = stderrors.New("invalid request")
	ErrRecipientOffline = stderrors.New("recipient is offline")
	ErrNotFound         = stderrors.New("not found")
	ErrForbidden        = stderrors.New("forbidden")
	ErrInvalidCallState = stderrors.New("invalid call state")

	// ErrStatusRegression rejects a backward move along the message
	// delivery lifecycle.
	ErrStatusRegression = stderrors.New("message status may not regress")

	// ErrPersistence aborts the triggering operation; no partial side
	// effect may have reached a peer.
	ErrPersistence = stderrors.New("persistence failure")
)

// Wire codes returned to clients.
const (
	CodeAuthError        = "auth_error"
	CodeRateLimited      = "rate_limit_exceeded"
	CodeInvalidRequest   = "invalid_request"
	CodeRecipientOffline = "recipient_offline"
	CodeNotFound         = "not_found"
	CodeForbidden        = "forbidden"
	CodeInvalidCallState = "invalid_call_state"
	CodePersistence      = "persistence_failure"
	CodeInternal         = "internal_error"
)

var codes = []struct {
	sentinel error
	code     string
}{
	{ErrAuthentication, CodeAuthError},
	{ErrRateLimited, CodeRateLimited},
	{ErrInvalidRequest, CodeInvalidRequest},
	{ErrStatusRegression, CodeInvalidRequest},
	{ErrRecipientOffline, CodeRecipientOffline},
	{ErrNotFound, CodeNotFound},
	{ErrForbidden, CodeForbidden},
	{ErrInvalidCallState, CodeInvalidCallState},
	{ErrPersistence, CodePersistence},
}

// CodeOf maps err to its wire code. Unclassified errors map to
// internal_error.
func CodeOf(err error) string {
	for _, c := range codes {
		if stderrors.Is(err, c.sentinel) {
			return c.code
		}
	}
	return CodeInternal
}

// Public returns the wire code and a client-safe message for err.
// Classified errors surface their own message; anything else is
// reported generically so internals never leak.
func Public(err error) (code, message string) {
	code = CodeOf(err)
	if code == CodeInternal {
		return code, "internal server error"
	}
	return code, err.Error()
}

// Is re-exports the standard matcher so callers need a single errors
// import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
