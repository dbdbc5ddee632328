// Package errors defines the closed error taxonomy for the photo-library
// connection flow. Provider error payloads are classified into these kinds
// exactly once, at the boundary that receives them; everything above the
// boundary switches on the kind, never on provider error text.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error kinds
const (
	// KindNotConnected is returned when no token record exists for the subject
	KindNotConnected = "not_connected"

	// KindStateMismatch is returned when CSRF state verification fails
	KindStateMismatch = "state_mismatch"

	// KindProviderDenied is returned when the user declined consent at the provider
	KindProviderDenied = "provider_denied"

	// KindNoCode is returned when the authorization response carries no code
	KindNoCode = "no_code"

	// KindExchangeFailed is returned when the code-for-token exchange fails
	KindExchangeFailed = "exchange_failed"

	// KindScopeMissing is returned when the granted scope excludes the required resource scope
	KindScopeMissing = "scope_missing"

	// KindUnauthorized is returned when the resource API rejects the token even after a refresh
	KindUnauthorized = "unauthorized"

	// KindForbidden is returned for a 403 unrelated to scope (quota, API disabled)
	KindForbidden = "forbidden"

	// KindTransient is returned for network/timeout failures that the caller may retry
	KindTransient = "transient"

	// KindConfig is returned for invalid flow configuration detected before any redirect
	KindConfig = "config"
)

// Error represents an error in the connection flow
type Error struct {
	// Kind is the error kind
	Kind string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// NewNotConnectedError creates a new not connected error
func NewNotConnectedError(message string, cause error) *Error {
	return NewError(KindNotConnected, message, cause)
}

// NewStateMismatchError creates a new state mismatch error
func NewStateMismatchError(message string, cause error) *Error {
	return NewError(KindStateMismatch, message, cause)
}

// NewProviderDeniedError creates a new provider denied error
func NewProviderDeniedError(message string, cause error) *Error {
	return NewError(KindProviderDenied, message, cause)
}

// NewNoCodeError creates a new no code error
func NewNoCodeError(message string, cause error) *Error {
	return NewError(KindNoCode, message, cause)
}

// NewExchangeFailedError creates a new exchange failed error
func NewExchangeFailedError(message string, cause error) *Error {
	return NewError(KindExchangeFailed, message, cause)
}

// NewScopeMissingError creates a new scope missing error
func NewScopeMissingError(message string, cause error) *Error {
	return NewError(KindScopeMissing, message, cause)
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string, cause error) *Error {
	return NewError(KindUnauthorized, message, cause)
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(message string, cause error) *Error {
	return NewError(KindForbidden, message, cause)
}

// NewTransientError creates a new transient error
func NewTransientError(message string, cause error) *Error {
	return NewError(KindTransient, message, cause)
}

// NewConfigError creates a new config error
func NewConfigError(message string, cause error) *Error {
	return NewError(KindConfig, message, cause)
}

func is(err error, kind string) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// IsNotConnected checks if the error is a not connected error
func IsNotConnected(err error) bool {
	return is(err, KindNotConnected)
}

// IsStateMismatch checks if the error is a state mismatch error
func IsStateMismatch(err error) bool {
	return is(err, KindStateMismatch)
}

// IsProviderDenied checks if the error is a provider denied error
func IsProviderDenied(err error) bool {
	return is(err, KindProviderDenied)
}

// IsNoCode checks if the error is a no code error
func IsNoCode(err error) bool {
	return is(err, KindNoCode)
}

// IsExchangeFailed checks if the error is an exchange failed error
func IsExchangeFailed(err error) bool {
	return is(err, KindExchangeFailed)
}

// IsScopeMissing checks if the error is a scope missing error
func IsScopeMissing(err error) bool {
	return is(err, KindScopeMissing)
}

// IsUnauthorized checks if the error is an unauthorized error
func IsUnauthorized(err error) bool {
	return is(err, KindUnauthorized)
}

// IsForbidden checks if the error is a forbidden error
func IsForbidden(err error) bool {
	return is(err, KindForbidden)
}

// IsTransient checks if the error is a transient error
func IsTransient(err error) bool {
	return is(err, KindTransient)
}

// IsConfig checks if the error is a config error
func IsConfig(err error) bool {
	return is(err, KindConfig)
}

// IsTerminal reports whether the error ends the current token's usefulness.
// Terminal errors mean the stored record (if any) has been purged and the
// user must reconnect; transient errors may be retried with backoff.
func IsTerminal(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindStateMismatch, KindProviderDenied, KindNoCode,
		KindExchangeFailed, KindScopeMissing, KindUnauthorized:
		return true
	}
	return false
}

// userMessages maps each kind to an actionable message shown to the user in
// place of a raw HTTP status.
var userMessages = map[string]string{
	KindNotConnected:   "Your photo library is not connected yet. Connect it to get started.",
	KindStateMismatch:  "The connection attempt could not be verified. Please start the connection again.",
	KindProviderDenied: "Access was declined at the provider. Reconnect and allow photo access to continue.",
	KindNoCode:         "The provider response was incomplete. Please start the connection again.",
	KindExchangeFailed: "The connection could not be completed. Please start the connection again.",
	KindScopeMissing:   "Permission was not fully granted - please reconnect and allow photo access.",
	KindUnauthorized:   "Your photo library connection has expired. Please reconnect.",
	KindForbidden:      "The photo library refused the request. This is usually a quota or provider configuration issue, not your connection.",
	KindTransient:      "The photo library is temporarily unreachable. Please try again in a moment.",
	KindConfig:         "The photo connection is misconfigured. Please contact support.",
}

// UserMessage returns an actionable, user-facing message for err.
// Unclassified errors get a generic retry message.
func UserMessage(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		if msg, ok := userMessages[e.Kind]; ok {
			return msg
		}
	}
	return "Something went wrong talking to the photo library. Please try again."
}
