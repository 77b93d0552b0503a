package authflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind is the fixed, closed taxonomy of user-facing error kinds.
type ErrorKind string

const (
	KindInvalidEmail           ErrorKind = "invalid_email"
	KindWeakPassword           ErrorKind = "weak_password"
	KindEmailAlreadyRegistered ErrorKind = "email_already_registered"
	KindInvalidCredentials     ErrorKind = "invalid_credentials"
	KindNetworkError           ErrorKind = "network_error"
	KindOTPExpired             ErrorKind = "otp_expired"
	KindOTPInvalid             ErrorKind = "otp_invalid"
	KindOTPRateLimited         ErrorKind = "otp_rate_limited"
	KindUserNotFound           ErrorKind = "user_not_found"
	KindUsernameTaken          ErrorKind = "username_taken"
	KindSessionExpired         ErrorKind = "session_expired"
	KindUnknown                ErrorKind = "unknown"
)

// AuthError is a provider or validation failure classified into the fixed
// taxonomy. Message preserves the raw underlying text for diagnostics,
// which matters most for KindUnknown.
type AuthError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error { return e.cause }

// NewAuthError wraps cause under the given kind, preserving its message.
func NewAuthError(kind ErrorKind, cause error) *AuthError {
	ae := &AuthError{Kind: kind, cause: cause}
	if cause != nil {
		ae.Message = cause.Error()
	}
	return ae
}

// classifyTable maps provider error text to kinds by substring, matched in
// order. Pattern matching on vendor text is deliberately last-resort and
// approximate; adapters that surface structured codes should include them in
// the error text so they match here. Anything unmatched falls to KindUnknown
// with the original message preserved.
//
// Order matters: profile-uniqueness violations also contain "duplicate", so
// username patterns must precede the email-registration ones, and "expired"
// must be tried before the generic invalid-token patterns.
var classifyTable = []struct {
	kind     ErrorKind
	patterns []string
}{
	{KindUsernameTaken, []string{
		"username_taken",
		"profiles_username",
		"username already",
		"username is taken",
	}},
	{KindEmailAlreadyRegistered, []string{
		"already registered",
		"already been registered",
		"user_already_exists",
		"email_exists",
		"duplicate",
	}},
	{KindInvalidCredentials, []string{
		"invalid login",
		"invalid_credentials",
		"invalid_grant",
		"invalid email or password",
	}},
	{KindOTPRateLimited, []string{
		"over_email_send_rate_limit",
		"over_request_rate_limit",
		"rate limit",
		"too many requests",
	}},
	{KindOTPExpired, []string{
		"otp_expired",
		"has expired",
	}},
	{KindOTPInvalid, []string{
		"otp_invalid",
		"invalid otp",
		"invalid token",
		"token not found",
	}},
	{KindWeakPassword, []string{
		"weak_password",
		"weak password",
		"password should be at least",
	}},
	{KindInvalidEmail, []string{
		"email_address_invalid",
		"invalid email",
		"unable to validate email",
	}},
	{KindUserNotFound, []string{
		"user_not_found",
		"user not found",
		"no user found",
	}},
	{KindSessionExpired, []string{
		"session_expired",
		"session expired",
		"refresh_token_not_found",
	}},
	{KindNetworkError, []string{
		"network",
		"connection refused",
		"connection reset",
		"no such host",
		"timeout",
		"timed out",
	}},
}

// Classify maps an opaque error to an ErrorKind. Pure function, no state.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}

	// Typed transport failures beat text matching.
	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return KindNetworkError
	}

	msg := strings.ToLower(err.Error())
	for _, entry := range classifyTable {
		for _, pattern := range entry.patterns {
			if strings.Contains(msg, pattern) {
				return entry.kind
			}
		}
	}

	return KindUnknown
}

// ClassifyError wraps err as an *AuthError carrying its classified kind.
// An err that is already an *AuthError is returned unchanged.
func ClassifyError(err error) *AuthError {
	if err == nil {
		return nil
	}

	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}

	return &AuthError{
		Kind:    Classify(err),
		Message: err.Error(),
		cause:   err,
	}
}
