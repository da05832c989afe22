package session

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// ErrInvalidCredentials is returned when the provider rejects the
// email/password pair. The message matches the provider's own copy so
// substring classification at the UI layer keeps working.
var ErrInvalidCredentials = goerrors.New("Invalid login credentials", goerrors.CategoryAuth).
	WithTextCode("INVALID_CREDENTIALS").
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailNotConfirmed is returned when the identity exists but the signup
// confirmation email was never acknowledged.
var ErrEmailNotConfirmed = goerrors.New("Email not confirmed", goerrors.CategoryAuth).
	WithTextCode("EMAIL_NOT_CONFIRMED").
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionMissing is returned by operations that require an established
// session when none is held.
var ErrSessionMissing = goerrors.New("Auth session missing", goerrors.CategoryAuth).
	WithTextCode("SESSION_MISSING").
	WithCode(goerrors.CodeUnauthorized)

// ErrUserExists is returned when signing up an email the provider already knows.
var ErrUserExists = goerrors.New("User already registered", goerrors.CategoryConflict).
	WithTextCode("USER_EXISTS").
	WithCode(goerrors.CodeConflict)

// ErrTooManyLoginAttempts is returned when the cooldown window is exhausted.
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryAuth).
	WithTextCode("TOO_MANY_LOGIN_ATTEMPTS").
	WithCode(goerrors.CodeUnauthorized)

// ErrStoreClosed is returned by store operations after Close.
var ErrStoreClosed = goerrors.New("session store is closed", goerrors.CategoryOperation).
	WithTextCode("STORE_CLOSED")

// ErrProfileNotFound is returned by profile updates targeting a missing row.
var ErrProfileNotFound = goerrors.New("profile not found", goerrors.CategoryNotFound).
	WithTextCode("PROFILE_NOT_FOUND").
	WithCode(goerrors.CodeNotFound)

// IsInvalidCredentialsError will check for rejected credentials
func IsInvalidCredentialsError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "Invalid login credentials")
}

// IsEmailNotConfirmedError will check for unconfirmed email sign-ins
func IsEmailNotConfirmedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "Email not confirmed")
}

// IsSessionMissingError will check for operations run without a session
func IsSessionMissingError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "session missing")
}
