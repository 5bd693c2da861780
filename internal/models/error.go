package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication errors
	ErrValidation         = errors.New("username and password are required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrLoginLocked        = errors.New("too many failed login attempts")
	ErrSystemLockdown     = errors.New("login temporarily disabled system-wide")

	// Session errors
	ErrSessionUnavailable = errors.New("session could not be persisted")

	// Activation key errors
	ErrActivationKeyInvalid  = errors.New("activation key invalid")
	ErrActivationKeyExpired  = errors.New("activation key expired")
	ErrActivationKeyCooldown = errors.New("activation key recently issued")

	// Password policy
	ErrWeakPassword = errors.New("password does not meet requirements")
)

// Messages shown to callers. Infrastructure detail is logged, never surfaced.
const (
	// PublicLoginFailure is the only message shown for credential and lockout failures
	PublicLoginFailure       = "Login failed. Check your credentials or try again later."
	PublicSessionUnavailable = "Session could not be saved. Try again later."
	PublicInternalFailure    = "Internal server error"
)

// IsLoginFailure reports whether err must be presented as PublicLoginFailure
func IsLoginFailure(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrLoginLocked) ||
		errors.Is(err, ErrSystemLockdown)
}
