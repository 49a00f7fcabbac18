package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
)

// Validation errors: malformed input, always recoverable
var (
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidEmail    = errors.New("invalid email")
	ErrWeakPassword    = errors.New("password does not meet strength requirements")
	ErrInvalidRole     = errors.New("invalid role")
)

// Authentication errors never reveal which factor failed
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidCode          = errors.New("invalid verification code")
	ErrCurrentPasswordWrong = errors.New("current password is incorrect")
	ErrAccountBanned        = errors.New("account is banned")
)

// Account state, expiry and reuse errors
var (
	ErrAccountLocked    = errors.New("account is temporarily locked")
	ErrPasswordExpired  = errors.New("password has expired")
	ErrChallengeExpired = errors.New("verification code expired")
	ErrPasswordReused   = errors.New("password was used recently")
	ErrMFANotEnabled    = errors.New("mfa is not enabled")
	ErrMFAAlreadyActive = errors.New("mfa is already enabled")
)

// Dependency errors
var (
	ErrEmailDelivery = errors.New("email delivery failed")
	ErrStorage       = errors.New("storage unavailable")
)

// LockoutError reports a locked account together with its unlock time
type LockoutError struct {
	Until time.Time
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("%s until %s", ErrAccountLocked.Error(), e.Until.UTC().Format(time.RFC3339))
}

// Is lets errors.Is(err, ErrAccountLocked) match
func (e *LockoutError) Is(target error) bool {
	return target == ErrAccountLocked
}

// ErrorKind groups errors for transport-level mapping
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindAuthentication
	KindLockout
	KindExpiry
	KindReuse
	KindDependency
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindLockout:
		return "lockout"
	case KindExpiry:
		return "expiry"
	case KindReuse:
		return "reuse"
	case KindDependency:
		return "dependency"
	default:
		return "unknown"
	}
}

// KindOf classifies err; anything unrecognised is treated as a dependency failure
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInvalidUsername),
		errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrWeakPassword),
		errors.Is(err, ErrInvalidRole),
		errors.Is(err, ErrBadRequest):
		return KindValidation
	case errors.Is(err, ErrAccountLocked):
		return KindLockout
	case errors.Is(err, ErrPasswordExpired),
		errors.Is(err, ErrChallengeExpired):
		return KindExpiry
	case errors.Is(err, ErrPasswordReused):
		return KindReuse
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidCode),
		errors.Is(err, ErrCurrentPasswordWrong),
		errors.Is(err, ErrAccountBanned),
		errors.Is(err, ErrUnauthorized):
		return KindAuthentication
	default:
		return KindDependency
	}
}
