package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/arcadia/internal/models"
	pkghttp "github.com/BradenHooton/arcadia/pkg/http"
)

// writeServiceError maps a service error to its HTTP response. Specific
// sentinels are matched first; the remainder fall back to the error kind.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var lockout *models.LockoutError
	switch {
	case errors.As(err, &lockout):
		pkghttp.WriteLocked(w, lockout.Until, time.Now())
	case errors.Is(err, models.ErrAccountLocked):
		pkghttp.WriteError(w, http.StatusLocked, "account_locked", "account temporarily locked")
	case errors.Is(err, models.ErrAccountBanned):
		pkghttp.WriteError(w, http.StatusForbidden, "account_banned", "account is banned")
	case errors.Is(err, models.ErrPasswordExpired):
		pkghttp.WriteError(w, http.StatusForbidden, "password_expired", "password has expired, reset it to continue")
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case errors.Is(err, models.ErrInvalidCode):
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_code", "invalid verification code")
	case errors.Is(err, models.ErrCurrentPasswordWrong):
		pkghttp.WriteError(w, http.StatusUnauthorized, "current_password_wrong", "current password is incorrect")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "authentication required")
	case errors.Is(err, models.ErrChallengeExpired):
		pkghttp.WriteError(w, http.StatusGone, "challenge_expired", "verification code expired, start again")
	case errors.Is(err, models.ErrPasswordReused):
		pkghttp.WriteError(w, http.StatusConflict, "password_reused", "password was used recently")
	case errors.Is(err, models.ErrWeakPassword):
		pkghttp.WriteError(w, http.StatusBadRequest, "password_too_weak",
			"password needs 8+ characters with upper and lower case letters, a digit and a symbol")
	case errors.Is(err, models.ErrMFAAlreadyActive):
		pkghttp.WriteError(w, http.StatusConflict, "mfa_already_enabled", "mfa is already enabled")
	case errors.Is(err, models.ErrMFANotEnabled):
		pkghttp.WriteError(w, http.StatusBadRequest, "mfa_not_enabled", "mfa is not enabled")
	case errors.Is(err, models.ErrEmailDelivery):
		pkghttp.WriteError(w, http.StatusServiceUnavailable, "email_unavailable", "email could not be sent, try again later")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "resource not found")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "forbidden")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "resource already exists")
	case models.KindOf(err) == models.KindValidation:
		pkghttp.WriteBadRequest(w, err.Error())
	default:
		logger.Error("request failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "internal server error")
	}
}
