package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/arcadia/internal/auth"
	"github.com/BradenHooton/arcadia/internal/models"
	"github.com/BradenHooton/arcadia/internal/services"
	pkghttp "github.com/BradenHooton/arcadia/pkg/http"
)

const (
	registrationReceived = "Registration received. If the email and username are available your account is ready to sign in."
	resetRequested       = "If an account exists for that email, a reset code and link have been sent."
)

// SessionTokenHeader carries the opaque session token on logout when it is
// not in the body
const SessionTokenHeader = "X-Session-Token"

// AuthServiceInterface defines the authentication service contract
type AuthServiceInterface interface {
	Register(ctx context.Context, req services.RegisterRequest) (*models.Account, error)
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	VerifyMFA(ctx context.Context, req services.VerifyMFARequest) (*services.LoginResult, error)
	ResendMFA(ctx context.Context, challengeID string) (*services.LoginResult, error)
	ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error
	RequestPasswordReset(ctx context.Context, email, ip string) error
	ResetPassword(ctx context.Context, req services.ResetPasswordRequest) error
	Logout(ctx context.Context, accountID, sessionToken string) error
}

// AuthHandler handles authentication HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler. ipConfig may be nil, in which
// case forwarding headers are never trusted.
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{service: service, ipConfig: ipConfig, logger: logger}
}

// Register handles account creation
// @Summary Register a new account
// @Accept json
// @Param request body RegisterRequest true "Registration request"
// @Produce json
// @Success 202 {object} map[string]string
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 500 {object} pkghttp.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	_, err := h.service.Register(r.Context(), services.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	// Conflicts and policy failures answer exactly like a success
	if err != nil && !errors.Is(err, models.ErrConflict) && models.KindOf(err) == models.KindDependency {
		h.logger.Error("registration failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{"message": registrationReceived})
}

// Login handles the password step of sign-in
// @Summary Log in with email and password
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} services.LoginResult
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 403 {object} pkghttp.ErrorResponse
// @Failure 423 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Login(r.Context(), services.LoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// VerifyMFA completes a login that is waiting on a second factor
// @Summary Verify an MFA challenge
// @Accept json
// @Param request body VerifyMFARequest true "Challenge and code"
// @Produce json
// @Success 200 {object} services.LoginResult
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 410 {object} pkghttp.ErrorResponse
// @Router /auth/mfa/verify [post]
func (h *AuthHandler) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req VerifyMFARequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.VerifyMFA(r.Context(), services.VerifyMFARequest{
		ChallengeID: req.ChallengeID,
		Code:        strings.TrimSpace(req.Code),
		IPAddress:   pkghttp.ExtractClientIP(r, h.ipConfig),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// ResendMFA issues a fresh login code for a pending email challenge
func (h *AuthHandler) ResendMFA(w http.ResponseWriter, r *http.Request) {
	var req ResendMFARequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.ResendMFA(r.Context(), req.ChallengeID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// ForgotPassword starts a password reset. The response never reveals
// whether the email is registered.
// @Summary Request a password reset
// @Accept json
// @Param request body ForgotPasswordRequest true "Account email"
// @Success 202 {object} map[string]string
// @Router /auth/password/forgot [post]
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email, pkghttp.ExtractClientIP(r, h.ipConfig)); err != nil {
		h.logger.Error("password reset request failed", slog.Any("error", err))
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{"message": resetRequested})
}

// ResetPassword completes a reset with either the emailed code or the link token
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.ResetPassword(r.Context(), services.ResetPasswordRequest{
		Email:       req.Email,
		Code:        strings.TrimSpace(req.Code),
		Token:       req.Token,
		NewPassword: req.NewPassword,
		IPAddress:   pkghttp.ExtractClientIP(r, h.ipConfig),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated account
// @Summary Current account
// @Security BearerAuth
// @Produce json
// @Success 200 {object} services.AccountResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, services.NewAccountResponse(account))
}

// Logout revokes the caller's opaque session token. The token is read from
// the body or, failing that, the X-Session-Token header.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}

	var req LogoutRequest
	if r.ContentLength != 0 {
		if err := pkghttp.DecodeJSON(r, &req); err != nil {
			pkghttp.WriteBadRequest(w, "Invalid request body")
			return
		}
	}
	token := req.SessionToken
	if token == "" {
		token = strings.TrimSpace(r.Header.Get(SessionTokenHeader))
	}

	if err := h.service.Logout(r.Context(), account.ID, token); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword replaces the caller's password after checking the current one
// @Summary Change password
// @Security BearerAuth
// @Accept json
// @Param request body ChangePasswordRequest true "Current and new password"
// @Success 204
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 409 {object} pkghttp.ErrorResponse
// @Router /auth/password/change [post]
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ChangePassword(r.Context(), account.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
