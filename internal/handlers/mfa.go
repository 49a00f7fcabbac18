package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/arcadia/internal/auth"
	"github.com/BradenHooton/arcadia/internal/models"
	"github.com/BradenHooton/arcadia/internal/services"
	pkghttp "github.com/BradenHooton/arcadia/pkg/http"
)

// MFAServiceInterface defines the MFA enrollment contract
type MFAServiceInterface interface {
	RequestEnable(ctx context.Context, accountID string, method models.MFAMethod) (*services.MFAEnrollment, error)
	ConfirmEnable(ctx context.Context, accountID, code string) (*services.MFAConfirmation, error)
	Disable(ctx context.Context, accountID string) error
}

// MFAHandler handles enabling and disabling a second factor
type MFAHandler struct {
	service MFAServiceInterface
	logger  *slog.Logger
}

// NewMFAHandler creates a new MFAHandler
func NewMFAHandler(service MFAServiceInterface, logger *slog.Logger) *MFAHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MFAHandler{service: service, logger: logger}
}

// Enable handles POST /auth/mfa/enable. For the email method a code is sent;
// for totp the secret and QR code are returned for the authenticator app.
func (h *MFAHandler) Enable(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}

	var req EnableMFARequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	req.Method = strings.ToLower(strings.TrimSpace(req.Method))
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	enrollment, err := h.service.RequestEnable(r.Context(), account.ID, models.MFAMethod(req.Method))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, enrollment)
}

// ConfirmEnable handles POST /auth/mfa/enable/confirm. The backup codes in
// the response are never shown again.
func (h *MFAHandler) ConfirmEnable(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}

	var req ConfirmMFARequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	confirmation, err := h.service.ConfirmEnable(r.Context(), account.ID, strings.TrimSpace(req.Code))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	pkghttp.WriteJSON(w, http.StatusOK, confirmation)
}

// Disable handles POST /auth/mfa/disable
func (h *MFAHandler) Disable(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}

	if err := h.service.Disable(r.Context(), account.ID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
