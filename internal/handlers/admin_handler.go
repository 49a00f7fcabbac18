package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/arcadia/internal/auth"
	"github.com/BradenHooton/arcadia/internal/models"
	"github.com/BradenHooton/arcadia/internal/services"
	pkghttp "github.com/BradenHooton/arcadia/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AdminServiceInterface defines the moderation service contract
type AdminServiceInterface interface {
	GetAccount(ctx context.Context, targetID string) (*models.Account, error)
	FindByUsername(ctx context.Context, username string) (*models.Account, error)
	Ban(ctx context.Context, actorID, targetID, reason string) (*models.Account, error)
	Unban(ctx context.Context, actorID, targetID string) (*models.Account, error)
	SetRole(ctx context.Context, actorID, targetID string, role models.Role) (*models.Account, error)
	Unlock(ctx context.Context, actorID, targetID string) (*models.Account, error)
}

// AdminAccountResponse extends the public account view with moderation state
type AdminAccountResponse struct {
	*services.AccountResponse
	IsBanned            bool       `json:"is_banned"`
	BanReason           string     `json:"ban_reason,omitempty"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
}

func newAdminAccountResponse(a *models.Account) *AdminAccountResponse {
	return &AdminAccountResponse{
		AccountResponse:     services.NewAccountResponse(a),
		IsBanned:            a.IsBanned,
		BanReason:           a.BanReason,
		FailedLoginAttempts: a.FailedLoginAttempts,
		LockedUntil:         a.LockUntil,
	}
}

// AdminHandler handles admin account moderation requests
type AdminHandler struct {
	service AdminServiceInterface
	logger  *slog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(service AdminServiceInterface, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{service: service, logger: logger}
}

// GetAccount handles GET /admin/accounts/{id}
func (h *AdminHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, newAdminAccountResponse(account))
}

// FindAccount handles GET /admin/accounts?username=
func (h *AdminHandler) FindAccount(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		pkghttp.WriteBadRequest(w, "username query parameter is required")
		return
	}
	account, err := h.service.FindByUsername(r.Context(), username)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, newAdminAccountResponse(account))
}

// Ban handles POST /admin/accounts/{id}/ban
func (h *AdminHandler) Ban(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetAccountFromContext(r)
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}

	var req BanRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	account, err := h.service.Ban(r.Context(), actor.ID, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, newAdminAccountResponse(account))
}

// Unban handles POST /admin/accounts/{id}/unban
func (h *AdminHandler) Unban(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.service.Unban)
}

// Unlock handles POST /admin/accounts/{id}/unlock
func (h *AdminHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.service.Unlock)
}

// SetRole handles PUT /admin/accounts/{id}/role
func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetAccountFromContext(r)
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}

	var req SetRoleRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	account, err := h.service.SetRole(r.Context(), actor.ID, chi.URLParam(r, "id"), models.Role(req.Role))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, newAdminAccountResponse(account))
}

func (h *AdminHandler) act(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actorID, targetID string) (*models.Account, error)) {
	actor := auth.GetAccountFromContext(r)
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}

	account, err := fn(r.Context(), actor.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, newAdminAccountResponse(account))
}
