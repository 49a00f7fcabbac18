package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/arcadia/internal/auth"
	"github.com/BradenHooton/arcadia/internal/models"
	"github.com/BradenHooton/arcadia/internal/services"
	pkghttp "github.com/BradenHooton/arcadia/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAccountContext attaches an authenticated account to the request
func WithAccountContext(req *http.Request, account *models.Account) *http.Request {
	return req.WithContext(auth.WithAccount(req.Context(), account))
}

// WithURLParam sets a chi route parameter on the request
func WithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(req.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc             func(ctx context.Context, req services.RegisterRequest) (*models.Account, error)
	LoginFunc                func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	VerifyMFAFunc            func(ctx context.Context, req services.VerifyMFARequest) (*services.LoginResult, error)
	ResendMFAFunc            func(ctx context.Context, challengeID string) (*services.LoginResult, error)
	ChangePasswordFunc       func(ctx context.Context, accountID, currentPassword, newPassword string) error
	RequestPasswordResetFunc func(ctx context.Context, email, ip string) error
	ResetPasswordFunc        func(ctx context.Context, req services.ResetPasswordRequest) error
	LogoutFunc               func(ctx context.Context, accountID, sessionToken string) error
}

func (m *MockAuthService) Register(ctx context.Context, req services.RegisterRequest) (*models.Account, error) {
	if m.RegisterFunc == nil {
		return &models.Account{ID: "new", Username: req.Username, Email: req.Email}, nil
	}
	return m.RegisterFunc(ctx, req)
}

func (m *MockAuthService) Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, req)
}

func (m *MockAuthService) VerifyMFA(ctx context.Context, req services.VerifyMFARequest) (*services.LoginResult, error) {
	if m.VerifyMFAFunc == nil {
		return nil, models.ErrInvalidCode
	}
	return m.VerifyMFAFunc(ctx, req)
}

func (m *MockAuthService) ResendMFA(ctx context.Context, challengeID string) (*services.LoginResult, error) {
	if m.ResendMFAFunc == nil {
		return nil, models.ErrChallengeExpired
	}
	return m.ResendMFAFunc(ctx, challengeID)
}

func (m *MockAuthService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	if m.ChangePasswordFunc == nil {
		return nil
	}
	return m.ChangePasswordFunc(ctx, accountID, currentPassword, newPassword)
}

func (m *MockAuthService) RequestPasswordReset(ctx context.Context, email, ip string) error {
	if m.RequestPasswordResetFunc == nil {
		return nil
	}
	return m.RequestPasswordResetFunc(ctx, email, ip)
}

func (m *MockAuthService) ResetPassword(ctx context.Context, req services.ResetPasswordRequest) error {
	if m.ResetPasswordFunc == nil {
		return nil
	}
	return m.ResetPasswordFunc(ctx, req)
}

func (m *MockAuthService) Logout(ctx context.Context, accountID, sessionToken string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, accountID, sessionToken)
}

// MockMFAService implements MFAServiceInterface for testing
type MockMFAService struct {
	RequestEnableFunc func(ctx context.Context, accountID string, method models.MFAMethod) (*services.MFAEnrollment, error)
	ConfirmEnableFunc func(ctx context.Context, accountID, code string) (*services.MFAConfirmation, error)
	DisableFunc       func(ctx context.Context, accountID string) error
}

func (m *MockMFAService) RequestEnable(ctx context.Context, accountID string, method models.MFAMethod) (*services.MFAEnrollment, error) {
	if m.RequestEnableFunc == nil {
		return &services.MFAEnrollment{Method: method}, nil
	}
	return m.RequestEnableFunc(ctx, accountID, method)
}

func (m *MockMFAService) ConfirmEnable(ctx context.Context, accountID, code string) (*services.MFAConfirmation, error) {
	if m.ConfirmEnableFunc == nil {
		return nil, models.ErrInvalidCode
	}
	return m.ConfirmEnableFunc(ctx, accountID, code)
}

func (m *MockMFAService) Disable(ctx context.Context, accountID string) error {
	if m.DisableFunc == nil {
		return nil
	}
	return m.DisableFunc(ctx, accountID)
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	GetAccountFunc     func(ctx context.Context, targetID string) (*models.Account, error)
	FindByUsernameFunc func(ctx context.Context, username string) (*models.Account, error)
	BanFunc            func(ctx context.Context, actorID, targetID, reason string) (*models.Account, error)
	UnbanFunc          func(ctx context.Context, actorID, targetID string) (*models.Account, error)
	SetRoleFunc        func(ctx context.Context, actorID, targetID string, role models.Role) (*models.Account, error)
	UnlockFunc         func(ctx context.Context, actorID, targetID string) (*models.Account, error)
}

func (m *MockAdminService) GetAccount(ctx context.Context, targetID string) (*models.Account, error) {
	if m.GetAccountFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetAccountFunc(ctx, targetID)
}

func (m *MockAdminService) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	if m.FindByUsernameFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.FindByUsernameFunc(ctx, username)
}

func (m *MockAdminService) Ban(ctx context.Context, actorID, targetID, reason string) (*models.Account, error) {
	if m.BanFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.BanFunc(ctx, actorID, targetID, reason)
}

func (m *MockAdminService) Unban(ctx context.Context, actorID, targetID string) (*models.Account, error) {
	if m.UnbanFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UnbanFunc(ctx, actorID, targetID)
}

func (m *MockAdminService) SetRole(ctx context.Context, actorID, targetID string, role models.Role) (*models.Account, error) {
	if m.SetRoleFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.SetRoleFunc(ctx, actorID, targetID, role)
}

func (m *MockAdminService) Unlock(ctx context.Context, actorID, targetID string) (*models.Account, error) {
	if m.UnlockFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UnlockFunc(ctx, actorID, targetID)
}
