package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/arcadia/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAccounts struct {
	accounts map[string]*models.Account
	err      error
}

func (s *stubAccounts) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	a, ok := s.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return a, nil
}

func newTestAuthenticator(accounts *stubAccounts) (*Authenticator, *TokenManager) {
	tm := NewTokenManager(testSecret, DefaultIdentityTokenExpiry, DefaultLoginOTPExpiry)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuthenticator(tm, accounts, logger), tm
}

func serve(a *Authenticator, token string, next http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.Middleware(next).ServeHTTP(w, req)
	return w
}

func okHandler(t *testing.T, wantID string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := GetAccountFromContext(r)
		require.NotNil(t, account)
		assert.Equal(t, wantID, account.ID)
		assert.NotNil(t, GetClaimsFromContext(r))
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_ValidToken(t *testing.T) {
	accounts := &stubAccounts{accounts: map[string]*models.Account{
		"acct-1": {ID: "acct-1", Role: models.RoleUser},
	}}
	a, tm := newTestAuthenticator(accounts)
	token, err := tm.IssueIdentityToken("acct-1", models.RoleUser, "p@forum.gg")
	require.NoError(t, err)

	w := serve(a, token, okHandler(t, "acct-1"))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMiddleware_Rejections(t *testing.T) {
	changed := time.Now().Add(time.Hour)
	accounts := &stubAccounts{accounts: map[string]*models.Account{
		"banned":   {ID: "banned", IsBanned: true},
		"changed":  {ID: "changed", LastPasswordChange: &changed},
		"existing": {ID: "existing"},
	}}
	a, tm := newTestAuthenticator(accounts)

	identity := func(id string) string {
		tok, err := tm.IssueIdentityToken(id, models.RoleUser, "x@y.io")
		require.NoError(t, err)
		return tok
	}
	challenge, err := tm.IssueChallengeToken("existing", "ch")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"missing header", ""},
		{"garbage", "not.a.jwt"},
		{"unknown account", identity("ghost")},
		{"banned", identity("banned")},
		{"issued before password change", identity("changed")},
		{"challenge token as bearer", challenge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(a, tt.token, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not run")
			}))
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "unauthenticated")
		})
	}
}

func TestMiddleware_StorageFailure(t *testing.T) {
	accounts := &stubAccounts{err: errors.New("connection refused")}
	a, tm := newTestAuthenticator(accounts)
	token, err := tm.IssueIdentityToken("acct-1", models.RoleUser, "p@forum.gg")
	require.NoError(t, err)

	w := serve(a, token, http.NotFoundHandler())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		account *models.Account
		want    int
	}{
		{"admin allowed", &models.Account{ID: "a", Role: models.RoleAdmin}, http.StatusOK},
		{"moderator allowed", &models.Account{ID: "m", Role: models.RoleModerator}, http.StatusOK},
		{"user forbidden", &models.Account{ID: "u", Role: models.RoleUser}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin", nil)
			if tt.account != nil {
				req = req.WithContext(WithAccount(req.Context(), tt.account))
			}
			w := httptest.NewRecorder()
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

			RequireRole(models.RoleAdmin, models.RoleModerator)(next).ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer abc")
	tok, ok := BearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	req.Header.Set("Authorization", "Basic abc")
	_, ok = BearerToken(req)
	assert.False(t, ok)
}
