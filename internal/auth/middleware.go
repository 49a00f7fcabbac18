package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/arcadia/internal/models"
	pkghttp "github.com/BradenHooton/arcadia/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	claimsContextKey  contextKey = "claims"
	accountContextKey contextKey = "account"
)

// AccountReader fetches the current account state
type AccountReader interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

// Authenticator validates bearer tokens against the live account record
type Authenticator struct {
	tokens   *TokenManager
	accounts AccountReader
	logger   *slog.Logger
}

// NewAuthenticator creates an Authenticator
func NewAuthenticator(tokens *TokenManager, accounts AccountReader, logger *slog.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, accounts: accounts, logger: logger}
}

// Authenticate resolves an identity token to the account it belongs to. The
// account is read fresh so bans, role changes and password changes apply to
// tokens already in circulation.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*models.Account, *models.TokenClaims, error) {
	claims, err := a.tokens.ValidateTokenOfType(token, models.TokenTypeIdentity)
	if err != nil {
		return nil, nil, err
	}

	account, err := a.accounts.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, models.ErrUnauthorized
		}
		return nil, nil, err
	}

	if account.IsBanned {
		return nil, nil, models.ErrAccountBanned
	}

	if IssuedBeforePasswordChange(claims, account) {
		return nil, nil, models.ErrUnauthorized
	}

	return account, claims, nil
}

// IssuedBeforePasswordChange reports whether the token predates the last
// password change. JWT timestamps have second precision.
func IssuedBeforePasswordChange(claims *models.TokenClaims, account *models.Account) bool {
	if account.LastPasswordChange == nil || claims.IssuedAt == nil {
		return false
	}
	return claims.IssuedAt.Time.Before(account.LastPasswordChange.Truncate(time.Second))
}

// Middleware requires a valid `Authorization: Bearer` identity token
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			pkghttp.WriteUnauthorized(w, "unauthenticated")
			return
		}

		account, claims, err := a.Authenticate(r.Context(), token)
		if err != nil {
			if models.KindOf(err) == models.KindDependency {
				a.logger.Error("bearer authentication failed", slog.String("error", err.Error()))
				pkghttp.WriteInternalError(w, "internal_error")
				return
			}
			pkghttp.WriteUnauthorized(w, "unauthenticated")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		ctx = context.WithValue(ctx, accountContextKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole allows the request through only if the freshly loaded account
// holds one of roles. Must run after Middleware.
func RequireRole(roles ...models.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := GetAccountFromContext(r)
			if account == nil {
				pkghttp.WriteUnauthorized(w, "unauthenticated")
				return
			}

			for _, role := range roles {
				if account.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			pkghttp.WriteForbidden(w, "forbidden")
		})
	}
}

// BearerToken extracts the token from the Authorization header
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// GetAccountFromContext returns the authenticated account, if any
func GetAccountFromContext(r *http.Request) *models.Account {
	account, ok := r.Context().Value(accountContextKey).(*models.Account)
	if !ok {
		return nil
	}
	return account
}

// GetClaimsFromContext returns the validated token claims, if any
func GetClaimsFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(claimsContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// WithAccount returns a context carrying account, for handler tests
func WithAccount(ctx context.Context, account *models.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}
