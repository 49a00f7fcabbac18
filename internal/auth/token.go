package auth

import (
	"fmt"
	"time"

	"github.com/BradenHooton/arcadia/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultIdentityTokenExpiry = 24 * time.Hour
	DefaultSessionTokenExpiry  = 24 * time.Hour
)

// TokenManager handles JWT token generation and validation
type TokenManager struct {
	secret          []byte
	identityExpiry  time.Duration
	challengeExpiry time.Duration
	now             func() time.Time
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, identityExpiry, challengeExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:          []byte(secret),
		identityExpiry:  identityExpiry,
		challengeExpiry: challengeExpiry,
		now:             time.Now,
	}
}

// IdentityExpiry is the lifetime of identity tokens
func (tm *TokenManager) IdentityExpiry() time.Duration {
	return tm.identityExpiry
}

// IssueIdentityToken creates a bearer token carrying the account id, role and email
func (tm *TokenManager) IssueIdentityToken(accountID string, role models.Role, email string) (string, error) {
	claims := &models.TokenClaims{
		Type:             models.TokenTypeIdentity,
		UserID:           accountID,
		Role:             role,
		Email:            email,
		RegisteredClaims: tm.registered(tm.identityExpiry),
	}

	tokenString, err := tm.sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign identity token: %w", err)
	}
	return tokenString, nil
}

// IssueChallengeToken creates the opaque challenge id handed back when a
// login needs a second factor
func (tm *TokenManager) IssueChallengeToken(accountID, challengeID string) (string, error) {
	claims := &models.TokenClaims{
		Type:             models.TokenTypeMFAChallenge,
		UserID:           accountID,
		ChallengeID:      challengeID,
		RegisteredClaims: tm.registered(tm.challengeExpiry),
	}

	tokenString, err := tm.sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign challenge token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken verifies signature, expiry and type and returns the claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type == "" || claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing type or subject", models.ErrUnauthorized)
	}

	return claims, nil
}

// ValidateTokenOfType validates tokenString and requires the given type claim
func (tm *TokenManager) ValidateTokenOfType(tokenString, tokenType string) (*models.TokenClaims, error) {
	claims, err := tm.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != tokenType {
		return nil, fmt.Errorf("%w: unexpected token type %q", models.ErrUnauthorized, claims.Type)
	}
	return claims, nil
}

func (tm *TokenManager) registered(ttl time.Duration) jwt.RegisteredClaims {
	now := tm.now()
	return jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
}

func (tm *TokenManager) sign(claims *models.TokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}
