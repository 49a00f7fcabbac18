package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "type" claim
const (
	TokenTypeIdentity     = "identity"
	TokenTypeMFAChallenge = "mfa_challenge"
)

// TokenClaims are the JWT claims issued by the TokenManager
type TokenClaims struct {
	Type        string `json:"type"`
	UserID      string `json:"user_id"`
	Role        Role   `json:"role,omitempty"`
	Email       string `json:"email,omitempty"`
	ChallengeID string `json:"challenge_id,omitempty"`
	jwt.RegisteredClaims
}

// Session is an opaque session token registration
type Session struct {
	AccountID string `json:"account_id"`
	IPAddress string `json:"ip_address,omitempty"`
	CreatedAt int64  `json:"created_at"`
}
